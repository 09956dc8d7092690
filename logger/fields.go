package logger

import (
	"time"
)

// Field keys shared by framework log lines.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldTraceID   = "trace_id"
	FieldSpanID    = "span_id"
	FieldRequestID = "request_id"
	FieldOperation = "operation"
	FieldStatus    = "status"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
	FieldPhase     = "phase"
	FieldName      = "name"

	FieldMethod    = "method"
	FieldPath      = "path"
	FieldConnector = "connector"
	FieldEndpoint  = "endpoint"
	FieldSession   = "session"
)

// Fields builds a field map from alternating keys and values. Pairs with a
// non-string key are skipped.
//
//	log.Info("Bundle initialized", logger.Fields(logger.FieldName, "assets"))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// DurationFields names an operation and how long it took.
func DurationFields(op string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldDuration:  d.Milliseconds(),
	}
}
