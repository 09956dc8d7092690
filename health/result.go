package health

import (
	"encoding/json"
	"fmt"
	"time"
)

// Result is the outcome of one health check.
type Result struct {
	Healthy   bool
	Message   string
	Err       error
	Details   map[string]interface{}
	Timestamp time.Time
	Duration  time.Duration
}

// Healthy returns a passing result with an optional message.
func Healthy(message ...string) Result {
	r := Result{Healthy: true, Timestamp: time.Now()}
	if len(message) > 0 {
		r.Message = message[0]
	}
	return r
}

// Unhealthy returns a failing result carrying err.
func Unhealthy(err error) Result {
	r := Result{Healthy: false, Err: err, Timestamp: time.Now()}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// Unhealthyf returns a failing result with a formatted message.
func Unhealthyf(format string, args ...interface{}) Result {
	return Result{Healthy: false, Message: fmt.Sprintf(format, args...), Timestamp: time.Now()}
}

// WithDetail returns a copy of r with key set in its details.
func (r Result) WithDetail(key string, value interface{}) Result {
	details := make(map[string]interface{}, len(r.Details)+1)
	for k, v := range r.Details {
		details[k] = v
	}
	details[key] = value
	r.Details = details
	return r
}

type resultJSON struct {
	Healthy   bool                   `json:"healthy"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Duration  int64                  `json:"duration"`
}

// MarshalJSON renders the error as a string and the duration in
// milliseconds.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Healthy:   r.Healthy,
		Message:   r.Message,
		Details:   r.Details,
		Timestamp: r.Timestamp.Format(time.RFC3339Nano),
		Duration:  r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}
