package metrics

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"

	"github.com/kbukum/gowizard/logger"
)

// Reporter publishes a snapshot of the registry.
type Reporter interface {
	Report(ctx context.Context) error
}

// LogReporter writes one log line per metric family.
type LogReporter struct {
	registry *Registry
	log      *logger.Logger
	includes []string
	excludes []string
}

// NewLogReporter reports the families of registry whose names match one of
// includes (all when empty) and none of excludes. Patterns use path.Match
// syntax.
func NewLogReporter(registry *Registry, log *logger.Logger, includes, excludes []string) *LogReporter {
	return &LogReporter{registry: registry, log: log, includes: includes, excludes: excludes}
}

// Report gathers and logs the matching families.
func (r *LogReporter) Report(context.Context) error {
	families, err := r.registry.Gatherer().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if !r.matches(mf.GetName()) {
			continue
		}
		r.log.Info("metric", map[string]interface{}{
			logger.FieldName: mf.GetName(),
			"type":           strings.ToLower(mf.GetType().String()),
			"values":         summarize(mf),
		})
	}
	return nil
}

func (r *LogReporter) matches(name string) bool {
	for _, pattern := range r.excludes {
		if ok, _ := path.Match(pattern, name); ok {
			return false
		}
	}
	if len(r.includes) == 0 {
		return true
	}
	for _, pattern := range r.includes {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// summarize maps each label set of a family to its value, or to its count
// and sum for histograms and summaries.
func summarize(mf *dto.MetricFamily) map[string]interface{} {
	out := make(map[string]interface{}, len(mf.GetMetric()))
	for _, m := range mf.GetMetric() {
		key := labelKey(m.GetLabel())
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			out[key] = m.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			out[key] = m.GetGauge().GetValue()
		case dto.MetricType_HISTOGRAM:
			h := m.GetHistogram()
			out[key] = map[string]interface{}{"count": h.GetSampleCount(), "sum": h.GetSampleSum()}
		case dto.MetricType_SUMMARY:
			s := m.GetSummary()
			out[key] = map[string]interface{}{"count": s.GetSampleCount(), "sum": s.GetSampleSum()}
		default:
			out[key] = m.GetUntyped().GetValue()
		}
	}
	return out
}

func labelKey(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return "value"
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
