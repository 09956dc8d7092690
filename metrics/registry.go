package metrics

import (
	"errors"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is an application's metric registry.
type Registry struct {
	reg        *prometheus.Registry
	mu         sync.Mutex
	collectors map[string]prometheus.Collector
	runtime    sync.Once
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{reg: prometheus.NewRegistry(), collectors: map[string]prometheus.Collector{}}
}

// Registerer returns the underlying registerer.
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Register adds a collector, returning the collector already registered
// when an identical one exists.
func (r *Registry) Register(c prometheus.Collector) (prometheus.Collector, error) {
	if err := r.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return c, nil
}

// RegisterRuntime adds the Go runtime and process collectors once.
func (r *Registry) RegisterRuntime() {
	r.runtime.Do(func() {
		_, _ = r.Register(collectors.NewGoCollector())
		_, _ = r.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Names returns the names of the metric families currently gathered.
func (r *Registry) Names() ([]string, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	sort.Strings(names)
	return names, nil
}

// Counter returns the counter vector called name, creating it on first use.
func (r *Registry) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	name = Sanitize(name)
	return getOrCreate(r, name, func() *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: helpOr(help, name)}, labels)
	})
}

// Gauge returns the gauge vector called name, creating it on first use.
func (r *Registry) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	name = Sanitize(name)
	return getOrCreate(r, name, func() *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: helpOr(help, name)}, labels)
	})
}

// Histogram returns the histogram vector called name, creating it on first
// use with the default buckets.
func (r *Registry) Histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	name = Sanitize(name)
	return getOrCreate(r, name, func() *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    helpOr(help, name),
			Buckets: prometheus.DefBuckets,
		}, labels)
	})
}

// Timer returns a timer recording durations in seconds under
// name_seconds.
func (r *Registry) Timer(name, help string) *Timer {
	name = strings.TrimSuffix(Sanitize(name), "_seconds") + "_seconds"
	return &Timer{h: r.Histogram(name, help).WithLabelValues()}
}

func getOrCreate[C prometheus.Collector](r *Registry, name string, create func() C) C {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.collectors[name].(C); ok {
		return existing
	}
	c := create()
	if got, err := r.Register(c); err == nil {
		if typed, ok := got.(C); ok {
			c = typed
		}
	}
	r.collectors[name] = c
	return c
}

func helpOr(help, name string) string {
	if help != "" {
		return help
	}
	return name
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// Sanitize converts a dotted or hyphenated metric name into a valid
// Prometheus name: "db.pool-size" becomes "db_pool_size".
func Sanitize(name string) string {
	name = invalidNameChars.ReplaceAllString(name, "_")
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// Timer observes durations into a histogram.
type Timer struct {
	h prometheus.Observer
}

// Time runs fn and records how long it took.
func (t *Timer) Time(fn func()) {
	start := time.Now()
	defer func() { t.Update(time.Since(start)) }()
	fn()
}

// Update records d.
func (t *Timer) Update(d time.Duration) { t.h.Observe(d.Seconds()) }

// Start returns a function that records the time elapsed since Start.
func (t *Timer) Start() func() {
	start := time.Now()
	return func() { t.Update(time.Since(start)) }
}
