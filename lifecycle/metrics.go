package lifecycle

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// executorMetrics holds the pool collectors shared by every executor of an
// Environment. A nil *executorMetrics records nothing.
type executorMetrics struct {
	submittedTotal *prometheus.CounterVec
	completedTotal *prometheus.CounterVec
	rejectedTotal  *prometheus.CounterVec
	runningTasks   *prometheus.GaugeVec
	poolWorkers    *prometheus.GaugeVec
	queueDepth     *prometheus.GaugeVec
}

func newExecutorMetrics(reg prometheus.Registerer) *executorMetrics {
	return &executorMetrics{
		submittedTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "executor_submitted_total",
			Help: "Tasks submitted to the executor.",
		}, []string{"pool"})),
		completedTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "executor_completed_total",
			Help: "Tasks the executor finished running.",
		}, []string{"pool"})),
		rejectedTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "executor_rejected_total",
			Help: "Tasks the executor refused or dropped.",
		}, []string{"pool"})),
		runningTasks: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "executor_running",
			Help: "Tasks currently running.",
		}, []string{"pool"})),
		poolWorkers: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "executor_pool_size",
			Help: "Workers currently alive.",
		}, []string{"pool"})),
		queueDepth: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "executor_queue_size",
			Help: "Tasks waiting in the queue.",
		}, []string{"pool"})),
	}
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *executorMetrics) submitted(pool string) {
	if m != nil {
		m.submittedTotal.WithLabelValues(pool).Inc()
	}
}

func (m *executorMetrics) completed(pool string) {
	if m != nil {
		m.completedTotal.WithLabelValues(pool).Inc()
	}
}

func (m *executorMetrics) rejected(pool string) {
	if m != nil {
		m.rejectedTotal.WithLabelValues(pool).Inc()
	}
}

func (m *executorMetrics) running(pool string, delta float64) {
	if m != nil {
		m.runningTasks.WithLabelValues(pool).Add(delta)
	}
}

func (m *executorMetrics) workers(pool string, n int) {
	if m != nil {
		m.poolWorkers.WithLabelValues(pool).Set(float64(n))
	}
}

func (m *executorMetrics) queued(pool string, n int) {
	if m != nil {
		m.queueDepth.WithLabelValues(pool).Set(float64(n))
	}
}
