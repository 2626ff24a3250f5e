package metrics

import "github.com/prometheus/client_golang/prometheus"

// CrisisMetrics exposes counters/histograms for the crisis-detection flow.
type CrisisMetrics struct {
	verdictsTotal       *prometheus.CounterVec
	decisionsTotal      *prometheus.CounterVec
	sessionsTotal       *prometheus.CounterVec
	callAttemptsTotal   *prometheus.CounterVec
	auditWritesTotal    *prometheus.CounterVec
	auditWriteLatency   prometheus.Histogram
	invariantViolations *prometheus.CounterVec
}

func NewCrisisMetrics(reg prometheus.Registerer) *CrisisMetrics {
	m := &CrisisMetrics{
		verdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentalcare",
			Subsystem: "crisis",
			Name:      "verdicts_total",
			Help:      "Classifier verdicts by tier",
		}, []string{"tier"}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentalcare",
			Subsystem: "crisis",
			Name:      "escalation_decisions_total",
			Help:      "Escalation decisions by outcome",
		}, []string{"decision"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentalcare",
			Subsystem: "crisis",
			Name:      "emergency_sessions_total",
			Help:      "Emergency session lifecycle events",
		}, []string{"outcome"}),
		callAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentalcare",
			Subsystem: "crisis",
			Name:      "call_attempts_total",
			Help:      "Emergency call placement attempts",
		}, []string{"trigger", "status"}),
		auditWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentalcare",
			Subsystem: "crisis",
			Name:      "audit_writes_total",
			Help:      "Emergency audit log writes by status",
		}, []string{"status"}),
		auditWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mentalcare",
			Subsystem: "crisis",
			Name:      "audit_write_latency_seconds",
			Help:      "Latency of emergency audit log writes",
			Buckets:   prometheus.DefBuckets,
		}),
		invariantViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentalcare",
			Subsystem: "crisis",
			Name:      "invariant_violations_total",
			Help:      "Logic defects observed at runtime",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.verdictsTotal,
		m.decisionsTotal,
		m.sessionsTotal,
		m.callAttemptsTotal,
		m.auditWritesTotal,
		m.auditWriteLatency,
		m.invariantViolations,
	)
	return m
}

func (m *CrisisMetrics) ObserveVerdict(tier string) {
	if m == nil {
		return
	}
	m.verdictsTotal.WithLabelValues(tier).Inc()
}

func (m *CrisisMetrics) ObserveDecision(decision string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(decision).Inc()
}

func (m *CrisisMetrics) ObserveSession(outcome string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(outcome).Inc()
}

func (m *CrisisMetrics) ObserveCallAttempt(trigger string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.callAttemptsTotal.WithLabelValues(trigger, status).Inc()
}

func (m *CrisisMetrics) ObserveAuditWrite(status string, seconds float64) {
	if m == nil {
		return
	}
	m.auditWritesTotal.WithLabelValues(status).Inc()
	m.auditWriteLatency.Observe(seconds)
}

func (m *CrisisMetrics) ObserveInvariantViolation(kind string) {
	if m == nil {
		return
	}
	m.invariantViolations.WithLabelValues(kind).Inc()
}
