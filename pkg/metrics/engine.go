package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics counts trust ledger and fraud engine outcomes.
type EngineMetrics struct {
	trustEvents     *prometheus.CounterVec
	trustConflicts  prometheus.Counter
	fraudChecks     *prometheus.CounterVec
	blacklistAction *prometheus.CounterVec
	loanDecisions   *prometheus.CounterVec
}

// NewEngineMetrics registers the engine counters on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	trustEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_events_total",
		Help: "Trust events appended to the ledger.",
	}, []string{"kind"})
	trustConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trust_append_conflicts_total",
		Help: "Ledger appends that lost a concurrent write race.",
	})
	fraudChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_checks_total",
		Help: "Fraud checks by resulting severity (none when no alert).",
	}, []string{"severity"})
	blacklistAction := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blacklist_actions_total",
		Help: "Blacklist entries created or removed.",
	}, []string{"action", "reporter"})
	loanDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loan_decisions_total",
		Help: "Loan requests by guard outcome.",
	}, []string{"outcome"})
	reg.MustRegister(trustEvents, trustConflicts, fraudChecks, blacklistAction, loanDecisions)
	return &EngineMetrics{
		trustEvents:     trustEvents,
		trustConflicts:  trustConflicts,
		fraudChecks:     fraudChecks,
		blacklistAction: blacklistAction,
		loanDecisions:   loanDecisions,
	}
}

func (m *EngineMetrics) IncTrustEvent(kind string) {
	if m == nil || m.trustEvents == nil {
		return
	}
	m.trustEvents.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *EngineMetrics) IncTrustConflict() {
	if m == nil || m.trustConflicts == nil {
		return
	}
	m.trustConflicts.Inc()
}

// IncFraudCheck records a detection run; an empty severity means no alert.
func (m *EngineMetrics) IncFraudCheck(severity string) {
	if m == nil || m.fraudChecks == nil {
		return
	}
	if severity == "" {
		severity = "none"
	}
	m.fraudChecks.WithLabelValues(severity).Inc()
}

func (m *EngineMetrics) IncBlacklist(action, reporter string) {
	if m == nil || m.blacklistAction == nil {
		return
	}
	m.blacklistAction.WithLabelValues(normalizeLabel(action), normalizeLabel(reporter)).Inc()
}

// IncLoanDecision records a loan request outcome: allowed, blocked, limit or fraud.
func (m *EngineMetrics) IncLoanDecision(outcome string) {
	if m == nil || m.loanDecisions == nil {
		return
	}
	m.loanDecisions.WithLabelValues(normalizeLabel(outcome)).Inc()
}
