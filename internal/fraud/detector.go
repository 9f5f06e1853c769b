// Package fraud scores activity snapshots for suspicious borrowing patterns.
package fraud

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/trustlend-backend/internal/profiler"
	"github.com/angelmondragon/trustlend-backend/internal/scoring"
	"github.com/angelmondragon/trustlend-backend/pkg/config"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

const (
	FlagVelocity        = "Unusually high borrowing frequency"
	FlagNewAccount      = "New account requesting loans"
	FlagAmountAnomaly   = "Loan amount far above historical pattern"
	FlagDisputeRatio    = "High dispute rate"
	FlagLowTrustVolume  = "High activity despite low trust"
	FlagCircularLending = "Circular lending pattern detected"
)

// Alert is the transient detector output.
type Alert struct {
	UserID          uuid.UUID
	Type            enums.FraudAlertType
	Severity        enums.FraudSeverity
	SuspicionScore  int
	RedFlags        []string
	Details         map[string]any
	Action          enums.FraudAction
	RequestedAmount *decimal.Decimal
}

// Thresholds are the immutable detector settings.
type Thresholds struct {
	Velocity24h           int
	Velocity24hPoints     int
	Velocity7d            int
	Velocity7dPoints      int
	NewAccountDays        int
	NewAccountPoints      int
	AverageAmountMultiple decimal.Decimal
	MaxAmountMultiple     decimal.Decimal
	AmountPoints          int
	DisputeRatio          float64
	DisputePoints         int
	LowTrustScore         int
	HighVolumeLoans       int
	LowTrustPoints        int
	CircularMaxHops       int
	CircularPoints        int
	AlertThreshold        int
	MediumThreshold       int
	HighThreshold         int
	CriticalThreshold     int
}

// ThresholdsFromConfig converts config into thresholds. A zero low-trust score
// becomes 30% of the policy maximum.
func ThresholdsFromConfig(cfg config.FraudConfig, policy scoring.Policy) Thresholds {
	lowTrust := cfg.LowTrustScore
	if lowTrust <= 0 && policy != nil {
		lowTrust = policy.Bounds().Max * 30 / 100
	}
	return Thresholds{
		Velocity24h:           cfg.Velocity24hThreshold,
		Velocity24hPoints:     cfg.Velocity24hPoints,
		Velocity7d:            cfg.Velocity7dThreshold,
		Velocity7dPoints:      cfg.Velocity7dPoints,
		NewAccountDays:        cfg.NewAccountDays,
		NewAccountPoints:      cfg.NewAccountPoints,
		AverageAmountMultiple: decimal.NewFromFloat(cfg.AverageAmountMultiple),
		MaxAmountMultiple:     decimal.NewFromFloat(cfg.MaxAmountMultiple),
		AmountPoints:          cfg.AmountPoints,
		DisputeRatio:          cfg.DisputeRatio,
		DisputePoints:         cfg.DisputePoints,
		LowTrustScore:         lowTrust,
		HighVolumeLoans:       cfg.HighVolumeLoans,
		LowTrustPoints:        cfg.LowTrustPoints,
		CircularMaxHops:       cfg.CircularMaxHops,
		CircularPoints:        cfg.CircularPoints,
		AlertThreshold:        cfg.AlertThreshold,
		MediumThreshold:       cfg.MediumThreshold,
		HighThreshold:         cfg.HighThreshold,
		CriticalThreshold:     cfg.CriticalThreshold,
	}
}

// Detector runs the rules in a fixed order and sums every contribution.
type Detector struct {
	t     Thresholds
	rules []rule
}

type rule struct {
	name  string
	kind  enums.FraudAlertType
	flag  string
	apply func(t Thresholds, in input) (int, map[string]any)
}

type input struct {
	snap       *profiler.Snapshot
	requested  *decimal.Decimal
	population []*profiler.Snapshot
}

// NewDetector builds a detector over the provided thresholds.
func NewDetector(t Thresholds) *Detector {
	return &Detector{
		t: t,
		rules: []rule{
			{name: "velocity", kind: enums.FraudAlertVelocity, flag: FlagVelocity, apply: velocityRule},
			{name: "new_account", kind: enums.FraudAlertNewAccount, flag: FlagNewAccount, apply: newAccountRule},
			{name: "amount_anomaly", kind: enums.FraudAlertAmountAnomaly, flag: FlagAmountAnomaly, apply: amountRule},
			{name: "dispute_ratio", kind: enums.FraudAlertDisputeRatio, flag: FlagDisputeRatio, apply: disputeRule},
			{name: "low_trust_volume", kind: enums.FraudAlertLowTrustVolume, flag: FlagLowTrustVolume, apply: lowTrustRule},
			{name: "circular_lending", kind: enums.FraudAlertCircularLending, flag: FlagCircularLending, apply: circularRule},
		},
	}
}

// Detect scores snap and returns nil when the total stays below the alert
// threshold. requested and population are optional; without a population the
// circular-lending rule is skipped.
func (d *Detector) Detect(snap *profiler.Snapshot, requested *decimal.Decimal, population []*profiler.Snapshot) *Alert {
	if snap == nil {
		return nil
	}
	in := input{snap: snap, requested: requested, population: population}

	total := 0
	var flags []string
	var triggered []enums.FraudAlertType
	contributions := map[string]any{}
	details := map[string]any{}
	for _, r := range d.rules {
		points, info := r.apply(d.t, in)
		if points <= 0 {
			continue
		}
		total += points
		flags = append(flags, r.flag)
		triggered = append(triggered, r.kind)
		contributions[r.name] = points
		for k, v := range info {
			details[k] = v
		}
	}

	severity, ok := d.severity(total)
	if !ok {
		return nil
	}
	details["contributions"] = contributions

	alertType := enums.FraudAlertMultipleSignals
	if len(triggered) == 1 {
		alertType = triggered[0]
	}
	action := enums.FraudActionReviewed
	if severity == enums.FraudSeverityCritical {
		action = enums.FraudActionBlocked
	}
	return &Alert{
		UserID:          snap.UserID,
		Type:            alertType,
		Severity:        severity,
		SuspicionScore:  total,
		RedFlags:        flags,
		Details:         details,
		Action:          action,
		RequestedAmount: requested,
	}
}

func (d *Detector) severity(score int) (enums.FraudSeverity, bool) {
	switch {
	case score < d.t.AlertThreshold || score <= 0:
		return "", false
	case score < d.t.MediumThreshold:
		return enums.FraudSeverityLow, true
	case score < d.t.HighThreshold:
		return enums.FraudSeverityMedium, true
	case score < d.t.CriticalThreshold:
		return enums.FraudSeverityHigh, true
	default:
		return enums.FraudSeverityCritical, true
	}
}

func velocityRule(t Thresholds, in input) (int, map[string]any) {
	points := 0
	if excess := in.snap.LoansLast24h - t.Velocity24h; excess > 0 {
		points += excess * t.Velocity24hPoints
	}
	if excess := in.snap.LoansLast7d - t.Velocity7d; excess > 0 {
		points += excess * t.Velocity7dPoints
	}
	if points == 0 {
		return 0, nil
	}
	return points, map[string]any{
		"loans_last_24h": in.snap.LoansLast24h,
		"loans_last_7d":  in.snap.LoansLast7d,
	}
}

func newAccountRule(t Thresholds, in input) (int, map[string]any) {
	if in.snap.AccountAgeDays >= t.NewAccountDays || in.snap.LoansRequested == 0 {
		return 0, nil
	}
	return t.NewAccountPoints, map[string]any{"account_age_days": in.snap.AccountAgeDays}
}

func amountRule(t Thresholds, in input) (int, map[string]any) {
	if in.requested == nil || !in.requested.IsPositive() {
		return 0, nil
	}
	amount := *in.requested
	avg, peak := in.snap.AverageLoanAmount, in.snap.MaxLoanAmount
	aboveAvg := avg.IsPositive() && amount.GreaterThan(avg.Mul(t.AverageAmountMultiple))
	aboveMax := peak.IsPositive() && amount.GreaterThan(peak.Mul(t.MaxAmountMultiple))
	if !aboveAvg && !aboveMax {
		return 0, nil
	}
	return t.AmountPoints, map[string]any{
		"requested_amount":    amount.String(),
		"average_loan_amount": avg.String(),
		"max_loan_amount":     peak.String(),
	}
}

func disputeRule(t Thresholds, in input) (int, map[string]any) {
	received := in.snap.RepaymentsReceived
	if received < 1 {
		received = 1
	}
	ratio := float64(in.snap.TotalDisputes) / float64(received)
	if ratio <= t.DisputeRatio {
		return 0, nil
	}
	return t.DisputePoints, map[string]any{"dispute_ratio": ratio}
}

func lowTrustRule(t Thresholds, in input) (int, map[string]any) {
	if in.snap.TrustScore >= t.LowTrustScore || in.snap.LoansRequested < t.HighVolumeLoans {
		return 0, nil
	}
	return t.LowTrustPoints, map[string]any{
		"trust_score":     in.snap.TrustScore,
		"loans_requested": in.snap.LoansRequested,
	}
}

func circularRule(t Thresholds, in input) (int, map[string]any) {
	if len(in.population) == 0 {
		return 0, nil
	}
	graph := lendGraph(in.snap, in.population)
	cycle := findCycle(graph, in.snap.UserID, t.CircularMaxHops)
	if cycle == nil {
		return 0, nil
	}
	members := make([]string, len(cycle))
	for i, id := range cycle {
		members[i] = id.String()
	}
	return t.CircularPoints, map[string]any{"cycle": members}
}

func lendGraph(subject *profiler.Snapshot, population []*profiler.Snapshot) map[uuid.UUID][]uuid.UUID {
	graph := make(map[uuid.UUID][]uuid.UUID, len(population)+1)
	for _, s := range population {
		if s != nil {
			graph[s.UserID] = s.LentTo
		}
	}
	graph[subject.UserID] = subject.LentTo
	return graph
}

// findCycle walks "lent to" edges from start and returns the first path that
// returns to start within maxHops edges, starting with start itself.
func findCycle(graph map[uuid.UUID][]uuid.UUID, start uuid.UUID, maxHops int) []uuid.UUID {
	if maxHops < 2 {
		maxHops = 2
	}
	path := []uuid.UUID{start}
	onPath := map[uuid.UUID]bool{start: true}

	var walk func(node uuid.UUID, depth int) []uuid.UUID
	walk = func(node uuid.UUID, depth int) []uuid.UUID {
		for _, next := range graph[node] {
			if next == start && depth >= 1 {
				return append([]uuid.UUID(nil), path...)
			}
			if onPath[next] || depth+1 >= maxHops {
				continue
			}
			onPath[next] = true
			path = append(path, next)
			if found := walk(next, depth+1); found != nil {
				return found
			}
			path = path[:len(path)-1]
			onPath[next] = false
		}
		return nil
	}
	return walk(start, 0)
}
