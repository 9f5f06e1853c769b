package fraud

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/trustlend-backend/internal/profiler"
	"github.com/angelmondragon/trustlend-backend/internal/scoring"
	"github.com/angelmondragon/trustlend-backend/pkg/config"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

func defaultFraudConfig() config.FraudConfig {
	return config.FraudConfig{
		Velocity24hThreshold:  3,
		Velocity24hPoints:     10,
		Velocity7dThreshold:   10,
		Velocity7dPoints:      5,
		NewAccountDays:        7,
		NewAccountPoints:      25,
		AverageAmountMultiple: 3,
		MaxAmountMultiple:     2,
		AmountPoints:          20,
		DisputeRatio:          0.3,
		DisputePoints:         25,
		HighVolumeLoans:       10,
		LowTrustPoints:        20,
		CircularMaxHops:       4,
		CircularPoints:        50,
		MaxPopulation:         200,
		AlertThreshold:        20,
		MediumThreshold:       40,
		HighThreshold:         60,
		CriticalThreshold:     80,
	}
}

func newTestDetector() *Detector {
	return NewDetector(ThresholdsFromConfig(defaultFraudConfig(), scoring.Lateness()))
}

// established is a quiet, long-lived account that triggers nothing.
func established() *profiler.Snapshot {
	return &profiler.Snapshot{
		UserID:            uuid.New(),
		AccountAgeDays:    400,
		TrustScore:        90,
		LoansRequested:    4,
		AverageLoanAmount: decimal.NewFromInt(200),
		MaxLoanAmount:     decimal.NewFromInt(400),
	}
}

func amount(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestLowTrustThresholdDerivesFromPolicy(t *testing.T) {
	assert.Equal(t, 45, ThresholdsFromConfig(defaultFraudConfig(), scoring.Lateness()).LowTrustScore)
	assert.Equal(t, 300, ThresholdsFromConfig(defaultFraudConfig(), scoring.Lifecycle()).LowTrustScore)

	cfg := defaultFraudConfig()
	cfg.LowTrustScore = 12
	assert.Equal(t, 12, ThresholdsFromConfig(cfg, scoring.Lateness()).LowTrustScore)
}

func TestDetect_NoSignalsReturnsNil(t *testing.T) {
	assert.Nil(t, newTestDetector().Detect(established(), amount(300), nil))
}

func TestDetect_IndividualRules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *profiler.Snapshot)
		amount   *decimal.Decimal
		flag     string
		kind     enums.FraudAlertType
		score    int
		severity enums.FraudSeverity
	}{
		{
			name:     "velocity 24h",
			mutate:   func(s *profiler.Snapshot) { s.LoansLast24h = 6; s.LoansLast7d = 6 },
			flag:     FlagVelocity,
			kind:     enums.FraudAlertVelocity,
			score:    30,
			severity: enums.FraudSeverityLow,
		},
		{
			name:     "velocity 7d",
			mutate:   func(s *profiler.Snapshot) { s.LoansLast7d = 14 },
			flag:     FlagVelocity,
			kind:     enums.FraudAlertVelocity,
			score:    20,
			severity: enums.FraudSeverityLow,
		},
		{
			name:     "new account",
			mutate:   func(s *profiler.Snapshot) { s.AccountAgeDays = 2 },
			flag:     FlagNewAccount,
			kind:     enums.FraudAlertNewAccount,
			score:    25,
			severity: enums.FraudSeverityLow,
		},
		{
			name:     "amount above average multiple",
			mutate:   func(s *profiler.Snapshot) {},
			amount:   amount(650),
			flag:     FlagAmountAnomaly,
			kind:     enums.FraudAlertAmountAnomaly,
			score:    20,
			severity: enums.FraudSeverityLow,
		},
		{
			name:     "dispute ratio",
			mutate:   func(s *profiler.Snapshot) { s.TotalDisputes = 2; s.RepaymentsReceived = 5 },
			flag:     FlagDisputeRatio,
			kind:     enums.FraudAlertDisputeRatio,
			score:    25,
			severity: enums.FraudSeverityLow,
		},
		{
			name:     "low trust high volume",
			mutate:   func(s *profiler.Snapshot) { s.TrustScore = 20; s.LoansRequested = 10 },
			flag:     FlagLowTrustVolume,
			kind:     enums.FraudAlertLowTrustVolume,
			score:    20,
			severity: enums.FraudSeverityLow,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := established()
			tc.mutate(snap)
			alert := newTestDetector().Detect(snap, tc.amount, nil)
			require.NotNil(t, alert)
			assert.Equal(t, []string{tc.flag}, alert.RedFlags)
			assert.Equal(t, tc.kind, alert.Type)
			assert.Equal(t, tc.score, alert.SuspicionScore)
			assert.Equal(t, tc.severity, alert.Severity)
			assert.Equal(t, enums.FraudActionReviewed, alert.Action)
		})
	}
}

func TestDetect_AmountWithinPatternIsQuiet(t *testing.T) {
	// 600 is exactly 3x the average and below 2x the max.
	assert.Nil(t, newTestDetector().Detect(established(), amount(600), nil))

	fresh := established()
	fresh.LoansRequested = 0
	fresh.AverageLoanAmount = decimal.Zero
	fresh.MaxLoanAmount = decimal.Zero
	assert.Nil(t, newTestDetector().Detect(fresh, amount(5000), nil), "no history means nothing to compare against")
}

func TestDetect_DisputeRatioUsesAtLeastOneRepayment(t *testing.T) {
	snap := established()
	snap.TotalDisputes = 1
	alert := newTestDetector().Detect(snap, nil, nil)
	require.NotNil(t, alert)
	assert.Contains(t, alert.RedFlags, FlagDisputeRatio)
}

func TestScenarioB_NewAccountBurst(t *testing.T) {
	snap := &profiler.Snapshot{
		UserID:            uuid.New(),
		AccountAgeDays:    0,
		TrustScore:        50,
		LoansRequested:    5,
		LoansLast24h:      5,
		LoansLast7d:       5,
		AverageLoanAmount: decimal.NewFromInt(100),
		MaxLoanAmount:     decimal.NewFromInt(100),
	}
	alert := newTestDetector().Detect(snap, nil, nil)
	require.NotNil(t, alert)
	assert.Equal(t, []string{FlagVelocity, FlagNewAccount}, alert.RedFlags)
	assert.Equal(t, 20+25, alert.SuspicionScore)
	assert.Equal(t, enums.FraudAlertMultipleSignals, alert.Type)
	assert.Contains(t, []enums.FraudSeverity{enums.FraudSeverityMedium, enums.FraudSeverityHigh, enums.FraudSeverityCritical}, alert.Severity)
	assert.Equal(t, enums.FraudSeverityMedium, alert.Severity)
}

func TestDetect_CriticalBlocks(t *testing.T) {
	snap := established()
	snap.AccountAgeDays = 1
	snap.LoansLast24h = 6
	snap.TotalDisputes = 3
	alert := newTestDetector().Detect(snap, amount(5000), nil)
	require.NotNil(t, alert)
	assert.Equal(t, 30+25+20+25, alert.SuspicionScore)
	assert.Equal(t, enums.FraudSeverityCritical, alert.Severity)
	assert.Equal(t, enums.FraudActionBlocked, alert.Action)
	assert.Len(t, alert.RedFlags, 4)
}

func TestScenarioE_CircularLendingFlagsEveryParticipant(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	snaps := []*profiler.Snapshot{
		{UserID: a, AccountAgeDays: 100, TrustScore: 90, LentTo: []uuid.UUID{b}, LoanPartners: []uuid.UUID{b, c}},
		{UserID: b, AccountAgeDays: 100, TrustScore: 90, LentTo: []uuid.UUID{c}, LoanPartners: []uuid.UUID{a, c}},
		{UserID: c, AccountAgeDays: 100, TrustScore: 90, LentTo: []uuid.UUID{a}, LoanPartners: []uuid.UUID{a, b}},
	}
	d := newTestDetector()
	for _, snap := range snaps {
		alert := d.Detect(snap, nil, snaps)
		require.NotNil(t, alert, snap.UserID)
		assert.Equal(t, []string{FlagCircularLending}, alert.RedFlags)
		assert.Equal(t, 50, alert.SuspicionScore)
		assert.Equal(t, enums.FraudSeverityMedium, alert.Severity)
		assert.Len(t, alert.Details["cycle"], 3)
	}

	assert.Nil(t, d.Detect(snaps[0], nil, nil), "circular rule is skipped without a population")
}

func TestCircularLendingRespectsHopLimit(t *testing.T) {
	ids := make([]uuid.UUID, 6)
	for i := range ids {
		ids[i] = uuid.New()
	}
	// ring of 6 lenders: longer than the 4 hop limit
	snaps := make([]*profiler.Snapshot, len(ids))
	for i, id := range ids {
		snaps[i] = &profiler.Snapshot{UserID: id, AccountAgeDays: 100, LentTo: []uuid.UUID{ids[(i+1)%len(ids)]}, TrustScore: 90}
	}
	assert.Nil(t, newTestDetector().Detect(snaps[0], nil, snaps))

	graph := map[uuid.UUID][]uuid.UUID{ids[0]: {ids[1]}, ids[1]: {ids[2]}, ids[2]: {ids[3]}, ids[3]: {ids[0]}}
	assert.Len(t, findCycle(graph, ids[0], 4), 4)
	assert.Nil(t, findCycle(graph, ids[0], 3))
}

func TestSeverityBands(t *testing.T) {
	d := newTestDetector()
	cases := map[int]enums.FraudSeverity{
		20: enums.FraudSeverityLow,
		39: enums.FraudSeverityLow,
		40: enums.FraudSeverityMedium,
		60: enums.FraudSeverityHigh,
		79: enums.FraudSeverityHigh,
		80: enums.FraudSeverityCritical,
	}
	for score, want := range cases {
		got, ok := d.severity(score)
		require.True(t, ok, score)
		assert.Equal(t, want, got, score)
	}
	_, ok := d.severity(19)
	assert.False(t, ok)
}
