package scoring

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

func TestLifecycleTable(t *testing.T) {
	p := Lifecycle()
	cases := map[enums.TrustEventKind]int{
		enums.TrustEventLoanCreated:       5,
		enums.TrustEventLoanFunded:        10,
		enums.TrustEventRepaymentOnTime:   20,
		enums.TrustEventRepaymentEarly:    25,
		enums.TrustEventRepaymentLate:     -15,
		enums.TrustEventLoanDefaulted:     -50,
		enums.TrustEventDisputeRaised:     -10,
		enums.TrustEventDisputeResolved:   5,
		enums.TrustEventBlacklistReported: -100,
		enums.TrustEventInstallmentOnTime: 10,
		enums.TrustEventInstallmentLate:   -5,
		enums.TrustEventInstallmentMissed: -20,
	}
	for kind, want := range cases {
		got, ok := p.Delta(kind)
		require.True(t, ok, kind)
		assert.Equal(t, want, got, kind)
	}
	_, ok := p.Delta(enums.TrustEventRepaymentOverdue)
	assert.False(t, ok)
	assert.Equal(t, Bounds{Min: 0, Max: 1000}, p.Bounds())
	assert.Equal(t, 500, p.InitialScore())
}

func TestLatenessBuckets(t *testing.T) {
	p := Lateness()
	tests := []struct {
		name     string
		daysLate int
		disputed bool
		kind     enums.TrustEventKind
		delta    int
	}{
		{"early", -8, false, enums.TrustEventRepaymentEarly, 8},
		{"on time edge", -7, false, enums.TrustEventRepaymentOnTime, 5},
		{"on due date", 0, false, enums.TrustEventRepaymentOnTime, 5},
		{"slightly late", 7, false, enums.TrustEventRepaymentSlightlyLate, -5},
		{"very late", 10, false, enums.TrustEventRepaymentVeryLate, -10},
		{"very late edge", 30, false, enums.TrustEventRepaymentVeryLate, -10},
		{"overdue", 31, false, enums.TrustEventRepaymentOverdue, -20},
		{"disputed wins", -20, true, enums.TrustEventRepaymentDisputed, -15},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kind, delta, ok := p.DeltaForLateness(tc.daysLate, tc.disputed)
			require.True(t, ok)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.delta, delta)
		})
	}
	first, ok := p.Delta(enums.TrustEventFirstLoanBonus)
	require.True(t, ok)
	assert.Equal(t, 10, first)
}

func TestScoreStaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, p := range []Policy{Lifecycle(), Lateness()} {
		score := p.InitialScore()
		for i := 0; i < 500; i++ {
			score = Apply(p, score, rng.Intn(401)-200)
			require.GreaterOrEqual(t, score, p.Bounds().Min)
			require.LessOrEqual(t, score, p.Bounds().Max)
		}
	}
}

func TestNegativeStreakFloorsAtZero(t *testing.T) {
	p := Lifecycle()
	deltas := make([]int, 50)
	for i := range deltas {
		deltas[i] = -50
	}
	assert.Equal(t, 0, Replay(p, deltas))
}

func TestReplayClampsEachStep(t *testing.T) {
	p := Lateness()
	// 50 -> 0 -> 10 rather than 50 + (-100) + 10 = -40 clamped once.
	assert.Equal(t, 10, Replay(p, []int{-100, 10}))
}

func TestDaysLate(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 10, DaysLate(due, due.Add(10*24*time.Hour)))
	assert.Equal(t, 0, DaysLate(due, due.Add(2*time.Hour)))
	assert.Equal(t, -8, DaysLate(due, due.Add(-8*24*time.Hour)))
}

func TestByName(t *testing.T) {
	p, err := ByName(" Lateness ")
	require.NoError(t, err)
	assert.Equal(t, PolicyLateness, p.Name())

	_, err = ByName("blended")
	assert.Error(t, err)
}
