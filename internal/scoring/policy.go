// Package scoring maps trust events to score deltas and folds them into a
// bounded running score. Two policies exist with independent tables and bounds;
// a process uses exactly one of them.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

const (
	PolicyLifecycle = "lifecycle"
	PolicyLateness  = "lateness"
)

// Bounds is the inclusive score range of a policy.
type Bounds struct {
	Min int
	Max int
}

// Policy is a named score table.
type Policy interface {
	Name() string
	Bounds() Bounds
	InitialScore() int
	// Delta returns the flat delta for kind, or false when the policy does not score it.
	Delta(kind enums.TrustEventKind) (int, bool)
	// DeltaForLateness maps daysLate to the bucket event kind and its delta.
	DeltaForLateness(daysLate int, disputed bool) (enums.TrustEventKind, int, bool)
}

type tablePolicy struct {
	name    string
	bounds  Bounds
	initial int
	deltas  map[enums.TrustEventKind]int
	buckets func(daysLate int, disputed bool) (enums.TrustEventKind, bool)
}

func (p *tablePolicy) Name() string      { return p.name }
func (p *tablePolicy) Bounds() Bounds    { return p.bounds }
func (p *tablePolicy) InitialScore() int { return p.initial }

func (p *tablePolicy) Delta(kind enums.TrustEventKind) (int, bool) {
	delta, ok := p.deltas[kind]
	return delta, ok
}

func (p *tablePolicy) DeltaForLateness(daysLate int, disputed bool) (enums.TrustEventKind, int, bool) {
	if p.buckets == nil {
		return "", 0, false
	}
	kind, ok := p.buckets(daysLate, disputed)
	if !ok {
		return "", 0, false
	}
	delta, ok := p.deltas[kind]
	return kind, delta, ok
}

// Lifecycle scores loan lifecycle transitions within [0, 1000].
func Lifecycle() Policy {
	return &tablePolicy{
		name:    PolicyLifecycle,
		bounds:  Bounds{Min: 0, Max: 1000},
		initial: 500,
		deltas: map[enums.TrustEventKind]int{
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
			enums.TrustEventRegistrationBonus: 10,
		},
		buckets: lifecycleBucket,
	}
}

// Lateness scores repayments by how late they completed within [0, 150].
// Loan creation and blacklist reports are recorded for audit with a zero delta;
// other lifecycle kinds are not scored.
func Lateness() Policy {
	return &tablePolicy{
		name:    PolicyLateness,
		bounds:  Bounds{Min: 0, Max: 150},
		initial: 50,
		deltas: map[enums.TrustEventKind]int{
			enums.TrustEventRepaymentEarly:        8,
			enums.TrustEventRepaymentOnTime:       5,
			enums.TrustEventRepaymentSlightlyLate: -5,
			enums.TrustEventRepaymentVeryLate:     -10,
			enums.TrustEventRepaymentOverdue:      -20,
			enums.TrustEventRepaymentDisputed:     -15,
			enums.TrustEventFirstLoanBonus:        10,
			enums.TrustEventRegistrationBonus:     10,
			enums.TrustEventLoanCreated:           0,
			enums.TrustEventBlacklistReported:     0,
		},
		buckets: latenessBucket,
	}
}

func latenessBucket(daysLate int, disputed bool) (enums.TrustEventKind, bool) {
	switch {
	case disputed:
		return enums.TrustEventRepaymentDisputed, true
	case daysLate < -7:
		return enums.TrustEventRepaymentEarly, true
	case daysLate <= 0:
		return enums.TrustEventRepaymentOnTime, true
	case daysLate <= 7:
		return enums.TrustEventRepaymentSlightlyLate, true
	case daysLate <= 30:
		return enums.TrustEventRepaymentVeryLate, true
	default:
		return enums.TrustEventRepaymentOverdue, true
	}
}

func lifecycleBucket(daysLate int, disputed bool) (enums.TrustEventKind, bool) {
	switch {
	case disputed:
		return enums.TrustEventDisputeRaised, true
	case daysLate < 0:
		return enums.TrustEventRepaymentEarly, true
	case daysLate == 0:
		return enums.TrustEventRepaymentOnTime, true
	default:
		return enums.TrustEventRepaymentLate, true
	}
}

// ByName resolves a configured policy name.
func ByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyLifecycle:
		return Lifecycle(), nil
	case PolicyLateness:
		return Lateness(), nil
	default:
		return nil, fmt.Errorf("unknown score policy %q", name)
	}
}

// Clamp bounds score to the policy range.
func Clamp(p Policy, score int) int {
	b := p.Bounds()
	if score < b.Min {
		return b.Min
	}
	if score > b.Max {
		return b.Max
	}
	return score
}

// Apply adds delta to previous and clamps the result.
func Apply(p Policy, previous, delta int) int {
	return Clamp(p, previous+delta)
}

// Replay folds deltas from the initial score, clamping after every step.
func Replay(p Policy, deltas []int) int {
	score := p.InitialScore()
	for _, d := range deltas {
		score = Apply(p, score, d)
	}
	return score
}

// DaysLate returns whole days between due and completed; negative means early.
func DaysLate(dueDate, completedAt time.Time) int {
	return int(math.Floor(completedAt.Sub(dueDate).Hours() / 24))
}
