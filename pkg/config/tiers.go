package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is one band of the borrowing limit table.
type Tier struct {
	Name           string
	MinScore       int
	MaxAmount      decimal.Decimal
	MaxActiveLoans int
}

// TierTable is decoded from "Name:minScore:maxAmount:maxActiveLoans" entries
// separated by commas, ordered by ascending MinScore.
type TierTable []Tier

// Decode implements envconfig.Decoder.
func (t *TierTable) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*t = nil
		return nil
	}

	var tiers TierTable
	for _, raw := range strings.Split(value, ",") {
		parts := strings.Split(strings.TrimSpace(raw), ":")
		if len(parts) != 4 {
			return fmt.Errorf("invalid tier %q (expected name:min_score:max_amount:max_active_loans)", raw)
		}
		minScore, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return fmt.Errorf("tier %q min score: %w", parts[0], err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil {
			return fmt.Errorf("tier %q max amount: %w", parts[0], err)
		}
		active, err := strconv.Atoi(strings.TrimSpace(parts[3]))
		if err != nil {
			return fmt.Errorf("tier %q max active loans: %w", parts[0], err)
		}
		tiers = append(tiers, Tier{
			Name:           strings.TrimSpace(parts[0]),
			MinScore:       minScore,
			MaxAmount:      amount,
			MaxActiveLoans: active,
		})
	}
	*t = tiers
	return nil
}

// DefaultTiers returns the built-in tier table scaled to the named score
// policy. Unknown names fall back to the lateness table.
func DefaultTiers(policy string) TierTable {
	spec, ok := defaultTierSpecs[policy]
	if !ok {
		spec = defaultTierSpecs[ScorePolicyLateness]
	}
	var tiers TierTable
	if err := tiers.Decode(spec); err != nil {
		panic(fmt.Sprintf("default tiers for %s: %v", policy, err))
	}
	return tiers
}

// validate checks ordering and, when ceiling is positive, that every tier is
// reachable on the policy's score scale.
func (t TierTable) validate(ceiling int) error {
	if len(t) == 0 {
		return fmt.Errorf("%s must define at least one tier", EnvLimitTiers)
	}
	if top := t[len(t)-1]; ceiling > 0 && top.MinScore > ceiling {
		return fmt.Errorf("%s: tier %q starts at %d, above the score maximum %d", EnvLimitTiers, top.Name, top.MinScore, ceiling)
	}
	for i := 1; i < len(t); i++ {
		prev, cur := t[i-1], t[i]
		if cur.MinScore <= prev.MinScore {
			return fmt.Errorf("%s: tier %q must start above %q", EnvLimitTiers, cur.Name, prev.Name)
		}
		if cur.MaxAmount.LessThan(prev.MaxAmount) || cur.MaxActiveLoans < prev.MaxActiveLoans {
			return fmt.Errorf("%s: tier %q limits must not shrink", EnvLimitTiers, cur.Name)
		}
	}
	return nil
}
