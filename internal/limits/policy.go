package limits

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/trustlend-backend/pkg/config"
)

// Limits are the effective borrowing limits for a score.
type Limits struct {
	Tier           string          `json:"tier"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	MaxActiveLoans int             `json:"max_active_loans"`
	Exempt         bool            `json:"exempt"`
}

// Policy selects limits from an ascending tier table. It is immutable after construction.
type Policy struct {
	tiers        config.TierTable
	exemptIDs    map[uuid.UUID]struct{}
	exemptEmails map[string]struct{}
}

// NewPolicy copies the tier table and exempt identities from config.
func NewPolicy(cfg config.LimitsConfig) *Policy {
	p := &Policy{
		tiers:        append(config.TierTable(nil), cfg.Tiers...),
		exemptIDs:    map[uuid.UUID]struct{}{},
		exemptEmails: map[string]struct{}{},
	}
	for _, raw := range cfg.ExemptUserIDs {
		if id, err := uuid.Parse(strings.TrimSpace(raw)); err == nil {
			p.exemptIDs[id] = struct{}{}
		}
	}
	for _, email := range cfg.ExemptEmails {
		if email = normalizeEmail(email); email != "" {
			p.exemptEmails[email] = struct{}{}
		}
	}
	return p
}

// IsExempt reports whether the identity is allow-listed.
func (p *Policy) IsExempt(userID uuid.UUID, email string) bool {
	if _, ok := p.exemptIDs[userID]; ok {
		return true
	}
	_, ok := p.exemptEmails[normalizeEmail(email)]
	return ok
}

// LimitsFor maps score to a tier. Exempt identities get the top tier; scores
// below the first threshold, negative ones included, get the lowest.
func (p *Policy) LimitsFor(score int, exempt bool) Limits {
	if len(p.tiers) == 0 {
		return Limits{Exempt: exempt}
	}
	if exempt {
		return fromTier(p.tiers[len(p.tiers)-1], true)
	}
	selected := p.tiers[0]
	for _, tier := range p.tiers[1:] {
		if score < tier.MinScore {
			break
		}
		selected = tier
	}
	return fromTier(selected, false)
}

// Tiers returns a copy of the configured table.
func (p *Policy) Tiers() config.TierTable {
	return append(config.TierTable(nil), p.tiers...)
}

func fromTier(t config.Tier, exempt bool) Limits {
	return Limits{
		Tier:           t.Name,
		MaxAmount:      t.MaxAmount,
		MaxActiveLoans: t.MaxActiveLoans,
		Exempt:         exempt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
