package trust

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/internal/limits"
	"github.com/angelmondragon/trustlend-backend/internal/scoring"
	"github.com/angelmondragon/trustlend-backend/internal/users"
	"github.com/angelmondragon/trustlend-backend/pkg/db"
	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
	"github.com/angelmondragon/trustlend-backend/pkg/metrics"
	"github.com/angelmondragon/trustlend-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the trust ledger: the only writer of trust scores.
type Service interface {
	// Append records one event in its own transaction. Lost races return CodeConflict.
	Append(ctx context.Context, input AppendInput) (*AppendResult, error)
	// AppendInTx records one event inside the caller's transaction. The caller
	// passes the result to Committed once that transaction commits.
	AppendInTx(ctx context.Context, tx *gorm.DB, input AppendInput) (*AppendResult, error)
	// Committed logs and counts an append made with AppendInTx.
	Committed(ctx context.Context, result *AppendResult)
	// RecordTrustEvent appends and retries the whole append on conflict.
	RecordTrustEvent(ctx context.Context, input AppendInput) (*AppendResult, error)
	RecordRepaymentOutcome(ctx context.Context, input RepaymentOutcomeInput) (*AppendResult, error)
	History(ctx context.Context, userID uuid.UUID) ([]models.TrustEvent, error)
	GetHistory(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryPage, error)
	ComputeLimits(ctx context.Context, userID uuid.UUID) (*LimitsView, error)
	DedupeRegistrationBonus(ctx context.Context, userID uuid.UUID) (int, error)
	Policy() scoring.Policy
}

// AppendInput describes one trust-changing fact.
type AppendInput struct {
	UserID        uuid.UUID
	Kind          enums.TrustEventKind
	RelatedLoanID *uuid.UUID
	Description   string
	Metadata      *EventMetadata
}

// AppendResult reports the score transition of an append.
type AppendResult struct {
	Event         *models.TrustEvent `json:"-"`
	PreviousScore int                `json:"previous_score"`
	NewScore      int                `json:"new_score"`
	Delta         int                `json:"delta"`
}

// RepaymentOutcomeInput scores a completed repayment by lateness.
type RepaymentOutcomeInput struct {
	UserID      uuid.UUID
	LoanID      uuid.UUID
	DueDate     time.Time
	CompletedAt time.Time
	Disputed    bool
}

// HistoryPage is one page of the ledger, newest first.
type HistoryPage struct {
	Events     []models.TrustEvent
	NextCursor string
}

// LimitsView pairs the current score with its borrowing limits.
type LimitsView struct {
	Score int `json:"score"`
	limits.Limits
}

type service struct {
	tx         txRunner
	repo       Repository
	users      *users.Repository
	policy     scoring.Policy
	limits     *limits.Policy
	maxRetries int
	logg       *logger.Logger
	metrics    *metrics.EngineMetrics
}

// Options wires the trust service.
type Options struct {
	Tx         txRunner
	Repo       Repository
	Users      *users.Repository
	Policy     scoring.Policy
	Limits     *limits.Policy
	MaxRetries int
	Logger     *logger.Logger
	Metrics    *metrics.EngineMetrics
}

// NewService wires a trust service.
func NewService(opts Options) (Service, error) {
	if opts.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if opts.Repo == nil {
		return nil, fmt.Errorf("trust repository required")
	}
	if opts.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if opts.Policy == nil {
		return nil, fmt.Errorf("score policy required")
	}
	if opts.Limits == nil {
		return nil, fmt.Errorf("limit policy required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	return &service{
		tx:         opts.Tx,
		repo:       opts.Repo,
		users:      opts.Users,
		policy:     opts.Policy,
		limits:     opts.Limits,
		maxRetries: opts.MaxRetries,
		logg:       opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

func (s *service) Policy() scoring.Policy {
	return s.policy
}

func (s *service) Append(ctx context.Context, input AppendInput) (*AppendResult, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}
	var result *AppendResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.appendInTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, s.translate(err)
	}
	s.Committed(ctx, result)
	return result, nil
}

func (s *service) AppendInTx(ctx context.Context, tx *gorm.DB, input AppendInput) (*AppendResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := s.validate(input); err != nil {
		return nil, err
	}
	result, err := s.appendInTx(ctx, tx, input)
	if err != nil {
		return nil, s.translate(err)
	}
	return result, nil
}

func (s *service) RecordTrustEvent(ctx context.Context, input AppendInput) (*AppendResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		result, err := s.Append(ctx, input)
		if err == nil {
			return result, nil
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return nil, err
		}
		lastErr = err
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "trust append conflict, retrying")
	}
	return nil, lastErr
}

func (s *service) RecordRepaymentOutcome(ctx context.Context, input RepaymentOutcomeInput) (*AppendResult, error) {
	if input.DueDate.IsZero() || input.CompletedAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "due date and completion date are required")
	}
	daysLate := scoring.DaysLate(input.DueDate, input.CompletedAt)
	kind, _, ok := s.policy.DeltaForLateness(daysLate, input.Disputed)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s policy does not score repayment lateness", s.policy.Name()))
	}
	loanID := input.LoanID
	due, completed := input.DueDate, input.CompletedAt
	return s.RecordTrustEvent(ctx, AppendInput{
		UserID:        input.UserID,
		Kind:          kind,
		RelatedLoanID: &loanID,
		Description:   fmt.Sprintf("Repayment completed %d day(s) relative to due date", daysLate),
		Metadata: &EventMetadata{
			DaysLate:    &daysLate,
			DueDate:     &due,
			CompletedAt: &completed,
		},
	})
}

func (s *service) validate(input AppendInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown trust event kind %q", input.Kind))
	}
	if _, ok := s.policy.Delta(input.Kind); !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s policy does not score %q", s.policy.Name(), input.Kind))
	}
	return nil
}

// appendInTx is the read-modify-write of one append: lock the user row, read
// the ledger head, insert the next sequence, compare-and-set the cached score.
func (s *service) appendInTx(ctx context.Context, tx *gorm.DB, input AppendInput) (*AppendResult, error) {
	userRepo := s.users.WithTx(tx)
	repo := s.repo.WithTx(tx)

	user, err := userRepo.FindByIDForUpdate(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	head, err := repo.LatestForUser(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger head")
	}

	previous := s.policy.InitialScore()
	var sequence int64 = 1
	if head != nil {
		previous = scoring.Clamp(s.policy, user.TrustScore)
		sequence = head.Sequence + 1
	}

	delta, _ := s.policy.Delta(input.Kind)
	next := scoring.Apply(s.policy, previous, delta)

	meta, err := encodeMetadata(input.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode metadata")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = defaultDescription(input.Kind)
	}

	event := &models.TrustEvent{
		UserID:         user.ID,
		Sequence:       sequence,
		Kind:           input.Kind,
		Policy:         s.policy.Name(),
		Delta:          delta,
		PreviousScore:  previous,
		ResultingScore: next,
		RelatedLoanID:  input.RelatedLoanID,
		Description:    description,
		Metadata:       meta,
	}
	if err := repo.Create(ctx, event); err != nil {
		if db.IsUniqueViolation(err, "idx_trust_events_user_sequence") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "trust ledger advanced concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert trust event")
	}
	if err := userRepo.UpdateTrustScore(ctx, user.ID, user.TrustVersion, next); err != nil {
		return nil, err
	}

	return &AppendResult{Event: event, PreviousScore: previous, NewScore: next, Delta: delta}, nil
}

func (s *service) translate(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		if typed.Code() == pkgerrors.CodeConflict {
			s.metrics.IncTrustConflict()
		}
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append trust event")
}

func (s *service) Committed(ctx context.Context, result *AppendResult) {
	if result == nil || result.Event == nil {
		return
	}
	kind := result.Event.Kind
	s.metrics.IncTrustEvent(string(kind))
	ctx = s.logg.WithFields(s.logg.WithUserID(ctx, result.Event.UserID.String()), map[string]any{
		"kind":           kind,
		"delta":          result.Delta,
		"previous_score": result.PreviousScore,
		"new_score":      result.NewScore,
		"sequence":       result.Event.Sequence,
	})
	s.logg.Info(ctx, "trust event appended")
}

func (s *service) History(ctx context.Context, userID uuid.UUID) ([]models.TrustEvent, error) {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return nil, err
	}
	events, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list trust events")
	}
	return events, nil
}

func (s *service) GetHistory(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return nil, err
	}
	before, err := pagination.ParseSequence(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	events, err := s.repo.ListPage(ctx, userID, before, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list trust events")
	}
	rows, last := pagination.Trim(events, params.Limit)
	page := &HistoryPage{Events: rows}
	if last != nil {
		page.NextCursor = pagination.EncodeSequence(last.Sequence)
	}
	return page, nil
}

func (s *service) ComputeLimits(ctx context.Context, userID uuid.UUID) (*LimitsView, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	score := scoring.Clamp(s.policy, user.TrustScore)
	exempt := s.limits.IsExempt(user.ID, user.Email)
	return &LimitsView{Score: score, Limits: s.limits.LimitsFor(score, exempt)}, nil
}

// DedupeRegistrationBonus removes every registration bonus but the oldest,
// then appends a registration_bonus_reversed event moving the ledger head to
// the score replayed from the surviving events. It returns how many events
// were removed.
func (s *service) DedupeRegistrationBonus(ctx context.Context, userID uuid.UUID) (int, error) {
	removed := 0
	var reversal *AppendResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.users.WithTx(tx)
		repo := s.repo.WithTx(tx)

		user, err := userRepo.FindByIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return err
		}
		bonuses, err := repo.ListByKind(ctx, userID, enums.TrustEventRegistrationBonus)
		if err != nil {
			return err
		}
		if len(bonuses) <= 1 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(bonuses)-1)
		for _, e := range bonuses[1:] {
			ids = append(ids, e.ID)
		}
		if err := repo.DeleteByIDs(ctx, ids); err != nil {
			return err
		}

		remaining, err := repo.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return pkgerrors.New(pkgerrors.CodeInternal, "ledger empty after dedupe")
		}
		// Earlier reversals compensate for events that are already gone.
		deltas := make([]int, 0, len(remaining))
		for i := len(remaining) - 1; i >= 0; i-- {
			if remaining[i].Kind == enums.TrustEventRegistrationBonusReversed {
				continue
			}
			deltas = append(deltas, remaining[i].Delta)
		}
		head := remaining[0]
		replayed := scoring.Replay(s.policy, deltas)

		event := &models.TrustEvent{
			UserID:         userID,
			Sequence:       head.Sequence + 1,
			Kind:           enums.TrustEventRegistrationBonusReversed,
			Policy:         s.policy.Name(),
			Delta:          replayed - head.ResultingScore,
			PreviousScore:  head.ResultingScore,
			ResultingScore: replayed,
			Description:    defaultDescription(enums.TrustEventRegistrationBonusReversed),
		}
		event.Metadata, err = encodeMetadata(&EventMetadata{Extra: map[string]any{"removed_event_ids": ids}})
		if err != nil {
			return err
		}
		if err := repo.Create(ctx, event); err != nil {
			if db.IsUniqueViolation(err, "idx_trust_events_user_sequence") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "trust ledger advanced concurrently")
			}
			return err
		}
		if err := userRepo.UpdateTrustScore(ctx, userID, user.TrustVersion, replayed); err != nil {
			return err
		}
		removed = len(ids)
		reversal = &AppendResult{Event: event, PreviousScore: event.PreviousScore, NewScore: replayed, Delta: event.Delta}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return 0, err
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "dedupe registration bonus")
	}
	if removed > 0 {
		s.Committed(ctx, reversal)
		ctx = s.logg.WithFields(s.logg.WithUserID(ctx, userID.String()), map[string]any{"removed": removed})
		s.logg.Info(ctx, "duplicate registration bonus events removed")
	}
	return removed, nil
}

func (s *service) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}

func defaultDescription(kind enums.TrustEventKind) string {
	return strings.ReplaceAll(string(kind), "_", " ")
}
