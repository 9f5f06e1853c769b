package blacklist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/internal/trust"
	"github.com/angelmondragon/trustlend-backend/internal/users"
	"github.com/angelmondragon/trustlend-backend/pkg/db"
	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
	"github.com/angelmondragon/trustlend-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ledger interface {
	AppendInTx(ctx context.Context, tx *gorm.DB, input trust.AppendInput) (*trust.AppendResult, error)
	Committed(ctx context.Context, result *trust.AppendResult)
}

// Service manages platform bans.
type Service interface {
	Block(ctx context.Context, input BlockInput) (*models.BlacklistEntry, error)
	// BlockAutomatically bars the user on behalf of the system after a critical
	// alert. An existing active entry is left untouched.
	BlockAutomatically(ctx context.Context, userID uuid.UUID, alert *models.FraudAlert) error
	// Remove deactivates the active entry and clears the user's flag.
	Remove(ctx context.Context, userID uuid.UUID) (*models.BlacklistEntry, error)
	IsBlocked(ctx context.Context, userID uuid.UUID) (bool, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.BlacklistEntry, error)
}

// BlockInput describes a new ban. A nil ExpiresAt bans permanently.
type BlockInput struct {
	UserID       uuid.UUID
	Reason       string
	ReporterKind enums.ReporterKind
	ReporterID   *uuid.UUID
	Evidence     string
	Severity     enums.FraudSeverity
	ExpiresAt    *time.Time
	FraudAlertID *uuid.UUID
}

type service struct {
	tx      txRunner
	repo    Repository
	users   *users.Repository
	ledger  ledger
	now     func() time.Time
	logg    *logger.Logger
	metrics *metrics.EngineMetrics
}

// Options wires the blacklist service.
type Options struct {
	Tx      txRunner
	Repo    Repository
	Users   *users.Repository
	Ledger  ledger
	Now     func() time.Time
	Logger  *logger.Logger
	Metrics *metrics.EngineMetrics
}

// NewService wires a blacklist service.
func NewService(opts Options) (Service, error) {
	if opts.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if opts.Repo == nil {
		return nil, fmt.Errorf("blacklist repository required")
	}
	if opts.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("trust ledger required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &service{
		tx:      opts.Tx,
		repo:    opts.Repo,
		users:   opts.Users,
		ledger:  opts.Ledger,
		now:     opts.Now,
		logg:    opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

func (s *service) Block(ctx context.Context, input BlockInput) (*models.BlacklistEntry, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}
	var (
		entry    *models.BlacklistEntry
		reported *trust.AppendResult
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, reported, err = s.blockInTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, wrapInternal(err, "block user")
	}
	s.ledger.Committed(ctx, reported)

	s.metrics.IncBlacklist("created", string(entry.ReporterKind))
	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, input.UserID.String()), map[string]any{
		"entry_id":      entry.ID.String(),
		"reporter_kind": entry.ReporterKind,
		"severity":      entry.Severity,
	})
	s.logg.Info(logCtx, "blacklist entry created")
	return entry, nil
}

func (s *service) blockInTx(ctx context.Context, tx *gorm.DB, input BlockInput) (*models.BlacklistEntry, *trust.AppendResult, error) {
	userRepo := s.users.WithTx(tx)
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	if _, err := userRepo.FindByIDForUpdate(ctx, input.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, nil, err
	}

	current, err := repo.FindActive(ctx, input.UserID)
	if err != nil {
		return nil, nil, err
	}
	if current != nil {
		if current.ActiveAt(now) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "user already has an active blacklist entry")
		}
		if err := repo.Deactivate(ctx, current.ID, now); err != nil {
			return nil, nil, err
		}
	}

	entry := &models.BlacklistEntry{
		UserID:       input.UserID,
		Reason:       strings.TrimSpace(input.Reason),
		ReporterKind: input.ReporterKind,
		ReporterID:   input.ReporterID,
		Evidence:     strings.TrimSpace(input.Evidence),
		Severity:     input.Severity,
		IsActive:     true,
		ExpiresAt:    input.ExpiresAt,
	}
	if err := repo.Create(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, "idx_blacklist_entries_active_user") {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "user already has an active blacklist entry")
		}
		return nil, nil, err
	}
	if err := userRepo.SetBlacklisted(ctx, input.UserID, true); err != nil {
		return nil, nil, err
	}

	reported, err := s.ledger.AppendInTx(ctx, tx, trust.AppendInput{
		UserID:      input.UserID,
		Kind:        enums.TrustEventBlacklistReported,
		Description: entry.Reason,
		Metadata: &trust.EventMetadata{
			ReporterKind: input.ReporterKind,
			ReporterID:   input.ReporterID,
			FraudAlertID: input.FraudAlertID,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, reported, nil
}

func (s *service) BlockAutomatically(ctx context.Context, userID uuid.UUID, alert *models.FraudAlert) error {
	active, err := s.repo.FindActive(ctx, userID)
	if err != nil {
		return wrapInternal(err, "load blacklist entry")
	}
	if active != nil && active.ActiveAt(s.now()) {
		return nil
	}

	input := BlockInput{
		UserID:       userID,
		Reason:       "Automatic block after critical fraud alert",
		ReporterKind: enums.ReporterSystem,
		Severity:     enums.FraudSeverityCritical,
	}
	if alert != nil {
		input.Evidence = strings.Join(alert.RedFlags, "; ")
		if alert.ID != uuid.Nil {
			id := alert.ID
			input.FraudAlertID = &id
		}
	}
	_, err = s.Block(ctx, input)
	if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		return nil
	}
	return err
}

func (s *service) Remove(ctx context.Context, userID uuid.UUID) (*models.BlacklistEntry, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	var entry *models.BlacklistEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindActive(ctx, userID)
		if err != nil {
			return err
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no active blacklist entry")
		}
		now := s.now().UTC()
		if err := repo.Deactivate(ctx, current.ID, now); err != nil {
			return err
		}
		if err := s.users.WithTx(tx).SetBlacklisted(ctx, userID, false); err != nil {
			return err
		}
		current.IsActive = false
		current.DeactivatedAt = &now
		entry = current
		return nil
	})
	if err != nil {
		return nil, wrapInternal(err, "remove blacklist entry")
	}

	s.metrics.IncBlacklist("removed", string(entry.ReporterKind))
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, userID.String()), map[string]any{"entry_id": entry.ID.String()}), "blacklist entry deactivated")
	return entry, nil
}

func (s *service) IsBlocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	active, err := s.repo.FindActive(ctx, userID)
	if err != nil {
		return false, wrapInternal(err, "load blacklist entry")
	}
	return active != nil && active.ActiveAt(s.now()), nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.BlacklistEntry, error) {
	entries, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, wrapInternal(err, "list blacklist entries")
	}
	return entries, nil
}

func (s *service) validate(input BlockInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if !input.Severity.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid severity %q", input.Severity))
	}
	switch input.ReporterKind {
	case enums.ReporterUser:
		if input.ReporterID == nil || *input.ReporterID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "reporter id is required for user reports")
		}
	case enums.ReporterSystem:
		if input.ReporterID != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "system reports carry no reporter id")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid reporter kind %q", input.ReporterKind))
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "expiry must be in the future")
	}
	return nil
}

func wrapInternal(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
