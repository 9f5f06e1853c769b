package fraud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/trustlend-backend/internal/profiler"
	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
	"github.com/angelmondragon/trustlend-backend/pkg/metrics"
	"github.com/angelmondragon/trustlend-backend/pkg/pagination"
)

type snapshotProfiler interface {
	Profile(ctx context.Context, userID uuid.UUID) (*profiler.Snapshot, error)
}

// Blocker bars a user after a critical alert.
type Blocker interface {
	BlockAutomatically(ctx context.Context, userID uuid.UUID, alert *models.FraudAlert) error
}

// Service runs fraud checks against live data.
type Service interface {
	// RunFraudCheck profiles the user, scores the snapshot against its lending
	// neighbourhood, persists any alert and auto-blocks on critical severity.
	// It returns nil when no rule pushes the score over the alert threshold.
	RunFraudCheck(ctx context.Context, userID uuid.UUID, requested *decimal.Decimal) (*models.FraudAlert, error)
	ListAlerts(ctx context.Context, userID uuid.UUID, params pagination.Params) (*AlertPage, error)
}

// AlertPage is one page of persisted alerts.
type AlertPage struct {
	Alerts     []models.FraudAlert
	NextCursor string
}

type service struct {
	detector      *Detector
	profiler      snapshotProfiler
	repo          Repository
	blocker       Blocker
	maxPopulation int
	maxHops       int
	logg          *logger.Logger
	metrics       *metrics.EngineMetrics
}

// Options wires the fraud service.
type Options struct {
	Detector      *Detector
	Profiler      snapshotProfiler
	Repo          Repository
	Blocker       Blocker
	MaxPopulation int
	Logger        *logger.Logger
	Metrics       *metrics.EngineMetrics
}

// NewService wires a fraud service.
func NewService(opts Options) (Service, error) {
	if opts.Detector == nil {
		return nil, fmt.Errorf("detector required")
	}
	if opts.Profiler == nil {
		return nil, fmt.Errorf("profiler required")
	}
	if opts.Repo == nil {
		return nil, fmt.Errorf("fraud repository required")
	}
	if opts.Blocker == nil {
		return nil, fmt.Errorf("blocker required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		detector:      opts.Detector,
		profiler:      opts.Profiler,
		repo:          opts.Repo,
		blocker:       opts.Blocker,
		maxPopulation: opts.MaxPopulation,
		maxHops:       opts.Detector.t.CircularMaxHops,
		logg:          opts.Logger,
		metrics:       opts.Metrics,
	}, nil
}

func (s *service) RunFraudCheck(ctx context.Context, userID uuid.UUID, requested *decimal.Decimal) (*models.FraudAlert, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if requested != nil && !requested.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requested amount must be positive")
	}

	snap, err := s.profiler.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	population, err := s.neighbourhood(ctx, snap)
	if err != nil {
		return nil, err
	}

	alert := s.detector.Detect(snap, requested, population)
	if alert == nil {
		s.metrics.IncFraudCheck("")
		return nil, nil
	}
	s.metrics.IncFraudCheck(string(alert.Severity))

	record, err := toModel(alert)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode fraud alert")
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist fraud alert")
	}

	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, userID.String()), map[string]any{
		"alert_id":        record.ID.String(),
		"severity":        record.Severity,
		"suspicion_score": record.SuspicionScore,
		"red_flags":       alert.RedFlags,
	})
	s.logg.Warn(logCtx, "fraud alert raised")

	if alert.Severity == enums.FraudSeverityCritical {
		if err := s.blocker.BlockAutomatically(ctx, userID, record); err != nil {
			s.logg.Error(logCtx, "automatic blacklist failed", err)
			return record, err
		}
	}
	return record, nil
}

// neighbourhood collects snapshots reachable over "lent to" edges within the
// circular-lending hop limit, capped at maxPopulation.
func (s *service) neighbourhood(ctx context.Context, subject *profiler.Snapshot) ([]*profiler.Snapshot, error) {
	if s.maxPopulation <= 0 || len(subject.LentTo) == 0 {
		return nil, nil
	}
	population := []*profiler.Snapshot{subject}
	seen := map[uuid.UUID]bool{subject.UserID: true}
	frontier := subject.LentTo
	for depth := 1; depth < s.maxHops && len(frontier) > 0; depth++ {
		var next []uuid.UUID
		for _, id := range frontier {
			if seen[id] {
				continue
			}
			if len(population) >= s.maxPopulation {
				return population, nil
			}
			seen[id] = true
			snap, err := s.profiler.Profile(ctx, id)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					continue
				}
				return nil, err
			}
			population = append(population, snap)
			next = append(next, snap.LentTo...)
		}
		frontier = next
	}
	return population, nil
}

func (s *service) ListAlerts(ctx context.Context, userID uuid.UUID, params pagination.Params) (*AlertPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	alerts, err := s.repo.ListByUser(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list fraud alerts")
	}
	rows, last := pagination.Trim(alerts, params.Limit)
	page := &AlertPage{Alerts: rows}
	if last != nil {
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func toModel(alert *Alert) (*models.FraudAlert, error) {
	details, err := json.Marshal(alert.Details)
	if err != nil {
		return nil, err
	}
	record := &models.FraudAlert{
		UserID:         alert.UserID,
		AlertType:      alert.Type,
		Severity:       alert.Severity,
		SuspicionScore: alert.SuspicionScore,
		RedFlags:       datatypes.JSONSlice[string](alert.RedFlags),
		Details:        datatypes.JSON(details),
		ActionTaken:    alert.Action,
	}
	if alert.RequestedAmount != nil {
		amount := alert.RequestedAmount.String()
		record.RequestedAmount = &amount
	}
	return record, nil
}
