package trust

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

// Repository manages persistence for trust events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.TrustEvent) error
	// LatestForUser returns the highest-sequence event, or nil when the ledger is empty.
	LatestForUser(ctx context.Context, userID uuid.UUID) (*models.TrustEvent, error)
	// ListByUser returns the whole ledger, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.TrustEvent, error)
	// ListPage returns up to limit events with sequence below beforeSeq (0 means from the newest).
	ListPage(ctx context.Context, userID uuid.UUID, beforeSeq int64, limit int) ([]models.TrustEvent, error)
	ListByKind(ctx context.Context, userID uuid.UUID, kind enums.TrustEventKind) ([]models.TrustEvent, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a trust ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.TrustEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) LatestForUser(ctx context.Context, userID uuid.UUID) (*models.TrustEvent, error) {
	var events []models.TrustEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sequence DESC").
		Limit(1).
		Find(&events).Error; err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.TrustEvent, error) {
	var events []models.TrustEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sequence DESC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListPage(ctx context.Context, userID uuid.UUID, beforeSeq int64, limit int) ([]models.TrustEvent, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sequence DESC").
		Limit(limit)
	if beforeSeq > 0 {
		query = query.Where("sequence < ?", beforeSeq)
	}
	var events []models.TrustEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListByKind(ctx context.Context, userID uuid.UUID, kind enums.TrustEventKind) ([]models.TrustEvent, error) {
	var events []models.TrustEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		Order("sequence ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.TrustEvent{}).Error
}
