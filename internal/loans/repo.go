package loans

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

// Repository reads and writes loans together with their repayments and disputes.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a loans repository bound to the provided database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	if err := r.db.WithContext(ctx).First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// ListForUser returns every loan where the user is borrower or lender, oldest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error) {
	var loans []models.Loan
	if err := r.db.WithContext(ctx).
		Where("borrower_id = ? OR lender_id = ?", userID, userID).
		Order("created_at ASC").
		Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// CountActiveAsBorrower counts the borrower's loans that still occupy a slot.
func (r *Repository) CountActiveAsBorrower(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("borrower_id = ? AND status IN ?", userID, enums.OpenLoanStatuses).
		Count(&count).Error
	return count, err
}

func (r *Repository) CreateRepayment(ctx context.Context, repayment *models.Repayment) error {
	return r.db.WithContext(ctx).Create(repayment).Error
}

// ListRepaymentsForUser returns repayments the user sent or received.
func (r *Repository) ListRepaymentsForUser(ctx context.Context, userID uuid.UUID) ([]models.Repayment, error) {
	var repayments []models.Repayment
	if err := r.db.WithContext(ctx).
		Where("payer_id = ? OR payee_id = ?", userID, userID).
		Order("created_at ASC").
		Find(&repayments).Error; err != nil {
		return nil, err
	}
	return repayments, nil
}

func (r *Repository) CreateDispute(ctx context.Context, dispute *models.Dispute) error {
	return r.db.WithContext(ctx).Create(dispute).Error
}

// ListDisputesForUser returns dispute threads the user raised or is named in.
func (r *Repository) ListDisputesForUser(ctx context.Context, userID uuid.UUID) ([]models.Dispute, error) {
	var disputes []models.Dispute
	if err := r.db.WithContext(ctx).
		Where("raised_by_id = ? OR against_id = ?", userID, userID).
		Order("created_at ASC").
		Find(&disputes).Error; err != nil {
		return nil, err
	}
	return disputes, nil
}
