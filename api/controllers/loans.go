package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/trustlend-backend/api/responses"
	"github.com/angelmondragon/trustlend-backend/api/validators"
	"github.com/angelmondragon/trustlend-backend/internal/limits"
	"github.com/angelmondragon/trustlend-backend/internal/loans"
	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
)

type loanService interface {
	RequestLoan(ctx context.Context, input loans.RequestInput) (*loans.RequestResult, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error)
}

// LoanDTO is the public shape of a loan.
type LoanDTO struct {
	ID          uuid.UUID       `json:"id"`
	BorrowerID  uuid.UUID       `json:"borrower_id"`
	LenderID    *uuid.UUID      `json:"lender_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Purpose     string          `json:"purpose,omitempty"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	FundedAt    *time.Time      `json:"funded_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func loanFromModel(l *models.Loan) LoanDTO {
	return LoanDTO{
		ID:          l.ID,
		BorrowerID:  l.BorrowerID,
		LenderID:    l.LenderID,
		Amount:      l.Amount,
		Status:      string(l.Status),
		Purpose:     l.Purpose,
		DueDate:     l.DueDate,
		FundedAt:    l.FundedAt,
		CompletedAt: l.CompletedAt,
		CreatedAt:   l.CreatedAt,
	}
}

type requestLoanRequest struct {
	LenderID *string         `json:"lender_id,omitempty" validate:"omitempty,uuid"`
	Amount   decimal.Decimal `json:"amount"`
	Purpose  string          `json:"purpose" validate:"max=280"`
	DueDate  *time.Time      `json:"due_date,omitempty"`
}

type requestLoanResponse struct {
	Loan       LoanDTO        `json:"loan"`
	TrustScore int            `json:"trust_score"`
	Limits     *limits.Limits `json:"limits,omitempty"`
	// Flagged marks a request that raised a non-blocking fraud alert.
	Flagged bool `json:"flagged"`
}

// RequestLoan runs the guarded loan request for the caller.
func RequestLoan(svc loanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		borrowerID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body requestLoanRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := loans.RequestInput{
			BorrowerID: borrowerID,
			Amount:     body.Amount,
			Purpose:    validators.SanitizeString(body.Purpose, 280),
			DueDate:    body.DueDate,
		}
		if body.LenderID != nil {
			lenderID := uuid.MustParse(*body.LenderID)
			input.LenderID = &lenderID
		}

		res, err := svc.RequestLoan(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := requestLoanResponse{Loan: loanFromModel(res.Loan), Flagged: res.Alert != nil}
		if res.Limits != nil {
			resp.TrustScore = res.Limits.Score
			resp.Limits = &res.Limits.Limits
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// ListLoans returns the loans the caller borrowed or lent.
func ListLoans(svc loanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]LoanDTO, 0, len(list))
		for i := range list {
			out = append(out, loanFromModel(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
