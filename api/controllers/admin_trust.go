package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trustlend-backend/api/responses"
	"github.com/angelmondragon/trustlend-backend/api/validators"
	"github.com/angelmondragon/trustlend-backend/internal/trust"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
)

type trustRecorder interface {
	RecordTrustEvent(ctx context.Context, input trust.AppendInput) (*trust.AppendResult, error)
}

type repaymentRecorder interface {
	RecordRepaymentOutcome(ctx context.Context, input trust.RepaymentOutcomeInput) (*trust.AppendResult, error)
}

type bonusDeduper interface {
	DedupeRegistrationBonus(ctx context.Context, userID uuid.UUID) (int, error)
}

type recordTrustEventRequest struct {
	UserID        string               `json:"user_id" validate:"required,uuid"`
	Kind          string               `json:"kind" validate:"required"`
	RelatedLoanID *string              `json:"related_loan_id,omitempty" validate:"omitempty,uuid"`
	Description   string               `json:"description" validate:"max=500"`
	Metadata      *trust.EventMetadata `json:"metadata,omitempty"`
}

type recordRepaymentRequest struct {
	UserID      string    `json:"user_id" validate:"required,uuid"`
	LoanID      string    `json:"loan_id" validate:"required,uuid"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	CompletedAt time.Time `json:"completed_at" validate:"required"`
	Disputed    bool      `json:"disputed"`
}

type trustEventResponse struct {
	PreviousScore int           `json:"previous_score"`
	NewScore      int           `json:"new_score"`
	Delta         int           `json:"delta"`
	Event         TrustEventDTO `json:"event"`
}

func writeAppendResult(w http.ResponseWriter, r *http.Request, res *trust.AppendResult, logg *logger.Logger) {
	resp := trustEventResponse{
		PreviousScore: res.PreviousScore,
		NewScore:      res.NewScore,
		Delta:         res.Delta,
	}
	if res.Event != nil {
		dto, err := trustEventFromModel(*res.Event)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp.Event = dto
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, resp)
}

// AdminRecordTrustEvent appends a manual ledger entry for any user.
func AdminRecordTrustEvent(svc trustRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body recordTrustEventRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseTrustEventKind(body.Kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind"))
			return
		}

		input := trust.AppendInput{
			UserID:      uuid.MustParse(body.UserID),
			Kind:        kind,
			Description: validators.SanitizeString(body.Description, 500),
			Metadata:    body.Metadata,
		}
		if body.RelatedLoanID != nil {
			loanID := uuid.MustParse(*body.RelatedLoanID)
			input.RelatedLoanID = &loanID
		}

		res, err := svc.RecordTrustEvent(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeAppendResult(w, r, res, logg)
	}
}

// AdminRecordRepayment scores a completed repayment by its lateness.
func AdminRecordRepayment(svc repaymentRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body recordRepaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.RecordRepaymentOutcome(r.Context(), trust.RepaymentOutcomeInput{
			UserID:      uuid.MustParse(body.UserID),
			LoanID:      uuid.MustParse(body.LoanID),
			DueDate:     body.DueDate,
			CompletedAt: body.CompletedAt,
			Disputed:    body.Disputed,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeAppendResult(w, r, res, logg)
	}
}

// AdminDedupeRegistrationBonus removes duplicate registration bonuses for one user.
func AdminDedupeRegistrationBonus(svc bonusDeduper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		removed, err := svc.DedupeRegistrationBonus(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"user_id": userID, "removed": removed})
	}
}
