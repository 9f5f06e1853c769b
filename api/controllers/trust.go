package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trustlend-backend/api/responses"
	"github.com/angelmondragon/trustlend-backend/api/validators"
	"github.com/angelmondragon/trustlend-backend/internal/trust"
	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
	"github.com/angelmondragon/trustlend-backend/pkg/pagination"
)

type limitsReader interface {
	ComputeLimits(ctx context.Context, userID uuid.UUID) (*trust.LimitsView, error)
}

type historyReader interface {
	GetHistory(ctx context.Context, userID uuid.UUID, params pagination.Params) (*trust.HistoryPage, error)
}

// TrustEventDTO is the public shape of a ledger entry.
type TrustEventDTO struct {
	ID             uuid.UUID            `json:"id"`
	Sequence       int64                `json:"sequence"`
	Kind           string               `json:"kind"`
	Policy         string               `json:"policy"`
	Delta          int                  `json:"delta"`
	PreviousScore  int                  `json:"previous_score"`
	ResultingScore int                  `json:"resulting_score"`
	RelatedLoanID  *uuid.UUID           `json:"related_loan_id,omitempty"`
	Description    string               `json:"description"`
	Metadata       *trust.EventMetadata `json:"metadata,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

type trustHistoryResponse struct {
	Events     []TrustEventDTO `json:"events"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func trustEventFromModel(e models.TrustEvent) (TrustEventDTO, error) {
	meta, err := trust.DecodeMetadata(e.Metadata)
	if err != nil {
		return TrustEventDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode trust event metadata")
	}
	return TrustEventDTO{
		ID:             e.ID,
		Sequence:       e.Sequence,
		Kind:           string(e.Kind),
		Policy:         e.Policy,
		Delta:          e.Delta,
		PreviousScore:  e.PreviousScore,
		ResultingScore: e.ResultingScore,
		RelatedLoanID:  e.RelatedLoanID,
		Description:    e.Description,
		Metadata:       meta,
		CreatedAt:      e.CreatedAt,
	}, nil
}

// TrustLimits returns the caller's score and borrowing limits.
func TrustLimits(svc limitsReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.ComputeLimits(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// TrustHistory pages through the caller's ledger, newest first.
func TrustHistory(svc historyReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeHistory(w, r, svc, userID, logg)
	}
}

// AdminTrustHistory pages through any user's ledger.
func AdminTrustHistory(svc historyReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeHistory(w, r, svc, userID, logg)
	}
}

func writeHistory(w http.ResponseWriter, r *http.Request, svc historyReader, userID uuid.UUID, logg *logger.Logger) {
	params, err := validators.ParsePagination(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	page, err := svc.GetHistory(r.Context(), userID, params)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	resp := trustHistoryResponse{
		Events:     make([]TrustEventDTO, 0, len(page.Events)),
		NextCursor: page.NextCursor,
	}
	for _, e := range page.Events {
		dto, err := trustEventFromModel(e)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp.Events = append(resp.Events, dto)
	}
	responses.WriteSuccess(w, resp)
}
