package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/trustlend-backend/api/responses"
	"github.com/angelmondragon/trustlend-backend/api/validators"
	"github.com/angelmondragon/trustlend-backend/internal/fraud"
	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
	"github.com/angelmondragon/trustlend-backend/pkg/pagination"
)

type fraudChecker interface {
	RunFraudCheck(ctx context.Context, userID uuid.UUID, requested *decimal.Decimal) (*models.FraudAlert, error)
}

type alertLister interface {
	ListAlerts(ctx context.Context, userID uuid.UUID, params pagination.Params) (*fraud.AlertPage, error)
}

// FraudAlertDTO is the admin view of a persisted alert.
type FraudAlertDTO struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	AlertType       string          `json:"alert_type"`
	Severity        string          `json:"severity"`
	SuspicionScore  int             `json:"suspicion_score"`
	RedFlags        []string        `json:"red_flags"`
	Details         json.RawMessage `json:"details,omitempty"`
	ActionTaken     string          `json:"action_taken"`
	RequestedAmount *string         `json:"requested_amount,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func fraudAlertFromModel(a *models.FraudAlert) *FraudAlertDTO {
	if a == nil {
		return nil
	}
	dto := &FraudAlertDTO{
		ID:              a.ID,
		UserID:          a.UserID,
		AlertType:       string(a.AlertType),
		Severity:        string(a.Severity),
		SuspicionScore:  a.SuspicionScore,
		RedFlags:        []string(a.RedFlags),
		ActionTaken:     string(a.ActionTaken),
		RequestedAmount: a.RequestedAmount,
		CreatedAt:       a.CreatedAt,
	}
	if len(a.Details) > 0 {
		dto.Details = json.RawMessage(a.Details)
	}
	if dto.RedFlags == nil {
		dto.RedFlags = []string{}
	}
	return dto
}

type fraudCheckRequest struct {
	UserID          string           `json:"user_id" validate:"required,uuid"`
	RequestedAmount *decimal.Decimal `json:"requested_amount,omitempty"`
}

type fraudCheckResponse struct {
	Flagged bool           `json:"flagged"`
	Alert   *FraudAlertDTO `json:"alert,omitempty"`
}

// AdminFraudCheck runs the detector for one user on demand.
func AdminFraudCheck(svc fraudChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body fraudCheckRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.RequestedAmount != nil && !body.RequestedAmount.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "requested_amount must be positive"))
			return
		}

		alert, err := svc.RunFraudCheck(r.Context(), uuid.MustParse(body.UserID), body.RequestedAmount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, fraudCheckResponse{Flagged: alert != nil, Alert: fraudAlertFromModel(alert)})
	}
}

// AdminFraudAlerts lists a user's persisted alerts, newest first.
func AdminFraudAlerts(svc alertLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListAlerts(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		alerts := make([]*FraudAlertDTO, 0, len(page.Alerts))
		for i := range page.Alerts {
			alerts = append(alerts, fraudAlertFromModel(&page.Alerts[i]))
		}
		responses.WriteSuccess(w, map[string]any{"alerts": alerts, "next_cursor": page.NextCursor})
	}
}
