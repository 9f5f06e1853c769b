package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trustlend-backend/api/responses"
	"github.com/angelmondragon/trustlend-backend/api/validators"
	"github.com/angelmondragon/trustlend-backend/internal/blacklist"
	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
)

type blacklistManager interface {
	Block(ctx context.Context, input blacklist.BlockInput) (*models.BlacklistEntry, error)
	Remove(ctx context.Context, userID uuid.UUID) (*models.BlacklistEntry, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.BlacklistEntry, error)
}

// BlacklistEntryDTO is the admin view of a blacklist row.
type BlacklistEntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Reason        string     `json:"reason"`
	ReporterKind  string     `json:"reporter_kind"`
	ReporterID    *uuid.UUID `json:"reporter_id,omitempty"`
	Evidence      string     `json:"evidence,omitempty"`
	Severity      string     `json:"severity"`
	IsActive      bool       `json:"is_active"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

func blacklistEntryFromModel(e *models.BlacklistEntry) *BlacklistEntryDTO {
	if e == nil {
		return nil
	}
	return &BlacklistEntryDTO{
		ID:            e.ID,
		UserID:        e.UserID,
		Reason:        e.Reason,
		ReporterKind:  string(e.ReporterKind),
		ReporterID:    e.ReporterID,
		Evidence:      e.Evidence,
		Severity:      string(e.Severity),
		IsActive:      e.IsActive,
		ExpiresAt:     e.ExpiresAt,
		CreatedAt:     e.CreatedAt,
		DeactivatedAt: e.DeactivatedAt,
	}
}

type blockRequest struct {
	UserID    string     `json:"user_id" validate:"required,uuid"`
	Reason    string     `json:"reason" validate:"required,max=500"`
	Evidence  string     `json:"evidence" validate:"max=2000"`
	Severity  string     `json:"severity" validate:"required,oneof=low medium high critical"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AdminBlockUser blacklists a user on behalf of the calling admin.
func AdminBlockUser(svc blacklistManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reporterID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body blockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.Block(r.Context(), blacklist.BlockInput{
			UserID:       uuid.MustParse(body.UserID),
			Reason:       validators.SanitizeString(body.Reason, 500),
			ReporterKind: enums.ReporterUser,
			ReporterID:   &reporterID,
			Evidence:     validators.SanitizeString(body.Evidence, 2000),
			Severity:     enums.FraudSeverity(body.Severity),
			ExpiresAt:    body.ExpiresAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, blacklistEntryFromModel(entry))
	}
}

// AdminUnblockUser deactivates the user's active entry.
func AdminUnblockUser(svc blacklistManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.Remove(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, blacklistEntryFromModel(entry))
	}
}

// AdminBlacklistEntries returns every entry ever recorded for the user.
func AdminBlacklistEntries(svc blacklistManager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.List(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]*BlacklistEntryDTO, 0, len(entries))
		for i := range entries {
			out = append(out, blacklistEntryFromModel(&entries[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
