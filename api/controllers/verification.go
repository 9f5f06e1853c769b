package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/trustlend-backend/api/responses"
	"github.com/angelmondragon/trustlend-backend/api/validators"
	"github.com/angelmondragon/trustlend-backend/internal/verification"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
)

type codeIssuer interface {
	Issue(ctx context.Context, purpose verification.Purpose, subject string) (*verification.Issued, error)
	Verify(ctx context.Context, purpose verification.Purpose, subject, code string) error
}

type userVerifier interface {
	MarkVerified(ctx context.Context, id uuid.UUID) error
}

type issueCodeResponse struct {
	Purpose   verification.Purpose `json:"purpose"`
	ExpiresAt time.Time            `json:"expires_at"`
	// Code is only echoed back outside production, where no delivery channel exists.
	Code string `json:"code,omitempty"`
}

type verifyCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,min=6,max=8"`
}

func purposeParam(r *http.Request) (verification.Purpose, error) {
	purpose, err := verification.ParsePurpose(chi.URLParam(r, "purpose"))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid verification purpose")
	}
	return purpose, nil
}

// IssueVerificationCode generates a fresh code for the caller.
func IssueVerificationCode(codes codeIssuer, exposeCode bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		purpose, err := purposeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		issued, err := codes.Issue(r.Context(), purpose, userID.String())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := issueCodeResponse{Purpose: purpose, ExpiresAt: issued.ExpiresAt}
		if exposeCode {
			resp.Code = issued.Code
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// ConfirmVerificationCode consumes a code and marks the caller verified.
func ConfirmVerificationCode(codes codeIssuer, users userVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		purpose, err := purposeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body verifyCodeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := codes.Verify(r.Context(), purpose, userID.String(), body.Code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := users.MarkVerified(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark user verified"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"purpose": purpose, "verified": true})
	}
}
