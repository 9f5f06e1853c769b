package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/trustlend-backend/api/responses"
	"github.com/angelmondragon/trustlend-backend/api/validators"
	"github.com/angelmondragon/trustlend-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
)

type registerer interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.AuthResponse, error)
}

type authenticator interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.AuthResponse, error)
}

// AuthRegister creates an account and returns a token for it.
func AuthRegister(svc registerer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body.DisplayName = validators.SanitizeString(body.DisplayName, 120)

		result, err := svc.Register(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AuthLogin wires the login endpoint into the HTTP layer.
func AuthLogin(svc authenticator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
