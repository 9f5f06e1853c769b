package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/trustlend-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
)

func currentUserID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context")
	}
	return id, nil
}
