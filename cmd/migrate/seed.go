package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/internal/scoring"
	"github.com/angelmondragon/trustlend-backend/internal/users"
	"github.com/angelmondragon/trustlend-backend/pkg/config"
	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	"github.com/angelmondragon/trustlend-backend/pkg/security"
)

type adminSeed struct {
	Email       string
	Password    string
	DisplayName string
}

// seedAdmin creates a verified admin account. An existing account with the
// same email is returned untouched with created=false.
func seedAdmin(ctx context.Context, conn *gorm.DB, cfg *config.Config, seed adminSeed) (*models.User, bool, error) {
	email := strings.ToLower(strings.TrimSpace(seed.Email))
	if email == "" {
		return nil, false, fmt.Errorf("admin email required")
	}
	if len(seed.Password) < 8 {
		return nil, false, fmt.Errorf("admin password must be at least 8 characters")
	}
	name := strings.TrimSpace(seed.DisplayName)
	if name == "" {
		name = "Administrator"
	}

	repo := users.NewRepository(conn)
	existing, err := repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, fmt.Errorf("lookup admin: %w", err)
	}

	policy, err := scoring.ByName(cfg.Scoring.Policy)
	if err != nil {
		return nil, false, err
	}
	hash, err := security.HashPassword(seed.Password, cfg.Password)
	if err != nil {
		return nil, false, fmt.Errorf("hash admin password: %w", err)
	}

	user, err := repo.Create(ctx, users.CreateUserDTO{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  name,
		Role:         enums.UserRoleAdmin,
		InitialScore: policy.InitialScore(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("create admin: %w", err)
	}
	if err := repo.MarkVerified(ctx, user.ID); err != nil {
		return nil, false, fmt.Errorf("verify admin: %w", err)
	}
	user.IsVerified = true
	return user, true, nil
}
