// Package engine assembles the trust, fraud and lending services from config
// so every binary wires the same graph.
package engine

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/trustlend-backend/internal/auth"
	"github.com/angelmondragon/trustlend-backend/internal/blacklist"
	"github.com/angelmondragon/trustlend-backend/internal/fraud"
	"github.com/angelmondragon/trustlend-backend/internal/limits"
	"github.com/angelmondragon/trustlend-backend/internal/loans"
	"github.com/angelmondragon/trustlend-backend/internal/profiler"
	"github.com/angelmondragon/trustlend-backend/internal/scoring"
	"github.com/angelmondragon/trustlend-backend/internal/trust"
	"github.com/angelmondragon/trustlend-backend/internal/users"
	"github.com/angelmondragon/trustlend-backend/pkg/config"
	"github.com/angelmondragon/trustlend-backend/pkg/db"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
	"github.com/angelmondragon/trustlend-backend/pkg/metrics"
)

// Params are the process-level resources the engine is built on.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// Engine holds the wired services.
type Engine struct {
	Policy    scoring.Policy
	Users     *users.Repository
	Loans     *loans.Repository
	Trust     trust.Service
	Blacklist blacklist.Service
	Fraud     fraud.Service
	Lending   loans.Service
	Auth      auth.Service
	Metrics   *metrics.EngineMetrics
}

// New builds the service graph: trust ledger, blacklist, fraud detection,
// guarded lending and auth, in dependency order.
func New(p Params) (*Engine, error) {
	switch {
	case p.Config == nil:
		return nil, fmt.Errorf("config required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case p.DB == nil:
		return nil, fmt.Errorf("db client required")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	cfg := p.Config

	policy, err := scoring.ByName(cfg.Scoring.Policy)
	if err != nil {
		return nil, err
	}
	engineMetrics := metrics.NewEngineMetrics(p.Registerer)

	userRepo := users.NewRepository(p.DB.DB())
	loanRepo := loans.NewRepository(p.DB.DB())

	trustSvc, err := trust.NewService(trust.Options{
		Tx:         p.DB,
		Repo:       trust.NewRepository(p.DB.DB()),
		Users:      userRepo,
		Policy:     policy,
		Limits:     limits.NewPolicy(cfg.Limits),
		MaxRetries: cfg.Scoring.MaxRetries,
		Logger:     p.Logger,
		Metrics:    engineMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("trust service: %w", err)
	}

	blacklistSvc, err := blacklist.NewService(blacklist.Options{
		Tx:      p.DB,
		Repo:    blacklist.NewRepository(p.DB.DB()),
		Users:   userRepo,
		Ledger:  trustSvc,
		Now:     p.Now,
		Logger:  p.Logger,
		Metrics: engineMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("blacklist service: %w", err)
	}

	prof, err := profiler.New(userRepo, loanRepo, p.Now)
	if err != nil {
		return nil, fmt.Errorf("profiler: %w", err)
	}
	fraudSvc, err := fraud.NewService(fraud.Options{
		Detector:      fraud.NewDetector(fraud.ThresholdsFromConfig(cfg.Fraud, policy)),
		Profiler:      prof,
		Repo:          fraud.NewRepository(p.DB.DB()),
		Blocker:       blacklistSvc,
		MaxPopulation: cfg.Fraud.MaxPopulation,
		Logger:        p.Logger,
		Metrics:       engineMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("fraud service: %w", err)
	}

	lendingSvc, err := loans.NewService(loans.Options{
		Tx:        p.DB,
		Repo:      loanRepo,
		Blacklist: blacklistSvc,
		Limits:    trustSvc,
		Fraud:     fraudSvc,
		Ledger:    trustSvc,
		Now:       p.Now,
		Logger:    p.Logger,
		Metrics:   engineMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("loans service: %w", err)
	}

	authSvc, err := auth.NewService(auth.ServiceParams{
		Tx:             p.DB,
		Users:          userRepo,
		Ledger:         trustSvc,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         p.Logger,
		Now:            p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	return &Engine{
		Policy:    policy,
		Users:     userRepo,
		Loans:     loanRepo,
		Trust:     trustSvc,
		Blacklist: blacklistSvc,
		Fraud:     fraudSvc,
		Lending:   lendingSvc,
		Auth:      authSvc,
		Metrics:   engineMetrics,
	}, nil
}
