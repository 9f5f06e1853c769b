package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/trustlend-backend/api/controllers"
	"github.com/angelmondragon/trustlend-backend/api/middleware"
	"github.com/angelmondragon/trustlend-backend/internal/auth"
	"github.com/angelmondragon/trustlend-backend/internal/blacklist"
	"github.com/angelmondragon/trustlend-backend/internal/fraud"
	"github.com/angelmondragon/trustlend-backend/internal/loans"
	"github.com/angelmondragon/trustlend-backend/internal/trust"
	"github.com/angelmondragon/trustlend-backend/internal/verification"
	"github.com/angelmondragon/trustlend-backend/pkg/config"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
	"github.com/google/uuid"
)

// EdgeStore backs the idempotency and throttle middleware. *redis.Client satisfies it.
type EdgeStore interface {
	middleware.IdempotencyStore
	middleware.WindowLimiter
}

// VerificationCodes issues and checks one-time codes. *verification.Store satisfies it.
type VerificationCodes interface {
	Issue(ctx context.Context, purpose verification.Purpose, subject string) (*verification.Issued, error)
	Verify(ctx context.Context, purpose verification.Purpose, subject, code string) error
}

// UserVerifier flips the verified flag once a code is confirmed.
type UserVerifier interface {
	MarkVerified(ctx context.Context, id uuid.UUID) error
}

// Deps carries every collaborator the API surface needs. Nil Edge disables
// idempotency and auth throttling.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Pingers      map[string]controllers.Pinger
	Edge         EdgeStore
	Gatherer     prometheus.Gatherer
	Auth         auth.Service
	Trust        trust.Service
	Fraud        fraud.Service
	Blacklist    blacklist.Service
	Loans        loans.Service
	Verification VerificationCodes
	Users        UserVerifier
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, d.Pingers, logg))
	})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	var (
		once   = middleware.Idempotent(d.Edge, middleware.IdempotencyTTL, logg)
		ledger = middleware.Idempotent(d.Edge, middleware.LedgerIdempotencyTTL, logg)
	)
	throttle := func(rule middleware.ThrottleRule) func(http.Handler) http.Handler {
		return middleware.Throttle(rule, d.Edge, logg)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(throttle(middleware.LoginThrottle(cfg.AuthRateLimit))).
			Post("/login", controllers.AuthLogin(d.Auth, logg))
		r.With(throttle(middleware.RegisterThrottle(cfg.AuthRateLimit)), once).
			Post("/register", controllers.AuthRegister(d.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/trust/limits", controllers.TrustLimits(d.Trust, logg))
		r.Get("/trust/history", controllers.TrustHistory(d.Trust, logg))

		r.Get("/loans", controllers.ListLoans(d.Loans, logg))
		r.With(ledger).Post("/loans", controllers.RequestLoan(d.Loans, logg))

		r.Post("/verification/{purpose}", controllers.IssueVerificationCode(d.Verification, !cfg.App.IsProd(), logg))
		r.Post("/verification/{purpose}/verify", controllers.ConfirmVerificationCode(d.Verification, d.Users, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))

		r.With(ledger).Post("/trust/events", controllers.AdminRecordTrustEvent(d.Trust, logg))
		r.With(ledger).Post("/trust/repayments", controllers.AdminRecordRepayment(d.Trust, logg))
		r.Get("/trust/{userID}/history", controllers.AdminTrustHistory(d.Trust, logg))
		r.With(once).Post("/trust/{userID}/dedupe", controllers.AdminDedupeRegistrationBonus(d.Trust, logg))

		r.Post("/fraud/check", controllers.AdminFraudCheck(d.Fraud, logg))
		r.Get("/fraud/alerts/{userID}", controllers.AdminFraudAlerts(d.Fraud, logg))

		r.With(once).Post("/blacklist", controllers.AdminBlockUser(d.Blacklist, logg))
		r.Get("/blacklist/{userID}", controllers.AdminBlacklistEntries(d.Blacklist, logg))
		r.With(once).Delete("/blacklist/{userID}", controllers.AdminUnblockUser(d.Blacklist, logg))
	})

	return r
}
