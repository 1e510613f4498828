package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/gobd-ledger/api/controllers"
	"github.com/angelmondragon/gobd-ledger/api/middleware"
	"github.com/angelmondragon/gobd-ledger/internal/reconciliation"
	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/redis"
)

// Params carries what the router wires into handlers. Redis is
// optional; without it the idempotency middleware passes requests through.
type Params struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Redis        redis.IdempotencyStore
	RedisPinger  controllers.Pinger
	Gatherer     prometheus.Gatherer
	Invoices     controllers.InvoiceVerifier
	Payments     reconciliation.Service
	Notification controllers.NotificationGuard
}

func NewRouter(p Params) http.Handler {
	logg := p.Logger
	cfg := p.Config

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	deps := map[string]controllers.Pinger{}
	if p.DB != nil {
		deps["db"] = p.DB
	}
	if p.RedisPinger != nil {
		deps["redis"] = p.RedisPinger
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.Redis, cfg.Eventing.PaymentIdempotencyTTL, logg))

		r.Get("/invoices/{invoiceNumber}/verify", controllers.InvoiceVerify(p.Invoices, logg))

		r.Route("/payments/checks", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin, enums.ActorRoleSystem))
			r.Post("/", controllers.PaymentCheck(p.Payments, p.Notification, logg))
			r.Get("/pending", controllers.PaymentPending(p.Payments, logg))
			r.Post("/{checkId}/resolve", controllers.PaymentResolve(p.Payments, logg))
		})
	})

	return r
}
