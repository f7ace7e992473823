package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/repairhub-backend/api/controllers"
	logisticscontrollers "github.com/angelmondragon/repairhub-backend/api/controllers/logistics"
	repaircontrollers "github.com/angelmondragon/repairhub-backend/api/controllers/repairs"
	"github.com/angelmondragon/repairhub-backend/api/middleware"
	"github.com/angelmondragon/repairhub-backend/internal/logistics"
	"github.com/angelmondragon/repairhub-backend/internal/repairs"
	"github.com/angelmondragon/repairhub-backend/internal/scan"
	"github.com/angelmondragon/repairhub-backend/internal/users"
	"github.com/angelmondragon/repairhub-backend/pkg/config"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/repairhub-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	idempotencyStore pkgredis.IdempotencyStore,
	gatherer prometheus.Gatherer,
	repairService repairs.Service,
	batchService logistics.Service,
	scanService scan.Service,
	directory users.Directory,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/repairs", func(r chi.Router) {
			r.Post("/", repaircontrollers.Create(repairService, logg))
			r.Get("/", repaircontrollers.List(repairService, logg))
			r.Get("/{id}", repaircontrollers.Detail(repairService, logg))
			r.Get("/{id}/history", repaircontrollers.History(repairService, logg))
			r.Post("/{id}/assign", repaircontrollers.Assign(repairService, logg))
			r.Patch("/{id}/start", repaircontrollers.Start(repairService, logg))
			r.Patch("/{id}/complete", repaircontrollers.Complete(repairService, logg))
			r.Patch("/{id}/fail", repaircontrollers.Fail(repairService, logg))
		})

		r.Route("/logistics", func(r chi.Router) {
			r.Route("/batches", func(r chi.Router) {
				r.Post("/", logisticscontrollers.CreateBatch(batchService, logg))
				r.Get("/", logisticscontrollers.ListBatches(batchService, logg))
				r.Get("/{batchNo}", logisticscontrollers.BatchDetail(batchService, logg))
			})
			r.Route("/scan", func(r chi.Router) {
				r.Get("/preview", logisticscontrollers.ScanPreview(scanService, logg))
				r.Post("/pickup", logisticscontrollers.ScanPickup(scanService, logg))
				r.Post("/receive", logisticscontrollers.ScanReceive(scanService, logg))
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleSuperAdmin, enums.RoleHQAdmin))
			r.Get("/technicians", controllers.ListTechnicians(directory, logg))
		})
	})

	return r
}
