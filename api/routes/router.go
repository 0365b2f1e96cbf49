package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avelarde/boostpanel-backend/api/controllers"
	"github.com/avelarde/boostpanel-backend/api/handlers"
	"github.com/avelarde/boostpanel-backend/api/middleware"
	catalogsvc "github.com/avelarde/boostpanel-backend/internal/catalog"
	ordersvc "github.com/avelarde/boostpanel-backend/internal/orders"
	paymentsvc "github.com/avelarde/boostpanel-backend/internal/payments"
	"github.com/avelarde/boostpanel-backend/internal/providers"
	"github.com/avelarde/boostpanel-backend/internal/users"
	"github.com/avelarde/boostpanel-backend/pkg/config"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	Registry   *prometheus.Registry
	Orders     *ordersvc.Service
	Catalog    *catalogsvc.Service
	Payments   *paymentsvc.Service
	Users      users.Repository
	Providers  providers.Repository
	Gateways   providers.Factory
	CatalogJob *catalogsvc.SyncJob
}

// NewRouter assembles the API surface.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(),
	)

	r.Get("/healthz", handlers.Healthz(p.Config, p.Logger))
	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(p.Config.JWT, p.Logger))

		r.Get("/services", controllers.ServicesList(p.Catalog, p.Logger))
		r.Get("/balance", controllers.Balance(p.Users, p.Logger))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(p.Orders, p.Logger))
			r.Get("/", controllers.OrdersList(p.Orders, p.Logger))
			r.Get("/{orderId}", controllers.OrderDetail(p.Orders, p.Logger))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(p.Orders, p.Logger))
			r.Post("/{orderId}/refill", controllers.RefillOrder(p.Orders, p.Logger))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Use(middleware.RequireRole("admin", p.Logger))
			r.Post("/credit", controllers.PaymentCredit(p.Payments, p.Logger))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole("admin", p.Logger))
			r.Post("/catalog/sync", controllers.AdminCatalogSync(p.CatalogJob, p.Logger))
			r.Get("/providers/{providerId}/balance", controllers.AdminProviderBalance(p.Providers, p.Gateways, p.Logger))
		})
	})

	return r
}
