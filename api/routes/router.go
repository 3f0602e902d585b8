package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/designdock/designdock-backend/api/controllers"
	webhookcontrollers "github.com/designdock/designdock-backend/api/controllers/webhooks"
	"github.com/designdock/designdock-backend/api/middleware"
	bagsvc "github.com/designdock/designdock-backend/internal/bag"
	checkoutsvc "github.com/designdock/designdock-backend/internal/checkout"
	"github.com/designdock/designdock-backend/internal/orders"
	"github.com/designdock/designdock-backend/internal/products"
	"github.com/designdock/designdock-backend/internal/profiles"
	stripewebhook "github.com/designdock/designdock-backend/internal/webhooks/stripe"
	"github.com/designdock/designdock-backend/pkg/config"
	"github.com/designdock/designdock-backend/pkg/db"
	"github.com/designdock/designdock-backend/pkg/logger"
	"github.com/designdock/designdock-backend/pkg/redis"
	pkgstripe "github.com/designdock/designdock-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	productsRepo *products.Repository,
	bagSessions *bagsvc.SessionStore,
	bagService *bagsvc.Service,
	checkoutService *checkoutsvc.Service,
	profileService *profiles.Service,
	orderService *orders.Service,
	stripeClient *pkgstripe.Client,
	webhookService *stripewebhook.Service,
	webhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbClient, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(webhookService, stripeClient, webhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(productsRepo, logg))
			r.Get("/{productId}", controllers.ProductDetail(productsRepo, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderNumber}", controllers.OrderDetail(orderService, logg))
		})

		r.Route("/profiles/{username}", func(r chi.Router) {
			r.Get("/", controllers.ProfileFetch(profileService, logg))
			r.Put("/", controllers.ProfileUpdate(profileService, logg))
			r.Get("/orders", controllers.ProfileOrders(profileService, orderService, logg))
		})

		// Session-scoped surface: everything touching the shopping bag.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(cfg.Bag.SessionTTL, logg))

			r.Route("/bag", func(r chi.Router) {
				r.Get("/", controllers.BagFetch(bagSessions, bagService, logg))
				r.Post("/items", controllers.BagAddItem(bagSessions, bagService, productsRepo, logg))
				r.Post("/items/adjust", controllers.BagAdjustItem(bagSessions, bagService, productsRepo, logg))
				r.Post("/items/remove", controllers.BagRemoveItem(bagSessions, bagService, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", controllers.CheckoutSubmit(checkoutService, logg))
				r.Post("/intent", controllers.CheckoutCreateIntent(checkoutService, logg))
				r.Post("/cache", controllers.CheckoutCacheData(checkoutService, logg))
			})
		})
	})

	return r
}
