package http

import (
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/blob"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Deps is everything the router needs.
type Deps struct {
	Catalog  *service.CatalogService
	Orders   *service.OrderService
	Checkout *service.CheckoutService
	Admin    *service.AdminService
	Carts    *cart.Registry
	Identity identity.Provider
	Blobs    blob.Store
	Feed     *events.Hub[events.Event]
	Log      *zap.Logger

	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	SecureCookies      bool
}

// NewRouter builds the storefront HTTP handler.
func NewRouter(d Deps) http.Handler {
	catalogHandler := NewCatalogHandler(d.Catalog, d.RequestTimeout)
	cartHandler := NewCartHandler(d.Carts, d.Catalog, d.RequestTimeout)
	authHandler := NewAuthHandler(d.Identity, d.RequestTimeout, d.SecureCookies)
	orderHandler := NewOrderHandler(d.Orders, d.Checkout, d.Carts, d.RequestTimeout)
	adminHandler := NewAdminHandler(d.Admin, d.Orders, d.RequestTimeout, d.Log)
	realtimeHandler := NewRealtimeHandler(d.Identity, d.Feed, d.Log)
	imageHandler := NewImageHandler(d.Blobs, d.Log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(StripTokenQuery)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(NotificationsMiddleware)
	r.Use(SessionMiddleware(d.SecureCookies))
	r.Use(AuthMiddleware(d.Identity, d.Log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get(blob.URLPrefix+"*", imageHandler.Get)

	// Long-lived streams stay outside the request timeout.
	bounded := chi.Chain(middleware.Timeout(d.RequestTimeout), MaxBodySize(d.MaxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/session/events", realtimeHandler.SessionEvents)

		r.Group(func(r chi.Router) {
			r.Use(bounded...)

			r.Get("/products", catalogHandler.List)
			r.Get("/products/featured", catalogHandler.Featured)
			r.Get("/products/{id}", catalogHandler.Get)
			r.Get("/categories", catalogHandler.Categories)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{line_id}", cartHandler.UpdateQuantity)
				r.Delete("/items/{line_id}", cartHandler.RemoveItem)
			})

			r.Route("/auth", func(r chi.Router) {
				r.Post("/signup", authHandler.SignUp)
				r.Post("/signin", authHandler.SignIn)
				r.Post("/federated", authHandler.SignInFederated)
				r.Post("/signout", authHandler.SignOut)
				r.Get("/session", authHandler.Session)
			})

			r.Post("/checkout", orderHandler.Checkout)
			r.Get("/orders/{order_id}", orderHandler.Get)
			r.With(Gate(identity.RequireUser)).Get("/orders", orderHandler.List)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(Gate(identity.RequireAdmin))
			r.Get("/feed", realtimeHandler.AdminFeed)

			r.Group(func(r chi.Router) {
				r.Use(bounded...)

				r.Get("/dashboard", adminHandler.Dashboard)
				r.Get("/products", adminHandler.ListProducts)
				r.Post("/products", adminHandler.CreateProduct)
				r.Get("/products/export", adminHandler.ExportProducts)
				r.Put("/products/{id}", adminHandler.UpdateProduct)
				r.Delete("/products/{id}", adminHandler.DeleteProduct)
				r.Get("/orders", adminHandler.ListOrders)
				r.Get("/orders/export", adminHandler.ExportOrders)
				r.Put("/orders/{order_id}/status", adminHandler.UpdateOrderStatus)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
