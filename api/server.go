/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/accounts/*    Registration and login
  /api/coupons/*     Coupon catalog and assignments
  /api/rewards/*     Points balance, purchases, redemption
  /api/shops/*       Shop catalog
  /api/items/*       Shop items

SECURITY NOTE:
  Login returns no session token; handlers take the acting handle from the
  request body or query string. Real deployments put an auth middleware in
  front of the mutating routes.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		// Coupon routes
		r.Route("/coupons", func(r chi.Router) {
			r.Get("/", h.ListCoupons)
			r.Post("/", h.CreateCoupon)
			r.Post("/assign", h.AssignCoupon)
			r.Get("/user/{handle}", h.ListUserCoupons)
			r.Delete("/user/{handle}/coupon/{code}", h.RevokeUserCoupon)
			r.Get("/{code}", h.CheckCoupon)
			r.Delete("/{code}", h.DeleteCoupon)
		})

		// Rewards routes
		r.Route("/rewards", func(r chi.Router) {
			r.Post("/purchase", h.RecordPurchase)
			r.Get("/balance/{handle}", h.GetBalance)
			r.Get("/purchases/{handle}", h.GetPurchases)
			r.Post("/redeem", h.Redeem)
		})

		// Catalog routes
		r.Route("/shops", func(r chi.Router) {
			r.Get("/", h.ListShops)
			r.Post("/", h.CreateShop)
			r.Get("/{id}", h.GetShop)
			r.Put("/{id}", h.UpdateShop)
			r.Delete("/{id}", h.DeleteShop)
			r.Get("/{id}/items", h.ListShopItems)
			r.Post("/{id}/items", h.CreateItem)
		})
		r.Route("/items", func(r chi.Router) {
			r.Get("/{id}", h.GetItem)
			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)
		})
	})

	return r
}
