package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/auth"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/config"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/fulfillment"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/handler"
	mw "github.com/jaredeoliphant/bwf-inventory-shiny/internal/middleware"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/session"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/ws"
)

// Services are the long-lived components the routes are wired to.
type Services struct {
	Gateway     gateway.Gateway
	Catalog     *catalog.Catalog
	Engine      *fulfillment.Engine
	Sessions    *session.Controller
	Credentials *auth.Credentials
	Hub         *ws.Hub
}

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, svc Services) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","gateway":"` + cfg.Gateway + `"}`))
	})

	authHandler := handler.NewAuthHandler(svc.Credentials, svc.Sessions, cfg.JWTSecret, cfg.TokenTTL)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(svc.Hub, cfg.JWTSecret, svc.Sessions, w, r)
	})

	deps := handler.Deps{
		Gateway:  svc.Gateway,
		Catalog:  svc.Catalog,
		Engine:   svc.Engine,
		Sessions: svc.Sessions,
	}
	if svc.Hub != nil {
		deps.Notifier = svc.Hub
	}

	// Protected routes (require a token naming a live session)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireSession(svc.Sessions))

		authHandler.RegisterProtectedRoutes(r)
		handler.NewSessionHandler(deps).RegisterRoutes(r)
		handler.NewOrderHandler(deps).RegisterRoutes(r)
		handler.NewInventoryHandler(deps).RegisterRoutes(r)
	})

	slog.Debug("router initialized", "gateway", cfg.Gateway)
	return r
}
