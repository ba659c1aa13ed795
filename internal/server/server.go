package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/foodgram/internal/config"
	"github.com/dukerupert/foodgram/internal/handler"
	"github.com/dukerupert/foodgram/internal/media"
	"github.com/dukerupert/foodgram/internal/middleware"
	"github.com/dukerupert/foodgram/internal/store"
	ws "github.com/dukerupert/foodgram/internal/websocket"
)

type Server struct {
	db           *sql.DB
	cfg          *config.Config
	hub          *ws.Hub
	media        *media.Store
	userH        *handler.UserHandler
	catalogH     *handler.CatalogHandler
	recipeH      *handler.RecipeHandler
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

// New wires the stores and handlers. Events go to publisher, which is either
// the hub itself or a relay that fans out to it.
func New(db *sql.DB, cfg *config.Config, hub *ws.Hub, publisher ws.Publisher, logger *slog.Logger) *Server {
	mediaStore := media.NewStore(cfg.Media.Dir, cfg.Media.URL)

	deps := handler.NewDeps(db, mediaStore, publisher, logger)
	deps.PageSize = cfg.API.PageSize
	deps.SessionTTL = cfg.Session.TTL

	return &Server{
		db:           db,
		cfg:          cfg,
		hub:          hub,
		media:        mediaStore,
		userH:        handler.NewUserHandler(deps),
		catalogH:     handler.NewCatalogHandler(deps),
		recipeH:      handler.NewRecipeHandler(deps),
		sessionStore: deps.Sessions,
		rateLimiter:  middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	mediaPrefix := s.cfg.Media.URL
	if !strings.HasSuffix(mediaPrefix, "/") {
		mediaPrefix += "/"
	}
	mux.Handle("GET "+mediaPrefix, http.StripPrefix(mediaPrefix, http.FileServer(http.Dir(s.media.Dir()))))

	s.registerAPIRoutes(mux)

	var h http.Handler = mux
	h = middleware.Metrics(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	h = middleware.Recover(s.logger.With("component", "http"))(h)
	return middleware.RequestID(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.RealIP)(h)
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	optional := middleware.OptionalAuth(s.sessionStore)
	required := middleware.RequireAuth(s.sessionStore)
	public := func(h http.HandlerFunc) http.Handler { return optional(h) }
	private := func(h http.HandlerFunc) http.Handler { return required(h) }

	// Auth
	mux.Handle("POST /api/auth/token/login/{$}", s.rateLimited(s.userH.Login))
	mux.Handle("POST /api/auth/token/logout/{$}", private(s.userH.Logout))

	// Users
	mux.Handle("GET /api/users/{$}", public(s.userH.List))
	mux.Handle("POST /api/users/{$}", s.rateLimited(s.userH.Register))
	mux.Handle("GET /api/users/me/{$}", private(s.userH.Me))
	mux.Handle("POST /api/users/set_password/{$}", required(s.rateLimited(s.userH.SetPassword)))
	mux.Handle("GET /api/users/subscriptions/{$}", private(s.userH.Subscriptions))
	mux.Handle("GET /api/users/{id}/{$}", public(s.userH.Get))
	mux.Handle("POST /api/users/{id}/subscribe/{$}", private(s.userH.Subscribe))
	mux.Handle("DELETE /api/users/{id}/subscribe/{$}", private(s.userH.Unsubscribe))

	// Tags and ingredients
	mux.Handle("GET /api/tags/{$}", public(s.catalogH.ListTags))
	mux.Handle("GET /api/tags/{id}/{$}", public(s.catalogH.GetTag))
	mux.Handle("GET /api/ingredients/{$}", public(s.catalogH.ListIngredients))
	mux.Handle("GET /api/ingredients/{id}/{$}", public(s.catalogH.GetIngredient))

	// Recipes
	mux.Handle("GET /api/recipes/{$}", public(s.recipeH.List))
	mux.Handle("POST /api/recipes/{$}", private(s.recipeH.Create))
	mux.Handle("GET /api/recipes/download_shopping_cart/{$}", private(s.recipeH.DownloadShoppingList))
	mux.Handle("GET /api/recipes/{id}/{$}", public(s.recipeH.Get))
	mux.Handle("PATCH /api/recipes/{id}/{$}", private(s.recipeH.Update))
	mux.Handle("DELETE /api/recipes/{id}/{$}", private(s.recipeH.Delete))
	mux.Handle("POST /api/recipes/{id}/favorite/{$}", private(s.recipeH.AddFavorite))
	mux.Handle("DELETE /api/recipes/{id}/favorite/{$}", private(s.recipeH.RemoveFavorite))
	mux.Handle("POST /api/recipes/{id}/shopping_cart/{$}", private(s.recipeH.AddToCart))
	mux.Handle("DELETE /api/recipes/{id}/shopping_cart/{$}", private(s.recipeH.RemoveFromCart))

	// WebSocket
	mux.Handle("GET /ws", optional(ws.HandleWebSocket(s.hub, nil, s.logger.With("component", "websocket"))))
}
