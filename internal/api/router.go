// Package api wires the HTTP surface: routing, middleware, handlers.
package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/api/handlers"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/api/middleware"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/audit"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/auth"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/config"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/events"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/users"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/metrics"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/storage/postgres"
)

// NewRouter assembles the full handler chain over an existing database pool.
// The caller owns the pool's lifecycle and must invoke the returned cleanup
// func on shutdown to stop the rate limiter's background eviction.
func NewRouter(cfg config.Config, logger zerolog.Logger, pool *pgxpool.Pool) (http.Handler, func(), error) {
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return nil, nil, err
	}

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
	userService := users.NewService(repo.Users(), cfg.Auth.BcryptCost, logger)
	eventService := events.NewService(repo.Events(), logger)

	authHandler := handlers.NewAuthHandler(userService, tokens, cfg.Environment)
	eventsHandler := handlers.NewEventsHandler(eventService, cfg.Environment)

	requireUser := middleware.RequireUser(tokens, userService, cfg.Environment)
	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	limit := limiter.Middleware()
	loginTier := middleware.WithRateLimitTierHandler(middleware.TierLogin)

	// The tier marker must run before the limiter so the limiter picks the
	// right bucket; both sit outside the auth check so unauthenticated floods
	// are throttled before any token work.
	authed := func(h http.HandlerFunc) http.Handler {
		return limit(requireUser(h))
	}
	loginLimited := func(h http.HandlerFunc) http.Handler {
		return loginTier(limit(h))
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(pool))
	mux.Handle("/metrics", metrics.Handler())

	mux.Handle("/api/auth/register", methodMux(map[string]http.Handler{
		http.MethodPost: loginLimited(authHandler.Register),
	}))
	mux.Handle("/api/auth/login", methodMux(map[string]http.Handler{
		http.MethodPost: loginLimited(authHandler.Login),
	}))
	mux.Handle("/api/auth/refresh", methodMux(map[string]http.Handler{
		http.MethodPost: authed(authHandler.Refresh),
	}))
	mux.Handle("/api/auth/logout", methodMux(map[string]http.Handler{
		http.MethodPost: authed(authHandler.Logout),
	}))

	mux.Handle("/api/events", methodMux(map[string]http.Handler{
		http.MethodPost: authed(eventsHandler.Create),
		http.MethodGet:  authed(eventsHandler.List),
	}))
	mux.Handle("/api/events/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    authed(eventsHandler.Get),
		http.MethodPut:    authed(eventsHandler.Update),
		http.MethodDelete: authed(eventsHandler.Delete),
	}))
	mux.Handle("/api/events/{id}/share", methodMux(map[string]http.Handler{
		http.MethodPost: authed(eventsHandler.Share),
	}))
	mux.Handle("/api/events/{id}/permissions", methodMux(map[string]http.Handler{
		http.MethodGet: authed(eventsHandler.ListPermissions),
	}))
	mux.Handle("/api/events/{id}/permissions/{userId}", methodMux(map[string]http.Handler{
		http.MethodPut:    authed(eventsHandler.UpdatePermission),
		http.MethodDelete: authed(eventsHandler.RevokePermission),
	}))
	mux.Handle("/api/events/{id}/history", methodMux(map[string]http.Handler{
		http.MethodGet: authed(eventsHandler.ListVersions),
	}))
	mux.Handle("/api/events/{id}/history/{version}", methodMux(map[string]http.Handler{
		http.MethodGet: authed(eventsHandler.GetVersion),
	}))
	mux.Handle("/api/events/{id}/rollback/{version}", methodMux(map[string]http.Handler{
		http.MethodPost: authed(eventsHandler.Rollback),
	}))
	mux.Handle("/api/events/{id}/changelog", methodMux(map[string]http.Handler{
		http.MethodGet: authed(eventsHandler.Changelog),
	}))
	mux.Handle("/api/events/{id}/diff/{v1}/{v2}", methodMux(map[string]http.Handler{
		http.MethodGet: authed(eventsHandler.Diff),
	}))

	auditLogger := audit.NewLogger(logger)
	var handler http.Handler = mux
	handler = withAuditLogger(auditLogger, handler)
	handler = middleware.CORS(cfg.CORS, logger)(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)

	return handler, limiter.Stop, nil
}

func withAuditLogger(logger *audit.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), logger)))
	})
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
