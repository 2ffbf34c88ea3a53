package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/api/problem"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/auth"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/users"
)

type contextKeyUser string

const currentUserKey contextKeyUser = "currentUser"

// RequireUser authenticates the bearer token and loads the acting user into
// the request context. Requests without a valid token get 401.
func RequireUser(tokens *auth.JWTManager, userSvc *users.Service, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, env)
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, env)
				return
			}

			user, err := userSvc.GetByULID(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, users.ErrNotFound) {
					problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, env)
					return
				}
				problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, env)
				return
			}
			if !user.IsActive {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", users.ErrInactiveUser, env)
				return
			}

			ctx := context.WithValue(r.Context(), currentUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CurrentUser returns the authenticated user placed in the context by
// RequireUser, or nil.
func CurrentUser(ctx context.Context) *users.User {
	if user, ok := ctx.Value(currentUserKey).(*users.User); ok {
		return user
	}
	return nil
}

// WithCurrentUser is for tests that exercise handlers without the full
// middleware chain.
func WithCurrentUser(ctx context.Context, user *users.User) context.Context {
	return context.WithValue(ctx, currentUserKey, user)
}
