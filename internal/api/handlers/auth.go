package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/api/middleware"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/api/problem"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/auth"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/users"
)

type AuthHandler struct {
	Users  *users.Service
	Tokens *auth.JWTManager
	Env    string
}

func NewAuthHandler(userSvc *users.Service, tokens *auth.JWTManager, env string) *AuthHandler {
	return &AuthHandler{Users: userSvc, Tokens: tokens, Env: env}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func userPayload(user *users.User) userResponse {
	return userResponse{
		ID:        user.ULID,
		Email:     user.Email,
		Username:  user.Username,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input registerRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	user, err := h.Users.Register(r.Context(), users.RegisterInput{
		Email:    input.Email,
		Username: input.Username,
		Password: input.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, users.ErrEmailTaken), errors.Is(err, users.ErrUsernameTaken):
			problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Conflict", err, h.Env)
		default:
			var validationErrs validator.ValidationErrors
			if errors.As(err, &validationErrs) {
				problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
				return
			}
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusCreated, userPayload(user))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input loginRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	user, err := h.Users.Authenticate(r.Context(), input.Email, input.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) || errors.Is(err, users.ErrInactiveUser) {
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	token, err := h.Tokens.Generate(user.ULID, user.Username)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Refresh re-issues a token for the already-authenticated principal. The old
// token stays valid until its own expiry; tokens are stateless.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r.Context())
	if user == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", nil, h.Env)
		return
	}

	token, err := h.Tokens.Generate(user.ULID, user.Username)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Logout acknowledges the client's intent. With stateless JWTs the client
// discards the token; nothing is stored server-side.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
