package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/api/middleware"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/auth"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/users"
)

type memoryUserRepo struct {
	byEmail    map[string]*users.User
	byUsername map[string]*users.User
	byULID     map[string]*users.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		byEmail:    make(map[string]*users.User),
		byUsername: make(map[string]*users.User),
		byULID:     make(map[string]*users.User),
	}
}

func (r *memoryUserRepo) Create(ctx context.Context, params users.CreateParams) (*users.User, error) {
	user := &users.User{
		ID:           "id-" + params.ULID,
		ULID:         params.ULID,
		Email:        params.Email,
		Username:     params.Username,
		PasswordHash: params.PasswordHash,
		IsActive:     true,
	}
	r.byEmail[user.Email] = user
	r.byUsername[user.Username] = user
	r.byULID[user.ULID] = user
	return user, nil
}

func (r *memoryUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	if user, ok := r.byEmail[email]; ok {
		return user, nil
	}
	return nil, users.ErrNotFound
}

func (r *memoryUserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	if user, ok := r.byUsername[username]; ok {
		return user, nil
	}
	return nil, users.ErrNotFound
}

func (r *memoryUserRepo) GetByULID(ctx context.Context, ulid string) (*users.User, error) {
	if user, ok := r.byULID[ulid]; ok {
		return user, nil
	}
	return nil, users.ErrNotFound
}

func newAuthTestHandler() (*AuthHandler, *auth.JWTManager) {
	tokens := auth.NewJWTManager("test-secret", time.Hour, "neofi-test")
	svc := users.NewService(newMemoryUserRepo(), bcrypt.MinCost, zerolog.Nop())
	return NewAuthHandler(svc, tokens, "test"), tokens
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	res := httptest.NewRecorder()
	handler(res, req)
	return res
}

func TestAuthHandler_RegisterAndLogin(t *testing.T) {
	handler, tokens := newAuthTestHandler()

	res := postJSON(t, handler.Register, "/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"username": "alice",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, res.Code)

	var registered userResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&registered))
	require.NotEmpty(t, registered.ID)
	require.Equal(t, "alice", registered.Username)

	res = postJSON(t, handler.Login, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, res.Code)

	var token tokenResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&token))
	require.Equal(t, "bearer", token.TokenType)

	claims, err := tokens.Validate(token.AccessToken)
	require.NoError(t, err)
	require.Equal(t, registered.ID, claims.Subject)
	require.Equal(t, "alice", claims.Username)
}

func TestAuthHandler_RegisterDuplicate(t *testing.T) {
	handler, _ := newAuthTestHandler()
	payload := map[string]string{
		"email":    "alice@example.com",
		"username": "alice",
		"password": "correct horse battery",
	}

	res := postJSON(t, handler.Register, "/api/auth/register", payload)
	require.Equal(t, http.StatusCreated, res.Code)

	res = postJSON(t, handler.Register, "/api/auth/register", payload)
	require.Equal(t, http.StatusConflict, res.Code)
}

func TestAuthHandler_RegisterInvalidInput(t *testing.T) {
	handler, _ := newAuthTestHandler()

	res := postJSON(t, handler.Register, "/api/auth/register", map[string]string{
		"email":    "not-an-email",
		"username": "alice",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAuthHandler_LoginWrongPassword(t *testing.T) {
	handler, _ := newAuthTestHandler()

	res := postJSON(t, handler.Register, "/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"username": "alice",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, res.Code)

	res = postJSON(t, handler.Login, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = postJSON(t, handler.Login, "/api/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "whatever",
	})
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAuthHandler_Refresh(t *testing.T) {
	handler, tokens := newAuthTestHandler()

	user := &users.User{ID: "id-1", ULID: "01J0000000000000000000000C", Username: "alice", IsActive: true}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req = req.WithContext(middleware.WithCurrentUser(context.Background(), user))
	res := httptest.NewRecorder()
	handler.Refresh(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	var token tokenResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&token))
	claims, err := tokens.Validate(token.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ULID, claims.Subject)

	// Without an authenticated principal the refresh is rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	res = httptest.NewRecorder()
	handler.Refresh(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	handler, _ := newAuthTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	res := httptest.NewRecorder()
	handler.Logout(res, req)
	require.Equal(t, http.StatusOK, res.Code)
}
