package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/api/middleware"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/api/problem"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/events"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/ids"
)

// FieldError represents a request validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// principal resolves the acting user placed in the context by the auth
// middleware. Returns false (and writes 401) when the chain was bypassed.
func principal(w http.ResponseWriter, r *http.Request, env string) (events.Principal, bool) {
	user := middleware.CurrentUser(r.Context())
	if user == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", nil, env)
		return events.Principal{}, false
	}
	return events.Principal{ID: user.ID, ULID: user.ULID}, true
}

func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// requireULID extracts and validates a ULID path parameter, writing a 400
// problem response when it is missing or malformed.
func requireULID(w http.ResponseWriter, r *http.Request, paramName, env string) (string, bool) {
	value := strings.TrimSpace(pathParam(r, paramName))
	if value == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", FieldError{Field: paramName, Message: "missing"}, env)
		return "", false
	}
	if err := ids.ValidateULID(value); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", FieldError{Field: paramName, Message: "invalid ULID"}, env)
		return "", false
	}
	return ids.Normalize(value), true
}

// requireVersionNumber extracts a positive integer version path parameter.
func requireVersionNumber(w http.ResponseWriter, r *http.Request, paramName, env string) (int, bool) {
	value := strings.TrimSpace(pathParam(r, paramName))
	number, err := strconv.Atoi(value)
	if err != nil || number < 1 {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", FieldError{Field: paramName, Message: "must be a positive integer"}, env)
		return 0, false
	}
	return number, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
