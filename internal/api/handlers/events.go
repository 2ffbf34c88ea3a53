package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/api/problem"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/audit"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/events"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/metrics"
)

func recordMutation(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.EventMutationsTotal.WithLabelValues(kind, outcome).Inc()
}

type EventsHandler struct {
	Service *events.Service
	Env     string
}

func NewEventsHandler(service *events.Service, env string) *EventsHandler {
	return &EventsHandler{Service: service, Env: env}
}

type eventResponse struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	StartTime         time.Time      `json:"start_time"`
	EndTime           time.Time      `json:"end_time"`
	Location          *string        `json:"location"`
	IsRecurring       bool           `json:"is_recurring"`
	RecurrencePattern map[string]any `json:"recurrence_pattern"`
	OwnerID           string         `json:"owner_id"`
	VersionNumber     int            `json:"version_number"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func eventPayload(event *events.Event) eventResponse {
	return eventResponse{
		ID:                event.ULID,
		Title:             event.Title,
		Description:       event.Description,
		StartTime:         event.StartTime,
		EndTime:           event.EndTime,
		Location:          event.Location,
		IsRecurring:       event.IsRecurring,
		RecurrencePattern: event.RecurrencePattern,
		OwnerID:           event.OwnerULID,
		VersionNumber:     event.VersionNumber,
		CreatedAt:         event.CreatedAt,
		UpdatedAt:         event.UpdatedAt,
	}
}

type versionResponse struct {
	VersionNumber     int             `json:"version_number"`
	Data              events.Snapshot `json:"data"`
	ChangeDescription string          `json:"change_description"`
	CreatedBy         string          `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
}

func versionPayload(version *events.Version) versionResponse {
	return versionResponse{
		VersionNumber:     version.Number,
		Data:              version.Data,
		ChangeDescription: version.Description,
		CreatedBy:         version.CreatedBy,
		CreatedAt:         version.CreatedAt,
	}
}

type changelogEntryResponse struct {
	VersionNumber int       `json:"version_number"`
	FieldName     string    `json:"field_name"`
	OldValue      any       `json:"old_value"`
	NewValue      any       `json:"new_value"`
	ChangedBy     string    `json:"changed_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type permissionResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func permissionPayload(permission *events.Permission) permissionResponse {
	return permissionResponse{
		UserID:    permission.UserULID,
		Username:  permission.Username,
		Role:      string(permission.Role),
		CreatedAt: permission.CreatedAt,
		UpdatedAt: permission.UpdatedAt,
	}
}

// writeError maps domain errors to problem responses. Missing events and
// denied access map to the same 404 so the API never confirms the existence
// of an event the caller cannot see.
func (h *EventsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr events.ValidationError
	switch {
	case errors.As(err, &validationErr):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env,
			problem.WithErrors(map[string]any{validationErr.Field: validationErr.Message}))
	case errors.Is(err, events.ErrTimeConflict), errors.Is(err, events.ErrDuplicatePermission):
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Conflict", err, h.Env)
	case errors.Is(err, events.ErrNotFound),
		errors.Is(err, events.ErrForbidden),
		errors.Is(err, events.ErrVersionNotFound),
		errors.Is(err, events.ErrPermissionNotFound),
		errors.Is(err, events.ErrUserNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
	}
}

type createEventRequest struct {
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	StartTime         time.Time      `json:"start_time"`
	EndTime           time.Time      `json:"end_time"`
	Location          *string        `json:"location"`
	IsRecurring       bool           `json:"is_recurring"`
	RecurrencePattern map[string]any `json:"recurrence_pattern"`
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}

	var input createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	event, err := h.Service.Create(r.Context(), p, events.CreateInput{
		Title:             input.Title,
		Description:       input.Description,
		StartTime:         input.StartTime,
		EndTime:           input.EndTime,
		Location:          input.Location,
		IsRecurring:       input.IsRecurring,
		RecurrencePattern: input.RecurrencePattern,
	})
	recordMutation("create", err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, eventPayload(event))
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}

	query := r.URL.Query()
	params := events.ListParams{Limit: events.DefaultListLimit}
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > events.MaxListLimit {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid limit parameter", nil, h.Env)
			return
		}
		params.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid offset parameter", nil, h.Env)
			return
		}
		params.Offset = offset
	}

	items, err := h.Service.List(r.Context(), p, params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	payload := make([]eventResponse, 0, len(items))
	for i := range items {
		payload = append(payload, eventPayload(&items[i]))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	event, err := h.Service.Get(r.Context(), p, eventULID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventPayload(event))
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	var patch events.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	event, err := h.Service.Update(r.Context(), p, eventULID, patch)
	recordMutation("update", err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventPayload(event))
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	err := h.Service.Delete(r.Context(), p, eventULID)
	recordMutation("delete", err)
	if err != nil {
		audit.FromContext(r.Context()).Failure("event.delete", p.ULID, "event", eventULID, audit.ClientIP(r), nil)
		h.writeError(w, r, err)
		return
	}

	audit.FromContext(r.Context()).Success("event.delete", p.ULID, "event", eventULID, audit.ClientIP(r), nil)
	w.WriteHeader(http.StatusNoContent)
}

type shareRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *EventsHandler) Share(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	var input shareRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}
	role, err := events.ParseRole(input.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	permission, err := h.Service.Share(r.Context(), p, eventULID, input.UserID, role)
	if err != nil {
		audit.FromContext(r.Context()).Failure("permission.grant", p.ULID, "event", eventULID, audit.ClientIP(r),
			map[string]string{"grantee": input.UserID, "role": input.Role})
		h.writeError(w, r, err)
		return
	}

	audit.FromContext(r.Context()).Success("permission.grant", p.ULID, "event", eventULID, audit.ClientIP(r),
		map[string]string{"grantee": input.UserID, "role": input.Role})
	writeJSON(w, http.StatusCreated, permissionPayload(permission))
}

func (h *EventsHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	permissions, err := h.Service.ListPermissions(r.Context(), p, eventULID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	payload := make([]permissionResponse, 0, len(permissions))
	for i := range permissions {
		payload = append(payload, permissionPayload(&permissions[i]))
	}
	writeJSON(w, http.StatusOK, payload)
}

type updatePermissionRequest struct {
	Role string `json:"role"`
}

func (h *EventsHandler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}
	granteeULID, ok := requireULID(w, r, "userId", h.Env)
	if !ok {
		return
	}

	var input updatePermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}
	role, err := events.ParseRole(input.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	permission, err := h.Service.UpdatePermission(r.Context(), p, eventULID, granteeULID, role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionPayload(permission))
}

func (h *EventsHandler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}
	granteeULID, ok := requireULID(w, r, "userId", h.Env)
	if !ok {
		return
	}

	if err := h.Service.RevokePermission(r.Context(), p, eventULID, granteeULID); err != nil {
		audit.FromContext(r.Context()).Failure("permission.revoke", p.ULID, "event", eventULID, audit.ClientIP(r),
			map[string]string{"grantee": granteeULID})
		h.writeError(w, r, err)
		return
	}

	audit.FromContext(r.Context()).Success("permission.revoke", p.ULID, "event", eventULID, audit.ClientIP(r),
		map[string]string{"grantee": granteeULID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *EventsHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}
	number, ok := requireVersionNumber(w, r, "version", h.Env)
	if !ok {
		return
	}

	version, err := h.Service.GetVersion(r.Context(), p, eventULID, number)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versionPayload(version))
}

func (h *EventsHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	versions, err := h.Service.ListVersions(r.Context(), p, eventULID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	payload := make([]versionResponse, 0, len(versions))
	for i := range versions {
		payload = append(payload, versionPayload(&versions[i]))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *EventsHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}
	number, ok := requireVersionNumber(w, r, "version", h.Env)
	if !ok {
		return
	}

	event, err := h.Service.Rollback(r.Context(), p, eventULID, number)
	recordMutation("rollback", err)
	if err != nil {
		audit.FromContext(r.Context()).Failure("event.rollback", p.ULID, "event", eventULID, audit.ClientIP(r), nil)
		h.writeError(w, r, err)
		return
	}

	audit.FromContext(r.Context()).Success("event.rollback", p.ULID, "event", eventULID, audit.ClientIP(r),
		map[string]string{"target_version": pathParam(r, "version")})
	writeJSON(w, http.StatusOK, eventPayload(event))
}

func (h *EventsHandler) Changelog(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}

	entries, err := h.Service.Changelog(r.Context(), p, eventULID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	payload := make([]changelogEntryResponse, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, changelogEntryResponse{
			VersionNumber: entry.VersionNumber,
			FieldName:     entry.FieldName,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			ChangedBy:     entry.CreatedBy,
			CreatedAt:     entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *EventsHandler) Diff(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Env)
	if !ok {
		return
	}
	eventULID, ok := requireULID(w, r, "id", h.Env)
	if !ok {
		return
	}
	from, ok := requireVersionNumber(w, r, "v1", h.Env)
	if !ok {
		return
	}
	to, ok := requireVersionNumber(w, r, "v2", h.Env)
	if !ok {
		return
	}

	entries, err := h.Service.Diff(r.Context(), p, eventULID, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
