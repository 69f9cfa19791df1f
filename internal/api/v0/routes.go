// Package v0 provides the request/response handlers of the messaging
// surface: auth-state queries, settings reads and settings writes.
package v0

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tabwarden/tabwarden/internal/auth"
	"github.com/tabwarden/tabwarden/internal/items"
	"github.com/tabwarden/tabwarden/internal/settings"
	"github.com/tabwarden/tabwarden/internal/versions"
)

// SyncTrigger requests an immediate sync round without blocking.
type SyncTrigger interface {
	TriggerSync()
}

// AuthStateResponse answers the auth-state query.
type AuthStateResponse struct {
	IsAuthenticated bool `json:"isAuthenticated"`
}

// WriteSettingsRequest carries the fields the UI client may change. The
// bookkeeping fields (lastSyncTime, containerHandle, lastItemCount) are owned
// by the orchestrator and are not writable over the wire.
type WriteSettingsRequest struct {
	ContainerName          *string           `json:"containerName"`
	RefreshIntervalMinutes *int              `json:"refreshIntervalMinutes"`
	NameTemplate           *string           `json:"nameTemplate"`
	ContainerColor         *string           `json:"containerColor"`
	FilterMode             *items.FilterMode `json:"filterMode"`
	OriginFilter           *string           `json:"originFilter"`
}

// WriteSettingsResponse acknowledges a settings write.
type WriteSettingsResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the messaging-surface routes with dependency injection
type Routes struct {
	oracle  auth.Oracle
	store   settings.Store
	trigger SyncTrigger
}

// Router creates the /api/v0 router.
func Router(oracle auth.Oracle, store settings.Store, trigger SyncTrigger) http.Handler {
	routes := &Routes{
		oracle:  oracle,
		store:   store,
		trigger: trigger,
	}

	r := chi.NewRouter()
	r.Get("/auth", routes.getAuthState)
	r.Get("/settings", routes.getSettings)
	r.Patch("/settings", routes.patchSettings)
	return r
}

// HealthRouter creates the root health and version routes.
func HealthRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, versions.GetVersionInfo())
	})
	return r
}

// getAuthState handles GET /api/v0/auth
func (rr *Routes) getAuthState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AuthStateResponse{
		IsAuthenticated: rr.oracle.IsAuthenticated(r.Context()),
	})
}

// getSettings handles GET /api/v0/settings
func (rr *Routes) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := rr.store.Get(r.Context())
	if err != nil {
		slog.Error("Failed to read settings", "error", err)
		writeError(w, "Failed to read settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// patchSettings handles PATCH /api/v0/settings. A successful write triggers
// an immediate sync round as a side effect.
func (rr *Routes) patchSettings(w http.ResponseWriter, r *http.Request) {
	var req WriteSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid settings payload", http.StatusBadRequest)
		return
	}
	if req.FilterMode != nil && !req.FilterMode.Valid() {
		writeError(w, "Invalid filter mode", http.StatusBadRequest)
		return
	}
	if req.RefreshIntervalMinutes != nil && *req.RefreshIntervalMinutes <= 0 {
		writeError(w, "Refresh interval must be positive", http.StatusBadRequest)
		return
	}

	patch := settings.Patch{
		ContainerName:          req.ContainerName,
		RefreshIntervalMinutes: req.RefreshIntervalMinutes,
		NameTemplate:           req.NameTemplate,
		ContainerColor:         req.ContainerColor,
		FilterMode:             req.FilterMode,
		OriginFilter:           req.OriginFilter,
	}
	if _, err := rr.store.Set(r.Context(), patch); err != nil {
		slog.Error("Failed to write settings", "error", err)
		writeError(w, "Failed to write settings", http.StatusInternalServerError)
		return
	}
	rr.trigger.TriggerSync()
	writeJSON(w, http.StatusOK, WriteSettingsResponse{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
