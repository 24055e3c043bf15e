package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MaherMaker/TimelyBackend/internal/middleware"
	"github.com/MaherMaker/TimelyBackend/internal/models"
	"github.com/MaherMaker/TimelyBackend/internal/services"
)

// ConnectionIDHeader names the live connection that originated a mutation so
// the fan-out can exclude it.
const ConnectionIDHeader = "X-Connection-ID"

// AlarmHandler handles alarm CRUD and sync endpoints
type AlarmHandler struct {
	alarmService *services.AlarmService
	syncService  *services.SyncService
}

// NewAlarmHandler creates a new AlarmHandler
func NewAlarmHandler(alarmService *services.AlarmService, syncService *services.SyncService) *AlarmHandler {
	return &AlarmHandler{
		alarmService: alarmService,
		syncService:  syncService,
	}
}

// List returns all alarms for the authenticated user
// @Summary List alarms
// @Tags alarms
// @Produce json
// @Success 200 {object} models.AlarmListResponse
// @Router /api/alarms [get]
func (h *AlarmHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	alarms, err := h.alarmService.List(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error retrieving alarms")
		return
	}
	if alarms == nil {
		alarms = []*models.Alarm{}
	}

	writeJSON(w, http.StatusOK, models.AlarmListResponse{
		Success: true,
		Message: "Alarms retrieved successfully",
		Alarms:  alarms,
	})
}

// Get returns one alarm by id
// @Summary Get alarm
// @Tags alarms
// @Produce json
// @Success 200 {object} models.AlarmResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/alarms/{id} [get]
func (h *AlarmHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, ok := alarmID(w, r)
	if !ok {
		return
	}

	alarm, err := h.alarmService.Get(r.Context(), id, identity.UserID)
	if err != nil {
		respondAlarmError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.AlarmResponse{
		Success: true,
		Message: "Alarm retrieved successfully",
		Alarm:   alarm,
	})
}

// Create creates a new alarm
// @Summary Create alarm
// @Tags alarms
// @Accept json
// @Produce json
// @Param request body models.AlarmDraft true "Alarm"
// @Success 201 {object} models.AlarmResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/alarms [post]
func (h *AlarmHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var draft models.AlarmDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	alarm, err := h.alarmService.Create(r.Context(), identity.UserID, &draft, identity.DeviceID, r.Header.Get(ConnectionIDHeader))
	if err != nil {
		respondAlarmError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.AlarmResponse{
		Success: true,
		Message: "Alarm created successfully",
		Alarm:   alarm,
		ID:      alarm.ID,
	})
}

// Update overwrites the supplied fields of an existing alarm
// @Summary Update alarm
// @Tags alarms
// @Accept json
// @Produce json
// @Param request body models.AlarmUpdate true "Fields to overwrite"
// @Success 200 {object} models.AlarmResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/alarms/{id} [put]
func (h *AlarmHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, ok := alarmID(w, r)
	if !ok {
		return
	}

	var update models.AlarmUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	alarm, err := h.alarmService.Update(r.Context(), id, identity.UserID, &update, identity.DeviceID, r.Header.Get(ConnectionIDHeader))
	if err != nil {
		respondAlarmError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.AlarmResponse{
		Success: true,
		Message: "Alarm updated successfully",
		Alarm:   alarm,
	})
}

// Delete removes an alarm
// @Summary Delete alarm
// @Tags alarms
// @Produce json
// @Success 200 {object} models.AlarmResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/alarms/{id} [delete]
func (h *AlarmHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, ok := alarmID(w, r)
	if !ok {
		return
	}

	if err := h.alarmService.Delete(r.Context(), id, identity.UserID, identity.DeviceID, r.Header.Get(ConnectionIDHeader)); err != nil {
		respondAlarmError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.AlarmResponse{
		Success: true,
		Message: "Alarm deleted successfully",
		ID:      id,
	})
}

// Toggle flips an alarm's active flag
// @Summary Toggle alarm
// @Tags alarms
// @Accept json
// @Produce json
// @Param request body models.ToggleRequest true "Desired state"
// @Success 200 {object} models.AlarmResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/alarms/{id}/toggle [put]
func (h *AlarmHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, ok := alarmID(w, r)
	if !ok {
		return
	}

	var req models.ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	alarm, err := h.alarmService.Toggle(r.Context(), id, identity.UserID, req.IsActive, identity.DeviceID, r.Header.Get(ConnectionIDHeader))
	if err != nil {
		respondAlarmError(w, err)
		return
	}

	message := "Alarm deactivated successfully"
	if req.IsActive {
		message = "Alarm activated successfully"
	}
	writeJSON(w, http.StatusOK, models.AlarmResponse{
		Success: true,
		Message: message,
		Alarm:   alarm,
	})
}

// Sync reconciles a device's local changes and returns the server delta
// @Summary Sync alarms
// @Tags alarms
// @Accept json
// @Produce json
// @Param request body models.SyncRequest true "Client batch"
// @Success 200 {object} models.SyncResponse
// @Router /api/alarms/sync [post]
func (h *AlarmHandler) Sync(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// The device id in the body wins over the header: the pair identifies
	// the registry row the watermark lives on.
	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = identity.DeviceID
	}
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}

	delta, err := h.syncService.Sync(r.Context(), identity.UserID, deviceID, req.Alarms, r.Header.Get(ConnectionIDHeader))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error syncing alarms")
		return
	}

	writeJSON(w, http.StatusOK, models.SyncResponse{
		Success: true,
		Message: "Sync completed successfully",
		Alarms:  delta,
	})
}

func alarmID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid alarm id")
		return 0, false
	}
	return id, true
}

func respondAlarmError(w http.ResponseWriter, err error) {
	switch {
	case models.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrAlarmNotFound):
		writeError(w, http.StatusNotFound, "Alarm not found")
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Success: false, Message: message})
}
