package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MaherMaker/TimelyBackend/internal/middleware"
	"github.com/MaherMaker/TimelyBackend/internal/models"
	"github.com/MaherMaker/TimelyBackend/internal/repository"
)

// DeviceHandler handles device registry endpoints
type DeviceHandler struct {
	devices repository.DeviceRepo
}

// NewDeviceHandler creates a new DeviceHandler
func NewDeviceHandler(devices repository.DeviceRepo) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// Register registers or refreshes a device for the authenticated user
// @Summary Register device
// @Tags devices
// @Accept json
// @Produce json
// @Param request body models.RegisterDeviceRequest true "Device"
// @Success 200 {object} models.DeviceResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/devices/register [post]
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = identity.DeviceID
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}
	if req.DeviceName == "" {
		req.DeviceName = models.DefaultDeviceName(req.DeviceID)
	}

	device, err := h.devices.Upsert(r.Context(), identity.UserID, req.DeviceID, req.DeviceName, req.FCMToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error registering device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Device registered successfully",
		"device":  device.ToResponse(),
	})
}

// List returns all registered devices of the authenticated user
// @Summary List devices
// @Tags devices
// @Produce json
// @Success 200 {array} models.DeviceResponse
// @Router /api/devices [get]
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	devices, err := h.devices.ListByUser(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error retrieving devices")
		return
	}

	responses := make([]models.DeviceResponse, 0, len(devices))
	for _, d := range devices {
		responses = append(responses, d.ToResponse())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Devices retrieved successfully",
		"devices": responses,
	})
}

// UpdateFCMToken stores a fresh push token for one of the user's devices
// @Summary Update FCM token
// @Tags devices
// @Accept json
// @Produce json
// @Param request body models.UpdateFCMTokenRequest true "Token"
// @Success 200 {object} models.DeviceResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/devices/fcm-token [put]
func (h *DeviceHandler) UpdateFCMToken(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.UpdateFCMTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = identity.DeviceID
	}
	if req.DeviceID == "" || req.FCMToken == "" {
		writeError(w, http.StatusBadRequest, "deviceId and fcmToken are required")
		return
	}

	device, err := h.devices.UpdateFCMToken(r.Context(), identity.UserID, req.DeviceID, req.FCMToken)
	if err != nil {
		if errors.Is(err, models.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "Device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error updating FCM token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "FCM token updated successfully",
		"device":  device.ToResponse(),
	})
}
