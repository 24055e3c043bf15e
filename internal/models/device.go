package models

import (
	"fmt"
	"time"
)

// Device is one registry row per (userId, deviceId) pair. DeviceID is the
// client-chosen opaque identifier, stable across app restarts.
type Device struct {
	ID         int64      `json:"id"`
	UserID     int        `json:"userId"`
	DeviceID   string     `json:"deviceId"`
	DeviceName string     `json:"deviceName"`
	LastSync   *time.Time `json:"lastSync,omitempty"` // nil until the first successful sync
	FCMToken   *string    `json:"-"`                  // never expose the push token
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Watermark returns the lower bound for the next delta query. A brand-new
// device gets epoch zero so it receives the user's entire alarm set.
func (d *Device) Watermark() time.Time {
	if d.LastSync == nil {
		return time.Unix(0, 0).UTC()
	}
	return *d.LastSync
}

// DefaultDeviceName is the display label used when registration happens
// implicitly through the sync path.
func DefaultDeviceName(deviceID string) string {
	short := deviceID
	if len(short) > 6 {
		short = short[:6]
	}
	return fmt.Sprintf("Device %s", short)
}

// DeviceResponse is the safe response format.
type DeviceResponse struct {
	ID         int64      `json:"id"`
	DeviceID   string     `json:"deviceId"`
	DeviceName string     `json:"deviceName"`
	LastSync   *time.Time `json:"lastSync"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ToResponse converts Device to DeviceResponse (safe for API).
func (d *Device) ToResponse() DeviceResponse {
	return DeviceResponse{
		ID:         d.ID,
		DeviceID:   d.DeviceID,
		DeviceName: d.DeviceName,
		LastSync:   d.LastSync,
		CreatedAt:  d.CreatedAt,
	}
}

// RegisterDeviceRequest is the request body for explicit device registration.
// FCMToken nil means "leave any stored token alone".
type RegisterDeviceRequest struct {
	DeviceID   string  `json:"deviceId"`
	DeviceName string  `json:"deviceName"`
	FCMToken   *string `json:"fcmToken,omitempty"`
}

// UpdateFCMTokenRequest updates a device's push-delivery address.
type UpdateFCMTokenRequest struct {
	DeviceID string `json:"deviceId"`
	FCMToken string `json:"fcmToken"`
}
