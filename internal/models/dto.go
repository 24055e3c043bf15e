package models

// SyncRequest is the body of POST /api/alarms/sync. The device uploads its
// local changes and receives the server delta in return.
type SyncRequest struct {
	DeviceID string       `json:"deviceId"`
	Alarms   []AlarmDraft `json:"alarms"`
}

// SyncResponse carries the server delta only, not the full alarm set (except
// implicitly for a first-time device).
type SyncResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Alarms  []*Alarm `json:"alarms"`
}

// AlarmResponse is the envelope for single-entity mutation endpoints.
type AlarmResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Alarm   *Alarm `json:"alarm,omitempty"`
	ID      int64  `json:"id,omitempty"`
}

// AlarmListResponse is returned when listing alarms.
type AlarmListResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Alarms  []*Alarm `json:"alarms"`
}

// ToggleRequest is the body of PUT /api/alarms/{id}/toggle.
type ToggleRequest struct {
	IsActive bool `json:"isActive"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
