package models

import (
	"fmt"
	"strings"
	"time"
)

// Sync status values for advisory bookkeeping. Conflict arbitration is
// last-write-wins by updatedAt, not by this field.
const (
	SyncStatusSynced   = "synced"
	SyncStatusPending  = "pending"
	SyncStatusConflict = "conflict"
)

// Alarm is the synchronized unit, partitioned per user.
type Alarm struct {
	ID             int64     `json:"id"`
	UserID         int       `json:"userId"`
	Title          string    `json:"title"`
	Time           string    `json:"time"` // "HH:MM", 24h
	Days           []int     `json:"days"` // weekday integers 0-6, Sunday=0
	Sound          string    `json:"sound,omitempty"`
	Vibration      bool      `json:"vibration"`
	SnoozeInterval int       `json:"snoozeInterval"`
	SnoozeCount    int       `json:"snoozeCount"`
	IsActive       bool      `json:"isActive"`
	NoRepeat       bool      `json:"noRepeat"`
	DeviceID       string    `json:"deviceId,omitempty"` // device that last wrote this row
	SyncStatus     string    `json:"syncStatus"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"` // synchronization watermark
}

// AlarmDraft is a client-submitted alarm. ID is nil for new alarms; a non-nil
// ID refers to an existing server row the client wants to overwrite.
type AlarmDraft struct {
	ID             *int64 `json:"id,omitempty"`
	Title          string `json:"title"`
	Time           string `json:"time"`
	Days           []int  `json:"days"`
	Sound          string `json:"sound,omitempty"`
	Vibration      *bool  `json:"vibration,omitempty"`
	SnoozeInterval *int   `json:"snoozeInterval,omitempty"`
	SnoozeCount    *int   `json:"snoozeCount,omitempty"`
	IsActive       *bool  `json:"isActive,omitempty"`
	NoRepeat       *bool  `json:"noRepeat,omitempty"`
}

// AlarmUpdate is a partial update for the single-entity mutation path.
// Supplied fields fully overwrite the stored values; there is no field-level
// merge between concurrent writers.
type AlarmUpdate struct {
	Title          *string `json:"title,omitempty"`
	Time           *string `json:"time,omitempty"`
	Days           []int   `json:"days,omitempty"`
	Sound          *string `json:"sound,omitempty"`
	Vibration      *bool   `json:"vibration,omitempty"`
	SnoozeInterval *int    `json:"snoozeInterval,omitempty"`
	SnoozeCount    *int    `json:"snoozeCount,omitempty"`
	IsActive       *bool   `json:"isActive,omitempty"`
	NoRepeat       *bool   `json:"noRepeat,omitempty"`
	DeviceID       *string `json:"-"`
	SyncStatus     *string `json:"-"`
}

// Validate checks the draft's shape before any store access.
func (d AlarmDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return ValidationError{Field: "title", Message: "title cannot be empty"}
	}
	if err := ValidateTimeOfDay(d.Time); err != nil {
		return err
	}
	return ValidateDays(d.Days)
}

// Validate checks the supplied fields of a partial update.
func (u *AlarmUpdate) Validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return ValidationError{Field: "title", Message: "title cannot be empty"}
	}
	if u.Time != nil {
		if err := ValidateTimeOfDay(*u.Time); err != nil {
			return err
		}
	}
	if u.Days != nil {
		return ValidateDays(u.Days)
	}
	return nil
}

// ValidateTimeOfDay checks the "HH:MM" 24h format.
func ValidateTimeOfDay(s string) error {
	if len(s) != 5 || s[2] != ':' {
		return ValidationError{Field: "time", Message: fmt.Sprintf("time %q must be in HH:MM format", s)}
	}
	hh, mm := s[:2], s[3:]
	h, hok := atoi2(hh)
	m, mok := atoi2(mm)
	if !hok || !mok || h > 23 || m > 59 {
		return ValidationError{Field: "time", Message: fmt.Sprintf("time %q must be in HH:MM format", s)}
	}
	return nil
}

// ValidateDays checks that every entry is a weekday integer 0-6 (Sunday=0).
func ValidateDays(days []int) error {
	for _, d := range days {
		if d < 0 || d > 6 {
			return ValidationError{Field: "days", Message: fmt.Sprintf("day %d out of range 0-6", d)}
		}
	}
	return nil
}

func atoi2(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// ToAlarm materializes a draft into a full alarm owned by userID, stamped with
// the writing device. Unsupplied optional fields take the original defaults.
func (d AlarmDraft) ToAlarm(userID int, deviceID string) *Alarm {
	a := &Alarm{
		UserID:         userID,
		Title:          d.Title,
		Time:           d.Time,
		Days:           d.Days,
		Sound:          d.Sound,
		Vibration:      true,
		SnoozeInterval: 5,
		SnoozeCount:    3,
		IsActive:       true,
		NoRepeat:       false,
		DeviceID:       deviceID,
		SyncStatus:     SyncStatusSynced,
	}
	if d.ID != nil {
		a.ID = *d.ID
	}
	if d.Vibration != nil {
		a.Vibration = *d.Vibration
	}
	if d.SnoozeInterval != nil {
		a.SnoozeInterval = *d.SnoozeInterval
	}
	if d.SnoozeCount != nil {
		a.SnoozeCount = *d.SnoozeCount
	}
	if d.IsActive != nil {
		a.IsActive = *d.IsActive
	}
	if d.NoRepeat != nil {
		a.NoRepeat = *d.NoRepeat
	}
	return a
}

// ToUpdate converts a draft into a whole-document update (client-wins apply
// during sync).
func (d AlarmDraft) ToUpdate(deviceID string) *AlarmUpdate {
	status := SyncStatusSynced
	u := &AlarmUpdate{
		Title:      &d.Title,
		Time:       &d.Time,
		Days:       d.Days,
		Sound:      &d.Sound,
		DeviceID:   &deviceID,
		SyncStatus: &status,
	}
	u.Vibration = d.Vibration
	u.SnoozeInterval = d.SnoozeInterval
	u.SnoozeCount = d.SnoozeCount
	u.IsActive = d.IsActive
	u.NoRepeat = d.NoRepeat
	return u
}
