package services

import (
	"context"
	"time"

	"github.com/MaherMaker/TimelyBackend/internal/models"
	"github.com/MaherMaker/TimelyBackend/internal/observability"
	"github.com/MaherMaker/TimelyBackend/internal/repository"
)

// Broadcaster fans an event out to a user's other live connections.
type Broadcaster interface {
	EmitToUser(userID int, event string, payload interface{}, excludeConnectionID string) int
}

const notifyTimeout = 10 * time.Second

// AlarmService owns the single-entity mutation paths. Every successful
// mutation is broadcast to the user's other live connections before the call
// returns, then the push fallback wakes the user's other registered devices
// asynchronously.
type AlarmService struct {
	alarms   repository.AlarmRepo
	hub      Broadcaster
	notifier DeviceNotifier
	metrics  *observability.BusinessMetrics
}

// NewAlarmService creates a new AlarmService
func NewAlarmService(alarms repository.AlarmRepo, hub Broadcaster, notifier DeviceNotifier, metrics *observability.BusinessMetrics) *AlarmService {
	return &AlarmService{
		alarms:   alarms,
		hub:      hub,
		notifier: notifier,
		metrics:  metrics,
	}
}

// Get returns the alarm owned by userID, or ErrAlarmNotFound. An alarm owned
// by someone else is indistinguishable from a missing one.
func (s *AlarmService) Get(ctx context.Context, id int64, userID int) (*models.Alarm, error) {
	alarm, err := s.alarms.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if alarm == nil {
		return nil, models.ErrAlarmNotFound
	}
	return alarm, nil
}

// List returns all alarms of userID.
func (s *AlarmService) List(ctx context.Context, userID int) ([]*models.Alarm, error) {
	return s.alarms.ListByUser(ctx, userID)
}

// Create validates the draft, persists it, and notifies the user's other
// sessions and devices.
func (s *AlarmService) Create(ctx context.Context, userID int, draft *models.AlarmDraft, deviceID, connectionID string) (*models.Alarm, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	alarm := draft.ToAlarm(userID, deviceID)
	alarm.SyncStatus = models.SyncStatusSynced
	if _, err := s.alarms.Create(ctx, alarm); err != nil {
		return nil, err
	}

	observability.WithContext(ctx).Infof("alarm %d created by user %d on device %s", alarm.ID, userID, deviceID)
	s.fanOut(ctx, userID, EventAlarmCreated, alarm, connectionID)
	s.notifyAsync(userID, "create", alarm.ID, deviceID)
	return alarm, nil
}

// Update applies a partial update. Supplied fields overwrite the stored row
// as a whole document; there is no per-field merge with concurrent writers.
func (s *AlarmService) Update(ctx context.Context, id int64, userID int, update *models.AlarmUpdate, deviceID, connectionID string) (*models.Alarm, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.alarms.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, models.ErrAlarmNotFound
	}

	update.DeviceID = &deviceID
	if err := s.alarms.Update(ctx, id, userID, update); err != nil {
		return nil, err
	}

	alarm, err := s.alarms.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if alarm == nil {
		return nil, models.ErrAlarmNotFound
	}

	observability.WithContext(ctx).Infof("alarm %d updated by user %d on device %s", id, userID, deviceID)
	s.fanOut(ctx, userID, EventAlarmUpdated, alarm, connectionID)
	s.notifyAsync(userID, "update", id, deviceID)
	return alarm, nil
}

// Delete removes the alarm and notifies other sessions with the deleted id.
func (s *AlarmService) Delete(ctx context.Context, id int64, userID int, deviceID, connectionID string) error {
	existing, err := s.alarms.Get(ctx, id, userID)
	if err != nil {
		return err
	}
	if existing == nil {
		return models.ErrAlarmNotFound
	}

	deleted, err := s.alarms.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return models.ErrAlarmNotFound
	}

	observability.WithContext(ctx).Infof("alarm %d deleted by user %d on device %s", id, userID, deviceID)
	s.fanOut(ctx, userID, EventAlarmDeleted, map[string]int64{"id": id}, connectionID)
	s.notifyAsync(userID, "delete", id, deviceID)
	return nil
}

// Toggle flips the active flag. Other sessions see it as a plain update.
func (s *AlarmService) Toggle(ctx context.Context, id int64, userID int, isActive bool, deviceID, connectionID string) (*models.Alarm, error) {
	update := &models.AlarmUpdate{IsActive: &isActive}
	return s.Update(ctx, id, userID, update, deviceID, connectionID)
}

func (s *AlarmService) fanOut(ctx context.Context, userID int, event string, payload interface{}, connectionID string) {
	delivered := s.hub.EmitToUser(userID, event, payload, connectionID)
	s.metrics.RecordBroadcast(ctx, event, delivered)
}

// notifyAsync kicks the push fallback without blocking the HTTP response.
// The detached context carries its own deadline.
func (s *AlarmService) notifyAsync(userID int, operation string, entityID int64, excludeDeviceID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		s.notifier.NotifyOtherDevices(ctx, userID, operation, entityID, excludeDeviceID)
	}()
}
