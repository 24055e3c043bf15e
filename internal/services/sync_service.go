package services

import (
	"context"
	"fmt"

	"github.com/MaherMaker/TimelyBackend/internal/models"
	"github.com/MaherMaker/TimelyBackend/internal/observability"
	"github.com/MaherMaker/TimelyBackend/internal/repository"
)

// SyncService runs the reconciliation protocol for one device per call. The
// protocol is idempotent: a dropped event or a re-run of the same batch heals
// itself on the next sync.
type SyncService struct {
	alarms   repository.AlarmRepo
	devices  repository.DeviceRepo
	hub      Broadcaster
	notifier DeviceNotifier
	clock    *repository.Clock
	metrics  *observability.BusinessMetrics
}

// NewSyncService creates a new SyncService
func NewSyncService(alarms repository.AlarmRepo, devices repository.DeviceRepo, hub Broadcaster, notifier DeviceNotifier, clock *repository.Clock, metrics *observability.BusinessMetrics) *SyncService {
	return &SyncService{
		alarms:   alarms,
		devices:  devices,
		hub:      hub,
		notifier: notifier,
		clock:    clock,
		metrics:  metrics,
	}
}

// Sync merges the client's batch into the store and returns the server delta
// since the device's pre-sync watermark.
//
// The watermark advances to the later of the sync's start time and the last
// write this call made. Rows this device just uploaded land at or below the
// new watermark and are not redelivered on its next sync; rows written by a
// concurrent sync of another device take later clock stamps and stay above
// it, so they are delivered next time. The returned delta still includes the
// rows this call just wrote (the client needs the server-assigned ids and
// no-ops on alarms identical to what it sent).
func (s *SyncService) Sync(ctx context.Context, userID int, deviceID string, drafts []models.AlarmDraft, connectionID string) ([]*models.Alarm, error) {
	syncStart := s.clock.Now()

	logger := observability.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id":   userID,
		"device_id": deviceID,
	})
	logger.Infof("sync starting, client batch size %d", len(drafts))

	// Registration and sync are the same registry operation. A failure here
	// is fatal: proceeding with an implicit "now" watermark would make a new
	// device silently miss every pre-existing alarm.
	device, err := s.devices.Upsert(ctx, userID, deviceID, models.DefaultDeviceName(deviceID), nil)
	if err != nil {
		return nil, fmt.Errorf("device registration failed: %w", err)
	}
	watermark := device.Watermark()

	applied := 0
	lastWrite := syncStart
	for _, draft := range drafts {
		alarm, err := s.applyDraft(ctx, userID, deviceID, &draft)
		if err != nil {
			// Partial-batch failure is the expected failure mode: skip the
			// draft, keep the rest of the batch and the delta computation.
			logger.Errorf("sync: applying client alarm failed: %v", err)
			continue
		}
		applied++
		if alarm != nil && alarm.UpdatedAt.After(lastWrite) {
			lastWrite = alarm.UpdatedAt
		}
	}

	delta, err := s.alarms.ListUpdatedSince(ctx, userID, watermark)
	if err != nil {
		return nil, err
	}
	logger.Infof("sync: %d drafts applied, %d server changes since %s", applied, len(delta), watermark.Format("2006-01-02T15:04:05.000000Z"))

	if err := s.devices.AdvanceWatermark(ctx, userID, deviceID, lastWrite); err != nil {
		return nil, err
	}

	s.metrics.RecordSyncOperation(ctx, userID, applied, len(delta))

	if applied > 0 {
		delivered := s.hub.EmitToUser(userID, EventSyncCompleted, map[string]interface{}{
			"deviceId": deviceID,
			"count":    applied,
		}, connectionID)
		s.metrics.RecordBroadcast(ctx, EventSyncCompleted, delivered)
		s.notifyAsync(userID, "sync", 0, deviceID)
	}

	if delta == nil {
		delta = []*models.Alarm{}
	}
	return delta, nil
}

// applyDraft processes one client-submitted alarm, client-wins, and returns
// the row as written so the caller can track the last write stamp.
func (s *SyncService) applyDraft(ctx context.Context, userID int, deviceID string, draft *models.AlarmDraft) (*models.Alarm, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	if draft.ID != nil {
		existing, err := s.alarms.Get(ctx, *draft.ID, userID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if err := s.alarms.Update(ctx, *draft.ID, userID, draft.ToUpdate(deviceID)); err != nil {
				return nil, err
			}
			return s.alarms.Get(ctx, *draft.ID, userID)
		}
		// Row deleted elsewhere or never persisted: re-create under a fresh
		// id. The original identity cannot be preserved; the delta delivers
		// the replacement row to every device.
	}

	alarm := draft.ToAlarm(userID, deviceID)
	alarm.ID = 0
	if _, err := s.alarms.Create(ctx, alarm); err != nil {
		return nil, err
	}
	return alarm, nil
}

func (s *SyncService) notifyAsync(userID int, operation string, entityID int64, excludeDeviceID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		s.notifier.NotifyOtherDevices(ctx, userID, operation, entityID, excludeDeviceID)
	}()
}
