package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MaherMaker/TimelyBackend/internal/observability"
	"github.com/MaherMaker/TimelyBackend/internal/repository"
)

// DeviceNotifier wakes a user's other registered devices so they pull the
// change themselves.
type DeviceNotifier interface {
	NotifyOtherDevices(ctx context.Context, userID int, operation string, entityID int64, excludeDeviceID string)
}

// NotificationService is the push fallback for devices without a live
// connection. Delivery is best-effort: every failure is logged, never
// surfaced to the HTTP caller.
type NotificationService struct {
	devices repository.DeviceRepo
	sender  PushSender
	metrics *observability.BusinessMetrics
}

// NewNotificationService creates a new NotificationService. sender may be nil
// when push is disabled; notifications then become no-ops.
func NewNotificationService(devices repository.DeviceRepo, sender PushSender, metrics *observability.BusinessMetrics) *NotificationService {
	return &NotificationService{devices: devices, sender: sender, metrics: metrics}
}

// NotifyOtherDevices sends a data-only "re-sync" push to every registered
// device of userID except excludeDeviceID. Devices whose token the provider
// reports as permanently invalid are pruned so future calls stop paying for
// dead tokens; pruning is the only state mutation this component performs.
func (s *NotificationService) NotifyOtherDevices(ctx context.Context, userID int, operation string, entityID int64, excludeDeviceID string) {
	if s.sender == nil {
		return
	}

	logger := observability.WithFields(map[string]interface{}{
		"user_id":   userID,
		"operation": operation,
		"entity_id": entityID,
	})

	devices, err := s.devices.ListByUser(ctx, userID)
	if err != nil {
		logger.Errorf("push fallback: listing devices failed: %v", err)
		return
	}

	data := map[string]string{
		"type":      "ALARM_SYNC_REQUEST",
		"operation": operation,
		"entityId":  strconv.FormatInt(entityID, 10),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	for _, device := range devices {
		if device.DeviceID == excludeDeviceID || device.FCMToken == nil {
			continue
		}

		err := s.sender.SendData(ctx, *device.FCMToken, data)
		s.metrics.RecordPushSend(ctx, operation, err == nil)
		if err == nil {
			logger.Debugf("push fallback: notified device %s", device.DeviceID)
			continue
		}

		if errors.Is(err, ErrInvalidToken) {
			logger.Warnf("push fallback: token for device %s is dead, pruning", device.DeviceID)
			if _, pruneErr := s.devices.DeleteByFCMToken(ctx, *device.FCMToken); pruneErr != nil {
				logger.Errorf("push fallback: pruning device %s failed: %v", device.DeviceID, pruneErr)
			}
			continue
		}

		logger.Warnf("push fallback: send to device %s failed: %v", device.DeviceID, err)
	}
}
