package workers

import (
	"context"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/moxer-mmh/Tweeza/db"
	"github.com/moxer-mmh/Tweeza/services"
	"go.uber.org/zap"
)

// NotificationWorker pushes pending notifications to the owners' devices.
// Each notification ends in exactly one of sent, failed or skipped.
type NotificationWorker struct {
	repo         services.NotificationRepository
	push         services.PushSender
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
	retrier      *retry.Retrier
}

func NewNotificationWorker(repo services.NotificationRepository, push services.PushSender, pollInterval time.Duration, batchSize int, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &NotificationWorker{
		repo:         repo,
		push:         push,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		retrier:      retry.NewRetrier(3, 200*time.Millisecond, 2*time.Second),
	}
}

// Start polls until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info("notification worker started",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int("batch_size", w.batchSize),
		zap.Bool("push_enabled", w.push.Enabled()))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("notification worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("notification batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch delivers one batch of pending notifications and returns how
// many were handled
func (w *NotificationWorker) ProcessBatch(ctx context.Context) (int, error) {
	pending, err := w.repo.ListPendingPush(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for _, n := range pending {
		status := w.deliver(ctx, n)
		if err := w.repo.SetPushStatus(ctx, n.ID, status); err != nil {
			w.logger.Error("failed to update push status",
				zap.String("notification_id", n.ID),
				zap.String("status", string(status)),
				zap.Error(err))
		}
	}
	return len(pending), nil
}

func (w *NotificationWorker) deliver(ctx context.Context, n db.Notification) db.PushStatus {
	if !w.push.Enabled() {
		return db.PushStatusSkipped
	}

	tokens, err := w.repo.DeviceTokens(ctx, n.UserID)
	if err != nil {
		w.logger.Warn("failed to load device tokens", zap.String("user_id", n.UserID), zap.Error(err))
		return db.PushStatusFailed
	}
	if len(tokens) == 0 {
		return db.PushStatusSkipped
	}

	data := map[string]string{
		"notification_id": n.ID,
		"type":            n.NotificationType,
	}
	if n.RelatedEventID != "" {
		data["event_id"] = n.RelatedEventID
	}

	var invalid []string
	err = w.retrier.Run(func() error {
		var sendErr error
		invalid, sendErr = w.push.Send(ctx, tokens, n.Title, n.Content, data)
		return sendErr
	})

	if len(invalid) > 0 {
		if rmErr := w.repo.RemoveTokens(ctx, invalid); rmErr != nil {
			w.logger.Warn("failed to remove unregistered tokens", zap.Error(rmErr))
		}
	}
	if err != nil {
		w.logger.Warn("push delivery failed",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err))
		return db.PushStatusFailed
	}
	if len(invalid) == len(tokens) {
		return db.PushStatusSkipped
	}
	return db.PushStatusSent
}
