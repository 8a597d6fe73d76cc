package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// PushSender delivers a push message to a set of device tokens
type PushSender interface {
	Enabled() bool
	// Send returns the tokens the provider reported as no longer registered.
	// err is set only when nothing could be delivered.
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) (invalid []string, err error)
}

// multicastClient is the part of *messaging.Client FCMService uses
type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type FCMService struct {
	client multicastClient
	logger *zap.Logger
}

var _ PushSender = (*FCMService)(nil)

// NewFCMService initializes Firebase messaging from a service account file.
// With no credentials path the service is disabled and Send is a no-op.
func NewFCMService(ctx context.Context, credentialsPath string, logger *zap.Logger) (*FCMService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FCMService{logger: logger}
	if credentialsPath == "" {
		logger.Info("FCM disabled: no credentials configured")
		return s, nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging: %w", err)
	}
	s.client = client
	logger.Info("FCM messaging initialized")
	return s, nil
}

func (s *FCMService) Enabled() bool {
	return s.client != nil
}

func (s *FCMService) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]string, error) {
	if !s.Enabled() || len(tokens) == 0 {
		return nil, nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Icon:         "ic_notification",
				ChannelID:    "tweeza_default",
				Priority:     messaging.PriorityHigh,
				DefaultSound: true,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}

	response, err := s.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send multicast message: %w", err)
	}

	var invalid []string
	var lastErr error
	for i, resp := range response.Responses {
		if resp.Success {
			continue
		}
		if messaging.IsUnregistered(resp.Error) {
			invalid = append(invalid, tokens[i])
			continue
		}
		lastErr = resp.Error
	}

	s.logger.Debug("push sent",
		zap.Int("success", response.SuccessCount),
		zap.Int("failed", response.FailureCount),
		zap.Int("unregistered", len(invalid)))

	if response.SuccessCount == 0 && lastErr != nil {
		return invalid, fmt.Errorf("push delivery failed: %w", lastErr)
	}
	return invalid, nil
}
