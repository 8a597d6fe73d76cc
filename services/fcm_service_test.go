package services

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMulticast struct {
	sent     *messaging.MulticastMessage
	response *messaging.BatchResponse
	err      error
}

func (f *fakeMulticast) SendEachForMulticast(ctx context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.sent = m
	return f.response, f.err
}

func TestFCMService_Disabled(t *testing.T) {
	s, err := NewFCMService(context.Background(), "", nil)
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	invalid, err := s.Send(context.Background(), []string{"tok"}, "t", "b", nil)
	assert.NoError(t, err)
	assert.Empty(t, invalid)
}

func TestFCMService_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("partial success is not an error", func(t *testing.T) {
		client := &fakeMulticast{response: &messaging.BatchResponse{
			SuccessCount: 1,
			FailureCount: 1,
			Responses: []*messaging.SendResponse{
				{Success: true, MessageID: "m1"},
				{Success: false, Error: errors.New("quota exceeded")},
			},
		}}
		s := &FCMService{client: client, logger: zap.NewNop()}

		invalid, err := s.Send(ctx, []string{"a", "b"}, "New event", "Iftar at 18:30", map[string]string{"type": "event_created"})
		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Equal(t, []string{"a", "b"}, client.sent.Tokens)
		assert.Equal(t, "New event", client.sent.Notification.Title)
		assert.Equal(t, "event_created", client.sent.Data["type"])
	})

	t.Run("total failure", func(t *testing.T) {
		client := &fakeMulticast{response: &messaging.BatchResponse{
			FailureCount: 1,
			Responses:    []*messaging.SendResponse{{Success: false, Error: errors.New("internal")}},
		}}
		s := &FCMService{client: client, logger: zap.NewNop()}

		_, err := s.Send(ctx, []string{"a"}, "t", "b", nil)
		assert.ErrorContains(t, err, "internal")
	})

	t.Run("transport error", func(t *testing.T) {
		s := &FCMService{client: &fakeMulticast{err: errors.New("dial tcp: timeout")}, logger: zap.NewNop()}
		_, err := s.Send(ctx, []string{"a"}, "t", "b", nil)
		assert.Error(t, err)
	})
}
