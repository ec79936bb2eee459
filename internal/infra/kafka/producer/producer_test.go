package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/image-gateway/internal/model"
)

type recordingSender struct {
	key, value []byte
	err        error
}

func (s *recordingSender) SendWithRetry(_ context.Context, _ retry.Strategy, key, value []byte) error {
	s.key, s.value = key, value
	return s.err
}

func TestPublish(t *testing.T) {
	s := &recordingSender{}
	p := &Producer{sender: s}

	ev := model.RenderEvent{ID: uuid.New(), RequestID: "req-1", Spec: "AQ", Width: 5, Height: 6}
	require.NoError(t, p.Publish(context.Background(), ev))

	assert.Equal(t, []byte("req-1"), s.key)

	var got model.RenderEvent
	require.NoError(t, json.Unmarshal(s.value, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, 5, got.Width)
}

func TestPublishKeyFallsBackToEventID(t *testing.T) {
	s := &recordingSender{}
	p := &Producer{sender: s}

	ev := model.RenderEvent{ID: uuid.New()}
	require.NoError(t, p.Publish(context.Background(), ev))
	assert.Equal(t, []byte(ev.ID.String()), s.key)
}

func TestPublishError(t *testing.T) {
	boom := errors.New("broker down")
	p := &Producer{sender: &recordingSender{err: boom}}

	err := p.Publish(context.Background(), model.RenderEvent{ID: uuid.New()})
	assert.ErrorIs(t, err, boom)
}
