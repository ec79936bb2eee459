package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-gateway/internal/model"
)

var ErrEmptyURL = errors.New("warm request has no url")

// cache defines the interface for pre-fetching source images.
type cache interface {
	GetOrFetch(ctx context.Context, url string) ([]byte, error)
}

// WarmHandler handles Kafka messages asking for a source image to be cached.
type WarmHandler struct {
	cache cache
}

// NewWarmHandler creates a new handler with the given cache.
func NewWarmHandler(c cache) *WarmHandler {
	return &WarmHandler{cache: c}
}

// Handle decodes a model.WarmRequest and fetches its url through the cache.
func (h *WarmHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var req model.WarmRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("unmarshal warm request: %w", err)
	}

	url := strings.TrimSpace(req.URL)
	if url == "" {
		return ErrEmptyURL
	}

	data, err := h.cache.GetOrFetch(ctx, url)
	if err != nil {
		return fmt.Errorf("warm %s: %w", url, err)
	}

	zlog.Logger.Info().
		Str("url", url).
		Int("bytes", len(data)).
		Msg("cache warmed")

	return nil
}
