package model

import (
	"time"

	"github.com/google/uuid"
)

// RenderEvent describes one successfully rendered image. It is published to
// the events topic after the response has been produced.
type RenderEvent struct {
	ID          uuid.UUID     `json:"id"`
	RequestID   string        `json:"request_id"`
	Spec        string        `json:"spec"`         // encoded pipeline as received
	SourceURL   string        `json:"source_url"`   // percent-decoded source url
	CacheKey    uint64        `json:"cache_key"`    // content address of the source
	Steps       int           `json:"steps"`        // number of transforms applied
	ContentType string        `json:"content_type"` // e.g. image/jpeg
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	Bytes       int           `json:"bytes"`
	Duration    time.Duration `json:"duration"`
	RenderedAt  time.Time     `json:"rendered_at"`
}

// WarmRequest asks the gateway to pre-fetch a source image into its cache.
type WarmRequest struct {
	URL         string    `json:"url"`
	RequestedAt time.Time `json:"requested_at"`
}
