package image

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/image-gateway/internal/cache"
	"github.com/aliskhannn/image-gateway/internal/fetch"
	"github.com/aliskhannn/image-gateway/internal/middleware"
	"github.com/aliskhannn/image-gateway/internal/model"
	"github.com/aliskhannn/image-gateway/internal/processor"
	"github.com/aliskhannn/image-gateway/internal/spec"
)

// sourceCache defines the interface for obtaining source image bytes.
type sourceCache interface {
	GetOrFetch(ctx context.Context, url string) ([]byte, error)
}

// imageProcessor defines the interface for applying a pipeline to source bytes.
type imageProcessor interface {
	Apply(ctx context.Context, src []byte, pipeline spec.Pipeline) (processor.Output, error)
}

// publisher defines the interface for emitting render events (e.g., Kafka).
type publisher interface {
	Publish(ctx context.Context, ev model.RenderEvent) error
}

// Result is a rendered image ready to be written to the client.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Service renders images: it decodes the pipeline, obtains the source through
// the cache and applies the pipeline.
type Service struct {
	cache     sourceCache
	processor imageProcessor
	publisher publisher
	strategy  retry.Strategy
}

// NewService creates a new Service. The publisher may be nil.
func NewService(c sourceCache, p imageProcessor, pub publisher, s retry.Strategy) *Service {
	if s.Attempts < 1 {
		s.Attempts = 1
	}

	return &Service{cache: c, processor: p, publisher: pub, strategy: s}
}

// Render decodes specStr, fetches rawURL and applies the pipeline.
// It stops at the first failing stage and returns that stage's error unchanged.
func (s *Service) Render(ctx context.Context, specStr, rawURL string) (Result, error) {
	start := time.Now()

	pipeline, err := spec.Decode(specStr)
	if err != nil {
		return Result{}, err
	}

	src, err := s.fetch(ctx, rawURL)
	if err != nil {
		return Result{}, err
	}

	out, err := s.processor.Apply(ctx, src, pipeline)
	if err != nil {
		return Result{}, err
	}

	if s.publisher != nil {
		ev := model.RenderEvent{
			ID:          uuid.New(),
			RequestID:   middleware.RequestIDFrom(ctx),
			Spec:        specStr,
			SourceURL:   rawURL,
			CacheKey:    uint64(cache.KeyOf(cache.Normalize(rawURL))),
			Steps:       len(pipeline),
			ContentType: out.ContentType,
			Width:       out.Width,
			Height:      out.Height,
			Bytes:       len(out.Data),
			Duration:    time.Since(start),
			RenderedAt:  time.Now().UTC(),
		}
		go s.publish(context.WithoutCancel(ctx), ev)
	}

	return Result{
		Data:        out.Data,
		ContentType: out.ContentType,
		Width:       out.Width,
		Height:      out.Height,
	}, nil
}

// fetch calls the cache, retrying only transient origin failures.
func (s *Service) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		data      []byte
		permanent error
		last      error
		attempt   int
	)

	err := retry.Do(func() error {
		attempt++

		var fetchErr error
		data, fetchErr = s.cache.GetOrFetch(ctx, rawURL)
		if fetchErr == nil {
			return nil
		}

		if ctx.Err() != nil || !fetch.Retryable(fetchErr) {
			permanent = fetchErr
			return nil
		}

		zerolog.Ctx(ctx).Warn().
			Err(fetchErr).
			Int("attempt", attempt).
			Str("url", rawURL).
			Msg("origin fetch failed")

		last = fetchErr
		return fetchErr
	}, s.strategy)

	if permanent != nil {
		return nil, permanent
	}
	if err != nil {
		if last != nil {
			return nil, last
		}
		return nil, err
	}

	return data, nil
}

func (s *Service) publish(ctx context.Context, ev model.RenderEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Str("event_id", ev.ID.String()).
			Msg("failed to publish render event")
	}
}
