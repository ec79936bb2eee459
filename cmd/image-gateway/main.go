package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-gateway/internal/api/handlers/image"
	"github.com/aliskhannn/image-gateway/internal/api/router"
	"github.com/aliskhannn/image-gateway/internal/api/server"
	"github.com/aliskhannn/image-gateway/internal/cache"
	"github.com/aliskhannn/image-gateway/internal/config"
	"github.com/aliskhannn/image-gateway/internal/fetch"
	"github.com/aliskhannn/image-gateway/internal/infra/kafka/consumer"
	"github.com/aliskhannn/image-gateway/internal/infra/kafka/producer"
	imagemsg "github.com/aliskhannn/image-gateway/internal/kafka/handlers/image"
	"github.com/aliskhannn/image-gateway/internal/processor"
	imagesvc "github.com/aliskhannn/image-gateway/internal/service/image"
	"github.com/aliskhannn/image-gateway/internal/spec"
	"github.com/aliskhannn/image-gateway/internal/storage/file"
)

const sampleSource = "https://images.pexels.com/photos/2470905/pexels-photo-2470905.jpeg?auto=compress&cs=tinysrgb&dpr=2&h=750&w=1260"

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	zerolog.DefaultContextLogger = &zlog.Logger
	cfg := config.MustLoad("./config/config.yml")

	// Retry strategy for origin fetches and Kafka calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	fetchOpts := fetch.Options{
		MaxBytes:  cfg.Fetch.MaxBytes,
		Timeout:   cfg.Fetch.Timeout,
		UserAgent: cfg.Fetch.UserAgent,
		RateLimit: cfg.Fetch.RateLimit,
		Burst:     cfg.Fetch.Burst,
	}

	// Origin fetcher, optionally backed by MinIO for s3:// sources.
	var fetcher *fetch.Fetcher
	if cfg.Storage.Enabled {
		storage, err := file.NewStorage(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.UseSSL)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
		}
		if cfg.Storage.Bucket != "" {
			if err := storage.Ping(ctx, cfg.Storage.Bucket); err != nil {
				zlog.Logger.Fatal().Err(err).Msg("failed to reach storage bucket")
			}
		}
		fetcher = fetch.New(fetchOpts, storage)
	} else {
		fetcher = fetch.New(fetchOpts, nil)
	}

	// Initialize cache, processor and service layer.
	imageCache, err := cache.New(cfg.Cache.Capacity, fetcher)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create cache")
	}

	imageProcessor, err := processor.New(processor.Options{
		Format:           cfg.Processor.Format,
		JPEGQuality:      cfg.Processor.JPEGQuality,
		WatermarkPath:    cfg.Processor.WatermarkPath,
		WatermarkText:    cfg.Processor.WatermarkText,
		FontPath:         cfg.Processor.FontPath,
		WatermarkOpacity: cfg.Processor.WatermarkOpacity,

		MaxSourceDimension: cfg.Processor.MaxSourceDimension,
		MaxSourcePixels:    cfg.Processor.MaxSourcePixels,
	})
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create processor")
	}

	// Render events are optional.
	var p *producer.Producer
	var service *imagesvc.Service
	if cfg.Kafka.EventsTopic != "" {
		p = producer.New(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, strategy)
		service = imagesvc.NewService(imageCache, imageProcessor, p, strategy)
	} else {
		service = imagesvc.NewService(imageCache, imageProcessor, nil, strategy)
	}

	// Kafka consumer for cache warm requests.
	var wg sync.WaitGroup
	var c *consumer.Consumer
	if cfg.Kafka.WarmTopic != "" {
		warmHandler := imagemsg.NewWarmHandler(imageCache)
		c = consumer.New(cfg.Kafka.Brokers, cfg.Kafka.WarmTopic, cfg.Kafka.GroupID, strategy, warmHandler)

		wg.Add(1)
		go c.Consume(ctx, &wg)
	}

	// Start HTTP server in a separate goroutine.
	imgHandler := image.NewHandler(service, imageCache, cfg.Server.CacheMaxAge)
	r := router.Setup(imgHandler)
	s := server.New(cfg.Server.HTTPPort, cfg.Server.WriteTimeout, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	zlog.Logger.Info().
		Str("addr", cfg.Server.HTTPPort).
		Int("cache_capacity", cfg.Cache.Capacity).
		Str("sample", sampleURL(cfg.Server.PublicURL)).
		Msg("gateway started")

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for Kafka consumer goroutine to finish.
	wg.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Close Kafka producer and consumer clients.
	if p != nil {
		if err := p.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
		}
	}
	if c != nil {
		if err := c.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
		}
	}
}

// sampleURL builds a ready-to-use render link for the startup log.
func sampleURL(base string) string {
	pipeline := spec.Pipeline{
		spec.Resize{Width: 500, Height: 800, Filter: spec.CatmullRom},
		spec.Watermark{X: 20, Y: 20},
		spec.Filter{Kind: spec.Marine},
	}

	return strings.TrimSuffix(base, "/") + "/image/" + spec.Encode(pipeline) + "/" + url.PathEscape(sampleSource)
}
