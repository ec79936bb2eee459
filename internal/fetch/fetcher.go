package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aliskhannn/image-gateway/internal/storage/file"
)

const (
	DefaultMaxBytes  = 20 << 20 // 20MB
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "image-gateway/1.0"
)

// objectStore defines the interface for reading objects from S3-compatible storage.
type objectStore interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
}

// Options bounds every fetch.
type Options struct {
	MaxBytes  int64         // maximum accepted body size
	Timeout   time.Duration // maximum wall-clock duration of one fetch
	UserAgent string
	RateLimit float64 // outbound requests per second, 0 disables limiting
	Burst     int
}

// Fetcher retrieves source image bytes from http(s) origins and,
// when an object store is configured, from s3://bucket/key URLs.
// It never retries.
type Fetcher struct {
	client  *http.Client
	objects objectStore
	limiter *rate.Limiter
	opts    Options
}

// New creates a Fetcher. objects may be nil, in which case s3 URLs are rejected.
func New(opts Options, objects objectStore) *Fetcher {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	return &Fetcher{
		client:  &http.Client{},
		objects: objects,
		limiter: rate.NewLimiter(limit, opts.Burst),
		opts:    opts,
	}
}

// Fetch downloads rawURL and returns its body. Failures are *Error values
// carrying one of ErrNetwork, ErrTimeout, ErrBadStatus, ErrTooLarge or ErrInvalidURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidURL, URL: rawURL, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &Error{Kind: ErrInvalidURL, URL: rawURL, Err: errors.New("url must be absolute")}
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: ErrTimeout, URL: rawURL, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	start := time.Now()

	var data []byte
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		data, err = f.fetchHTTP(ctx, rawURL)
	case "s3":
		data, err = f.fetchObject(ctx, rawURL, u)
	default:
		err = &Error{Kind: ErrInvalidURL, URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("url", rawURL).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("origin fetched")

	return data, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidURL, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: ErrBadStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength > f.opts.MaxBytes {
		return nil, &Error{
			Kind: ErrTooLarge,
			URL:  rawURL,
			Err:  fmt.Errorf("content length %d exceeds %d", resp.ContentLength, f.opts.MaxBytes),
		}
	}

	return f.readLimited(rawURL, resp.Body)
}

func (f *Fetcher) fetchObject(ctx context.Context, rawURL string, u *url.URL) ([]byte, error) {
	if f.objects == nil {
		return nil, &Error{Kind: ErrInvalidURL, URL: rawURL, Err: errors.New("object storage is not configured")}
	}

	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return nil, &Error{Kind: ErrInvalidURL, URL: rawURL, Err: errors.New("missing object key")}
	}

	obj, size, err := f.objects.Open(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, file.ErrNotFound) {
			return nil, &Error{Kind: ErrBadStatus, URL: rawURL, StatusCode: http.StatusNotFound, Err: err}
		}
		return nil, classify(rawURL, err)
	}
	defer obj.Close()

	if size > f.opts.MaxBytes {
		return nil, &Error{
			Kind: ErrTooLarge,
			URL:  rawURL,
			Err:  fmt.Errorf("object size %d exceeds %d", size, f.opts.MaxBytes),
		}
	}

	return f.readLimited(rawURL, obj)
}

// readLimited reads at most MaxBytes+1 bytes so an oversized body is
// rejected without being buffered in full.
func (f *Fetcher) readLimited(rawURL string, r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.opts.MaxBytes+1))
	if err != nil {
		return nil, classify(rawURL, err)
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, &Error{
			Kind: ErrTooLarge,
			URL:  rawURL,
			Err:  fmt.Errorf("body exceeds %d bytes", f.opts.MaxBytes),
		}
	}
	return data, nil
}

func classify(rawURL string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: ErrTimeout, URL: rawURL, Err: err}
	}
	return &Error{Kind: ErrNetwork, URL: rawURL, Err: err}
}
