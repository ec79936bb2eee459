package server

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"
)

const defaultWriteTimeout = 45 * time.Second

// New builds the HTTP server. writeTimeout must cover an origin fetch with
// retries plus rendering; zero selects a default.
func New(addr string, writeTimeout time.Duration, router *ginext.Engine) *http.Server {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
