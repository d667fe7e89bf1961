package realtime

import (
	"log/slog"
	"time"

	"github.com/codewandler/realtime-go/metrics"
	"github.com/codewandler/realtime-go/retry"
)

// Services are the collaborators that live once per process and are shared
// by every client built with them.
type Services struct {
	Metrics *metrics.Collector
	Retry   *retry.Handler
}

// NewServices builds a metrics collector and a retry handler. Non-positive
// values fall back to the retry defaults.
func NewServices(maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Services {
	var opts []retry.Option
	if logger != nil {
		opts = append(opts, retry.WithLogger(logger))
	}
	if maxRetries > 0 {
		opts = append(opts, retry.WithMaxRetries(maxRetries))
	}
	if baseDelay > 0 {
		opts = append(opts, retry.WithBaseDelay(baseDelay))
	}
	return &Services{
		Metrics: metrics.New(),
		Retry:   retry.New(opts...),
	}
}
