package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/config"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
	pingTimeout          = 5 * time.Second
)

// Logger receives asynchronous write failures.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Client records the bridge's synchronisation history in an InfluxDB v2
// bucket. Points are queued and written in batches by the client library;
// a failed batch is logged and counted, never retried by the bridge.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string
	logger   Logger

	closed      atomic.Bool
	closeOnce   sync.Once
	writeErrors atomic.Uint64
}

// Connect creates a token-authenticated client, checks the server answers
// a ping, and opens the batched write API for the configured bucket.
//
// Parameters:
//   - ctx: bounds the initial ping
//   - cfg: InfluxDB configuration from config.yaml
//   - logger: receives write failures; nil discards them
//
// Returns:
//   - *Client: ready to record points
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.InfluxDBConfig, logger Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = noopLogger{}
	}

	batchSize := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize)
	}
	flushInterval := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flushInterval = time.Duration(cfg.FlushInterval) * time.Second
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batchSize).
		SetFlushInterval(uint(flushInterval.Milliseconds())) //nolint:gosec // positive by construction
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	case !healthy:
		client.Close()
		return nil, fmt.Errorf("%w: server not ready", ErrConnectionFailed)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		logger:   logger,
	}
	go c.drainErrors()

	return c, nil
}

// drainErrors consumes the write API's error channel; the client library
// closes it on Close.
func (c *Client) drainErrors() {
	for err := range c.writeAPI.Errors() {
		c.writeErrors.Add(1)
		c.logger.Warn("history write failed", "bucket", c.bucket, "error", err)
	}
}

// WriteErrors returns the number of batches the server rejected.
func (c *Client) WriteErrors() uint64 {
	return c.writeErrors.Load()
}

// Ping reports whether the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("influxdb ping: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb ping: server not ready")
	}
	return nil
}

// Flush blocks until queued points are sent. No-op after Close.
func (c *Client) Flush() {
	if c.closed.Load() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes queued points and releases the client. Points written
// after Close are dropped. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeAPI.Flush()
		c.client.Close()
	})
	return nil
}
