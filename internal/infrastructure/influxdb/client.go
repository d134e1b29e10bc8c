package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client writes irrigation telemetry to an InfluxDB v2 bucket.
//
// Writes are non-blocking and batched; failures surface through the
// callback set with SetOnError. Safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
	done      chan struct{}
}

// Connect pings the server and prepares the batched write API.
// It returns ErrDisabled when cfg.Enabled is false.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	ic := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	if err := ping(ctx, ic); err != nil {
		ic.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:    ic,
		writeAPI:  ic.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		connected: true,
		done:      make(chan struct{}),
	}
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

// clientOptions applies batch defaults for unset values.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	size, every := cfg.BatchSize, cfg.FlushInterval
	if size <= 0 {
		size = defaultBatchSize
	}
	if every <= 0 {
		every = defaultFlushInterval
	}
	// #nosec G115 -- both positive
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(size)).
		SetFlushInterval(uint(time.Duration(every) * time.Second / time.Millisecond))
}

func ping(ctx context.Context, ic influxdb2.Client) error {
	ok, err := ic.Ping(ctx)
	switch {
	case err != nil:
		return err
	case !ok:
		return errors.New("server reports unhealthy")
	}
	return nil
}

// forwardErrors hands batch write failures to the onError callback until
// Close.
func (c *Client) forwardErrors(errs <-chan error) {
	for {
		var err error
		var ok bool
		select {
		case err, ok = <-errs:
		case <-c.done:
			return
		}
		if !ok {
			return
		}
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError installs fn to receive asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// IsConnected reports the last known state. Use HealthCheck for an
// active probe.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb: %w", err)
	}
	return nil
}

// Flush blocks until buffered points are sent. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and releases the client. Safe on nil and
// safe to call twice.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	close(c.done)
	return nil
}
