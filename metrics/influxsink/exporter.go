// Package influxsink periodically exports a Controller's protocol counters
// to InfluxDB. It is an optional consumer of the controller's state; the
// core driver does not depend on it.
package influxsink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gozwave/internal/config"
	"github.com/nerrad567/gozwave/zwave"
)

// ErrDisabled is returned by Connect when cfg.Enabled is false.
var ErrDisabled = errors.New("influxsink: disabled in configuration")

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
	millisecondsPerSecond = 1000
)

// StateSource is the subset of *zwave.Controller the exporter reads from.
// Taking an interface rather than the concrete type keeps this package
// testable without a live SerialLink.
type StateSource interface {
	Counters() zwave.Counters
}

// Exporter periodically reads counters from a StateSource and writes them as
// InfluxDB points on a fixed interval.
//
// Thread Safety: Start/Close are safe to call from any goroutine; Start must
// only be called once.
type Exporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	source   StateSource
	bucket   string

	interval time.Duration
	onError  func(err error)

	mu        sync.RWMutex
	connected bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Connect opens an InfluxDB client and verifies connectivity with a ping.
func Connect(cfg config.InfluxDBConfig, source StateSource) (*Exporter, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().SetFlushInterval(uint(cfg.FlushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxsink: ping failed: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("influxsink: server not healthy")
	}

	interval := cfg.InfluxFlushInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}

	e := &Exporter{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		source:    source,
		bucket:    cfg.Bucket,
		interval:  interval,
		connected: true,
		done:      make(chan struct{}),
	}

	go e.handleWriteErrors(e.writeAPI.Errors())

	return e, nil
}

func (e *Exporter) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		e.mu.RLock()
		cb := e.onError
		e.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
	}
}

// SetOnError sets a callback invoked when an async write fails.
func (e *Exporter) SetOnError(callback func(err error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = callback
}

// Start runs the periodic export loop until Close is called. It is intended
// to be run in its own goroutine.
func (e *Exporter) Start() {
	e.wg.Add(1)
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.writeCounters()
		}
	}
}

func (e *Exporter) writeCounters() {
	if !e.IsConnected() {
		return
	}

	c := e.source.Counters()
	point := write.NewPoint(
		"zwave_counters",
		map[string]string{"bucket": e.bucket},
		map[string]interface{}{
			"sof":     c.SOF,
			"ack":     c.ACK,
			"nak":     c.NAK,
			"can":     c.CAN,
			"oof":     c.OOF,
			"timeout": c.Timeout,
		},
		time.Now(),
	)
	e.writeAPI.WritePoint(point)
}

// IsConnected reports the last known connection state.
func (e *Exporter) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

// HealthCheck actively pings InfluxDB.
func (e *Exporter) HealthCheck(ctx context.Context) error {
	if !e.IsConnected() {
		return fmt.Errorf("influxsink: not connected")
	}
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := e.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxsink: health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxsink: server not healthy")
	}
	return nil
}

// Close flushes pending writes, stops the export loop, and closes the
// underlying client.
func (e *Exporter) Close() error {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
	e.wg.Wait()

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	e.writeAPI.Flush()
	e.client.Close()
	return nil
}
