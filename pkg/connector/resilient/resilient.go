// Package resilient wraps any platform connector with automatic
// reconnect-and-retry. Each contract operation runs the same protocol:
// ensure a live session first, invoke the operation, and on a
// connection-classified failure reconnect once and retry once. The retry
// result is final; there is no backoff loop hiding persistent outages.
package resilient

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quantfold/mtlink/pkg/connector/core"
	"github.com/quantfold/mtlink/pkg/logger"
	"github.com/quantfold/mtlink/pkg/metrics"
	"github.com/quantfold/mtlink/pkg/mtlinkerrors"
)

// Connector is the resilient proxy. It satisfies core.Connector itself so
// callers and the factory can treat wrapped and unwrapped connectors
// uniformly.
type Connector struct {
	inner   core.Connector
	metrics *metrics.Collector
}

var _ core.Connector = (*Connector)(nil)

// Wrap builds a resilient proxy over the given connector.
func Wrap(inner core.Connector) *Connector {
	return &Connector{
		inner:   inner,
		metrics: metrics.NewCollector(inner.PlatformName()),
	}
}

// Unwrap returns the underlying connector, mainly for tests and diagnostics.
func (c *Connector) Unwrap() core.Connector {
	return c.inner
}

// call runs one contract operation under the resilience protocol.
//
// Protocol:
//  1. Live-check the session; when it is down, connect. A failed connect
//     returns a Connection error without invoking the operation at all.
//  2. Invoke the operation. Success or a non-connection failure is final.
//  3. On a connection-classified failure, reconnect exactly once
//     (disconnect then connect) and retry the operation exactly once.
//     Whatever the retry returns is the final result.
func call[T any](ctx context.Context, c *Connector, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	ctx = context.WithValue(ctx, logger.PlatformKey, c.inner.PlatformName())
	ctx = context.WithValue(ctx, logger.OperationKey, op)
	log := logger.WithContext(ctx)

	if !c.inner.IsConnected(ctx) {
		log.Info("session down before operation, connecting")
		if err := c.inner.Connect(ctx); err != nil {
			wrapped := mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeConnection,
				"connect before %s failed", op)
			c.metrics.RecordCall(op, wrapped, time.Since(start))
			return zero, wrapped
		}
	}

	result, err := fn(ctx)
	if err == nil {
		c.metrics.RecordCall(op, err, time.Since(start))
		return result, err
	}

	// A failure counts as connection-related when the error classifies as
	// one or when the session turns out to be dead on re-inspection.
	if !mtlinkerrors.IsConnection(err) && c.inner.IsConnected(ctx) {
		c.metrics.RecordCall(op, err, time.Since(start))
		return result, err
	}

	log.Warn("operation failed with connection error, reconnecting",
		zap.Error(err))

	if rerr := c.reconnect(ctx); rerr != nil {
		wrapped := mtlinkerrors.Wrapf(rerr, mtlinkerrors.ErrorTypeConnection,
			"reconnect after failed %s", op)
		c.metrics.RecordCall(op, wrapped, time.Since(start))
		return zero, wrapped
	}

	c.metrics.RecordRetry(op)
	result, err = fn(ctx)
	c.metrics.RecordCall(op, err, time.Since(start))
	return result, err
}

// reconnect tears the session down and brings it back up once. The context
// carries the platform and operation fields for the logger.
func (c *Connector) reconnect(ctx context.Context) error {
	log := logger.WithContext(ctx)

	if err := c.inner.Disconnect(ctx); err != nil {
		// Teardown failures are logged but never block the reconnect;
		// the session is already unusable.
		log.Debug("disconnect during reconnect reported error", zap.Error(err))
	}

	err := c.inner.Connect(ctx)
	c.metrics.RecordReconnect(err == nil)
	if err != nil {
		log.Error("reconnect failed", zap.Error(err))
		return err
	}

	log.Info("reconnect succeeded")
	return nil
}

// Connect establishes the session directly, outside the retry protocol.
func (c *Connector) Connect(ctx context.Context) error {
	start := time.Now()
	err := c.inner.Connect(ctx)
	c.metrics.RecordCall("connect", err, time.Since(start))
	return err
}

// Disconnect tears the session down directly, outside the retry protocol.
func (c *Connector) Disconnect(ctx context.Context) error {
	start := time.Now()
	err := c.inner.Disconnect(ctx)
	c.metrics.RecordCall("disconnect", err, time.Since(start))
	return err
}

// IsConnected delegates the live check to the underlying connector.
func (c *Connector) IsConnected(ctx context.Context) bool {
	return c.inner.IsConnected(ctx)
}

// ValidateConnection delegates to the underlying connector. Validation is a
// health probe; wrapping it in reconnect logic would make it lie.
func (c *Connector) ValidateConnection(ctx context.Context) bool {
	return c.inner.ValidateConnection(ctx)
}

// PlatformName returns the underlying platform label.
func (c *Connector) PlatformName() string {
	return c.inner.PlatformName()
}

// AccountInfo runs the account query under the resilience protocol.
func (c *Connector) AccountInfo(ctx context.Context) (*core.AccountSummary, error) {
	return call(ctx, c, "account_info", c.inner.AccountInfo)
}

// SymbolInfo runs the symbol query under the resilience protocol.
func (c *Connector) SymbolInfo(ctx context.Context, symbol string) (*core.SymbolDescriptor, error) {
	return call(ctx, c, "symbol_info", func(ctx context.Context) (*core.SymbolDescriptor, error) {
		return c.inner.SymbolInfo(ctx, symbol)
	})
}

// Positions runs the open-positions query under the resilience protocol.
func (c *Connector) Positions(ctx context.Context, symbolFilter string) ([]core.PositionRecord, error) {
	return call(ctx, c, "positions", func(ctx context.Context) ([]core.PositionRecord, error) {
		return c.inner.Positions(ctx, symbolFilter)
	})
}

// Orders runs the pending-orders query under the resilience protocol.
func (c *Connector) Orders(ctx context.Context, symbolFilter string) ([]core.OrderRecord, error) {
	return call(ctx, c, "orders", func(ctx context.Context) ([]core.OrderRecord, error) {
		return c.inner.Orders(ctx, symbolFilter)
	})
}

// ServerTime runs the server-time query under the resilience protocol.
func (c *Connector) ServerTime(ctx context.Context) (time.Time, error) {
	return call(ctx, c, "server_time", c.inner.ServerTime)
}

// SymbolAvailable runs the availability check under the resilience protocol.
func (c *Connector) SymbolAvailable(ctx context.Context, symbol string) (bool, error) {
	return call(ctx, c, "symbol_available", func(ctx context.Context) (bool, error) {
		return c.inner.SymbolAvailable(ctx, symbol)
	})
}
