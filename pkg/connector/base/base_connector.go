// Package base provides the shared state and behavior common to every
// platform connector: the connection flag, the cached account summary, and
// the validation helper. Variants embed Connector and layer the driver
// specifics on top.
package base

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/quantfold/mtlink/pkg/config"
	"github.com/quantfold/mtlink/pkg/connector/core"
	"github.com/quantfold/mtlink/pkg/logger"
)

// Connector holds the state shared across platform variants. The mutex
// guards the connected flag and the account cache; driver handles live in
// the embedding variant and are guarded there.
type Connector struct {
	mu        sync.RWMutex
	label     string
	cfg       config.PlatformConfig
	log       *zap.Logger
	connected bool
	account   *core.AccountSummary
}

// New creates the shared connector state for a platform variant. The label
// is the lowercase platform identifier ("mt5", "mt4").
func New(label string, cfg config.PlatformConfig) *Connector {
	return &Connector{
		label: strings.ToLower(strings.TrimSpace(label)),
		cfg:   cfg,
		log:   logger.With(zap.String("platform", label)),
	}
}

// PlatformName returns the uppercase platform label.
func (c *Connector) PlatformName() string {
	return strings.ToUpper(c.label)
}

// Label returns the lowercase platform identifier, used for metric labels
// and registry lookups.
func (c *Connector) Label() string {
	return c.label
}

// Config returns the platform configuration section the connector was
// created with.
func (c *Connector) Config() config.PlatformConfig {
	return c.cfg
}

// Logger returns the connector logger, pre-labeled with the platform.
func (c *Connector) Logger() *zap.Logger {
	return c.log
}

// SetConnected updates the connection flag. Dropping the connection also
// drops the cached account summary so stale data cannot leak out.
func (c *Connector) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
	if !connected {
		c.account = nil
	}
}

// Connected reads the connection flag. This is the cheap state read;
// variants expose the live probe as IsConnected.
func (c *Connector) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// CacheAccount stores the account summary captured at connect time.
func (c *Connector) CacheAccount(account *core.AccountSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account = account
}

// CachedAccount returns the account summary captured at connect time, or
// nil when disconnected or never connected.
func (c *Connector) CachedAccount() *core.AccountSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// ValidateConnection runs the shared validation protocol: false immediately
// when the flag says disconnected, otherwise probe the session with the
// supplied account fetch and downgrade state when the probe fails.
func (c *Connector) ValidateConnection(ctx context.Context, probe func(context.Context) (*core.AccountSummary, error)) bool {
	if !c.Connected() {
		return false
	}

	account, err := probe(ctx)
	if err != nil || account == nil {
		c.log.Warn("connection validation failed, marking disconnected",
			zap.Error(err))
		c.SetConnected(false)
		return false
	}

	c.CacheAccount(account)
	return true
}
