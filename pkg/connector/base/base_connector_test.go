package base

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/mtlink/pkg/config"
	"github.com/quantfold/mtlink/pkg/connector/core"
)

func TestPlatformNameNormalization(t *testing.T) {
	c := New(" Mt5 ", config.PlatformConfig{})
	assert.Equal(t, "MT5", c.PlatformName())
	assert.Equal(t, "mt5", c.Label())
}

func TestDisconnectDropsAccountCache(t *testing.T) {
	c := New("mt4", config.PlatformConfig{})
	c.SetConnected(true)
	c.CacheAccount(&core.AccountSummary{Login: 12345})

	require.NotNil(t, c.CachedAccount())

	c.SetConnected(false)
	assert.Nil(t, c.CachedAccount(), "stale account data must not survive disconnect")
	assert.False(t, c.Connected())
}

func TestValidateConnectionWhenDisconnected(t *testing.T) {
	c := New("mt5", config.PlatformConfig{})

	probed := false
	ok := c.ValidateConnection(context.Background(), func(context.Context) (*core.AccountSummary, error) {
		probed = true
		return &core.AccountSummary{}, nil
	})

	assert.False(t, ok)
	assert.False(t, probed, "probe must not run while disconnected")
}

func TestValidateConnectionProbeFailureDowngrades(t *testing.T) {
	c := New("mt5", config.PlatformConfig{})
	c.SetConnected(true)

	ok := c.ValidateConnection(context.Background(), func(context.Context) (*core.AccountSummary, error) {
		return nil, errors.New("terminal not responding")
	})

	assert.False(t, ok)
	assert.False(t, c.Connected(), "failed probe must downgrade connection state")
}

func TestValidateConnectionNilAccountDowngrades(t *testing.T) {
	c := New("mt5", config.PlatformConfig{})
	c.SetConnected(true)

	ok := c.ValidateConnection(context.Background(), func(context.Context) (*core.AccountSummary, error) {
		return nil, nil
	})

	assert.False(t, ok)
	assert.False(t, c.Connected())
}

func TestValidateConnectionSuccessRefreshesCache(t *testing.T) {
	c := New("mt4", config.PlatformConfig{})
	c.SetConnected(true)

	ok := c.ValidateConnection(context.Background(), func(context.Context) (*core.AccountSummary, error) {
		return &core.AccountSummary{Login: 777, Balance: 1000.50}, nil
	})

	require.True(t, ok)
	assert.True(t, c.Connected())
	require.NotNil(t, c.CachedAccount())
	assert.Equal(t, int64(777), c.CachedAccount().Login)
}
