package mt5

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/mtlink/pkg/config"
	"github.com/quantfold/mtlink/pkg/connector/core"
	"github.com/quantfold/mtlink/pkg/connector/registry"
	"github.com/quantfold/mtlink/pkg/mtlinkerrors"
)

// fakeDriver scripts gateway behavior for connector tests.
type fakeDriver struct {
	initErr    error
	pingErr    error
	accountErr error
	account    *AccountRecord
	symbol     *SymbolRecord
	positions  []PositionRecord
	orders     []OrderRecord
	serverTime time.Time

	shutdowns  int
	lastFilter string
}

func (f *fakeDriver) Initialize(ctx context.Context, terminalPath string) error { return f.initErr }
func (f *fakeDriver) Shutdown(ctx context.Context) error                        { f.shutdowns++; return nil }
func (f *fakeDriver) Ping(ctx context.Context) error                            { return f.pingErr }

func (f *fakeDriver) AccountInfo(ctx context.Context) (*AccountRecord, error) {
	return f.account, f.accountErr
}

func (f *fakeDriver) SymbolInfo(ctx context.Context, symbol string) (*SymbolRecord, error) {
	return f.symbol, nil
}

func (f *fakeDriver) Positions(ctx context.Context, symbol string) ([]PositionRecord, error) {
	f.lastFilter = symbol
	if symbol == "" {
		return f.positions, nil
	}
	var matched []PositionRecord
	for _, p := range f.positions {
		if p.Symbol == symbol {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func (f *fakeDriver) Orders(ctx context.Context, symbol string) ([]OrderRecord, error) {
	return f.orders, nil
}

func (f *fakeDriver) ServerTime(ctx context.Context) (time.Time, error) {
	return f.serverTime, nil
}

func testAccount() *AccountRecord {
	return &AccountRecord{
		Login:        5001,
		Name:         "Demo Trader",
		Server:       "Broker-Demo",
		Currency:     "USD",
		Company:      "Broker Ltd",
		Balance:      10000,
		Equity:       10150.25,
		Margin:       200,
		MarginFree:   9950.25,
		MarginLevel:  5075.12,
		Profit:       150.25,
		TradeAllowed: true,
		TradeExpert:  true,
		Leverage:     100,
	}
}

func TestConnectCachesAccount(t *testing.T) {
	drv := &fakeDriver{account: testAccount()}
	c := New(drv, config.PlatformConfig{})

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected(context.Background()))

	cached := c.CachedAccount()
	require.NotNil(t, cached)
	assert.Equal(t, int64(5001), cached.Login)
	assert.Equal(t, 9950.25, cached.FreeMargin, "margin_free maps to free_margin")
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	drv := &fakeDriver{initErr: mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection, "gateway refused")}
	c := New(drv, config.PlatformConfig{})

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, c.Connected())
}

func TestConnectNilAccountIsConnectionFailure(t *testing.T) {
	// Session initializes but the terminal has no account logged in.
	drv := &fakeDriver{account: nil}
	c := New(drv, config.PlatformConfig{})

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, mtlinkerrors.IsType(err, mtlinkerrors.ErrorTypeConnection))
	assert.Equal(t, 1, drv.shutdowns, "the half-open session is torn down")
	assert.False(t, c.Connected())
	assert.Nil(t, c.CachedAccount())
}

func TestConnectRollsBackOnAccountFailure(t *testing.T) {
	drv := &fakeDriver{accountErr: mtlinkerrors.New(mtlinkerrors.ErrorTypeDriver, "account unavailable")}
	c := New(drv, config.PlatformConfig{})

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, mtlinkerrors.IsConnection(err), "half-open session reports as connection failure")
	assert.Equal(t, 1, drv.shutdowns, "session is torn down when account capture fails")
	assert.False(t, c.Connected())
}

func TestIsConnectedProbeDowngrades(t *testing.T) {
	drv := &fakeDriver{account: testAccount()}
	c := New(drv, config.PlatformConfig{})
	require.NoError(t, c.Connect(context.Background()))

	drv.pingErr = mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection, "terminal gone")
	assert.False(t, c.IsConnected(context.Background()))
	assert.False(t, c.Connected(), "failed probe downgrades the state flag")
}

func TestPositionTranslation(t *testing.T) {
	drv := &fakeDriver{
		positions: []PositionRecord{{
			Ticket:       900123,
			Symbol:       "EURUSD",
			Type:         1,
			Volume:       0.5,
			PriceOpen:    1.0850,
			PriceCurrent: 1.0830,
			SL:           1.0900,
			TP:           1.0700,
			Profit:       100,
			Swap:         -1.2,
			Comment:      "hedge",
			Magic:        77,
			Time:         1700000000,
			TimeUpdate:   1700000500,
		}},
	}
	c := New(drv, config.PlatformConfig{})

	positions, err := c.Positions(context.Background(), "EURUSD")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, core.SideSell, p.Side)
	assert.Equal(t, "SELL", p.Side.String())
	assert.Equal(t, 1.0900, p.StopLoss)
	assert.Equal(t, int64(1700000000), p.OpenedAt.Unix())
	assert.Equal(t, int64(1700000500), p.UpdatedAt.Unix())
}

func TestPositionFiltering(t *testing.T) {
	drv := &fakeDriver{
		positions: []PositionRecord{
			{Ticket: 1, Symbol: "EURUSD", Type: 0, Volume: 0.1},
			{Ticket: 2, Symbol: "GBPUSD", Type: 1, Volume: 0.2},
			{Ticket: 3, Symbol: "EURUSD", Type: 0, Volume: 0.3},
		},
	}
	c := New(drv, config.PlatformConfig{})

	all, err := c.Positions(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3, "empty filter returns everything")
	assert.Equal(t, "", drv.lastFilter, "empty filter is passed through unchanged")

	eur, err := c.Positions(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Len(t, eur, 2)
	assert.Equal(t, "EURUSD", drv.lastFilter)

	none, err := c.Positions(context.Background(), "USDJPY")
	require.NoError(t, err)
	assert.NotNil(t, none, "no matches is an empty slice, not nil")
	assert.Empty(t, none)
}

func TestOrderTranslation(t *testing.T) {
	drv := &fakeDriver{
		orders: []OrderRecord{{
			Ticket:        333,
			Symbol:        "GBPUSD",
			Type:          3,
			VolumeInitial: 1.0,
			VolumeCurrent: 0.6,
			PriceOpen:     1.2500,
			TimeSetup:     1700001000,
		}},
	}
	c := New(drv, config.PlatformConfig{})

	orders, err := c.Orders(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, core.OrderSellLimit, o.Kind)
	assert.Equal(t, "SELL_LIMIT", o.Kind.String())
	assert.Equal(t, 0.6, o.VolumeCurrent)
	assert.True(t, o.ExpiresAt.IsZero(), "missing expiration maps to the zero time")
}

func TestSymbolAvailable(t *testing.T) {
	tests := []struct {
		name   string
		symbol *SymbolRecord
		want   bool
	}{
		{"unknown symbol", nil, false},
		{"hidden", &SymbolRecord{Visible: false, TradeMode: 4}, false},
		{"trade disabled", &SymbolRecord{Visible: true, TradeMode: 0}, false},
		{"close only still counts", &SymbolRecord{Visible: true, TradeMode: 3}, true},
		{"full access", &SymbolRecord{Visible: true, TradeMode: 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&fakeDriver{symbol: tt.symbol}, config.PlatformConfig{})
			got, err := c.SymbolAvailable(context.Background(), "EURUSD")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnknownSymbolIsNotAnError(t *testing.T) {
	c := New(&fakeDriver{}, config.PlatformConfig{})

	descriptor, err := c.SymbolInfo(context.Background(), "NOSUCH")
	require.NoError(t, err)
	assert.Nil(t, descriptor)
}

func TestRegisteredWithFactory(t *testing.T) {
	require.True(t, registry.Has("mt5"))

	conn, err := registry.Create("mt5", config.PlatformConfig{GatewayPort: 18812})
	require.NoError(t, err)
	assert.Equal(t, "MT5", conn.PlatformName())

	schema, ok := registry.ConfigSchema("mt5")
	require.True(t, ok)
	names := make([]string, 0, len(schema))
	for _, field := range schema {
		names = append(names, field.Name)
	}
	assert.Contains(t, names, "gateway_port")
}

func TestNewFromConfigRejectsBadPort(t *testing.T) {
	_, err := NewFromConfig(config.PlatformConfig{GatewayPort: 0})
	require.Error(t, err)
	assert.True(t, mtlinkerrors.IsType(err, mtlinkerrors.ErrorTypeConfig))
}
