package mt5

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quantfold/mtlink/pkg/config"
	"github.com/quantfold/mtlink/pkg/connector/base"
	"github.com/quantfold/mtlink/pkg/connector/core"
	"github.com/quantfold/mtlink/pkg/connector/registry"
	"github.com/quantfold/mtlink/pkg/mtlinkerrors"
)

func init() {
	registry.Register("mt5", NewFromConfig, configSchema)
}

var configSchema = core.Schema{
	{Name: "terminal_path", Type: "string", Description: "terminal executable path; the gateway attaches to a running terminal when empty"},
	{Name: "gateway_host", Type: "string", Default: "127.0.0.1", Description: "terminal gateway host"},
	{Name: "gateway_port", Type: "int", Required: true, Default: 18812, Description: "terminal gateway port"},
	{Name: "timeout.connect", Type: "int", Default: 30, Description: "session establishment timeout in seconds"},
	{Name: "timeout.trade", Type: "int", Default: 10, Description: "per-operation timeout in seconds"},
}

// Connector binds the capability contract to the platform-5 gateway driver.
type Connector struct {
	*base.Connector
	driver Driver
}

var _ core.Connector = (*Connector)(nil)

// NewFromConfig builds the connector from its configuration section.
// Configuration problems are fatal here; nothing is dialed until Connect.
func NewFromConfig(cfg config.PlatformConfig) (core.Connector, error) {
	if cfg.GatewayPort <= 0 || cfg.GatewayPort > 65535 {
		return nil, mtlinkerrors.Newf(mtlinkerrors.ErrorTypeConfig,
			"mt5 gateway_port %d is out of range", cfg.GatewayPort)
	}
	host := cfg.GatewayHost
	if host == "" {
		host = "127.0.0.1"
	}
	return New(NewGateway(host, cfg.GatewayPort, cfg.Timeout), cfg), nil
}

// New builds the connector over an explicit driver, used by tests.
func New(driver Driver, cfg config.PlatformConfig) *Connector {
	return &Connector{
		Connector: base.New("mt5", cfg),
		driver:    driver,
	}
}

// Connect starts the terminal session and captures the account summary.
func (c *Connector) Connect(ctx context.Context) error {
	if err := c.driver.Initialize(ctx, c.Config().TerminalPath); err != nil {
		c.SetConnected(false)
		return err
	}

	account, err := c.driver.AccountInfo(ctx)
	if err != nil {
		_ = c.driver.Shutdown(ctx)
		c.SetConnected(false)
		return mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeConnection,
			"session established but account query failed")
	}
	if account == nil {
		// An initialized session with no account behind it is unusable.
		_ = c.driver.Shutdown(ctx)
		c.SetConnected(false)
		return mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection,
			"session established but no account is logged in")
	}

	c.SetConnected(true)
	c.CacheAccount(toAccountSummary(account))
	c.Logger().Info("connected",
		zap.Int64("login", account.Login),
		zap.String("server", account.Server))
	return nil
}

// Disconnect ends the terminal session.
func (c *Connector) Disconnect(ctx context.Context) error {
	err := c.driver.Shutdown(ctx)
	c.SetConnected(false)
	return err
}

// IsConnected performs a live probe against the gateway.
func (c *Connector) IsConnected(ctx context.Context) bool {
	if !c.Connected() {
		return false
	}
	if err := c.driver.Ping(ctx); err != nil {
		c.Logger().Warn("liveness probe failed", zap.Error(err))
		c.SetConnected(false)
		return false
	}
	return true
}

// ValidateConnection probes the session with an account query.
func (c *Connector) ValidateConnection(ctx context.Context) bool {
	return c.Connector.ValidateConnection(ctx, c.AccountInfo)
}

// AccountInfo returns the normalized account summary.
func (c *Connector) AccountInfo(ctx context.Context) (*core.AccountSummary, error) {
	record, err := c.driver.AccountInfo(ctx)
	if err != nil || record == nil {
		return nil, err
	}
	return toAccountSummary(record), nil
}

// SymbolInfo returns the normalized symbol descriptor.
func (c *Connector) SymbolInfo(ctx context.Context, symbol string) (*core.SymbolDescriptor, error) {
	record, err := c.driver.SymbolInfo(ctx, symbol)
	if err != nil || record == nil {
		return nil, err
	}
	return toSymbolDescriptor(record), nil
}

// Positions returns normalized open positions.
func (c *Connector) Positions(ctx context.Context, symbolFilter string) ([]core.PositionRecord, error) {
	records, err := c.driver.Positions(ctx, symbolFilter)
	if err != nil {
		return nil, err
	}

	positions := make([]core.PositionRecord, 0, len(records))
	for i := range records {
		positions = append(positions, toPosition(&records[i]))
	}
	return positions, nil
}

// Orders returns normalized pending orders.
func (c *Connector) Orders(ctx context.Context, symbolFilter string) ([]core.OrderRecord, error) {
	records, err := c.driver.Orders(ctx, symbolFilter)
	if err != nil {
		return nil, err
	}

	orders := make([]core.OrderRecord, 0, len(records))
	for i := range records {
		orders = append(orders, toOrder(&records[i]))
	}
	return orders, nil
}

// ServerTime returns the terminal server time.
func (c *Connector) ServerTime(ctx context.Context) (time.Time, error) {
	return c.driver.ServerTime(ctx)
}

// SymbolAvailable reports whether the symbol is visible and tradable.
func (c *Connector) SymbolAvailable(ctx context.Context, symbol string) (bool, error) {
	record, err := c.driver.SymbolInfo(ctx, symbol)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	return record.Visible && core.TradeMode(record.TradeMode).Tradable(), nil
}

func toAccountSummary(r *AccountRecord) *core.AccountSummary {
	return &core.AccountSummary{
		Login:        r.Login,
		Name:         r.Name,
		Server:       r.Server,
		Currency:     r.Currency,
		Company:      r.Company,
		Balance:      r.Balance,
		Equity:       r.Equity,
		Margin:       r.Margin,
		FreeMargin:   r.MarginFree,
		MarginLevel:  r.MarginLevel,
		Profit:       r.Profit,
		TradeAllowed: r.TradeAllowed,
		TradeExpert:  r.TradeExpert,
		Leverage:     r.Leverage,
	}
}

func toSymbolDescriptor(r *SymbolRecord) *core.SymbolDescriptor {
	return &core.SymbolDescriptor{
		Name:           r.Name,
		Description:    r.Description,
		CurrencyBase:   r.CurrencyBase,
		CurrencyProfit: r.CurrencyProfit,
		CurrencyMargin: r.CurrencyMargin,
		Digits:         r.Digits,
		Point:          r.Point,
		Spread:         r.Spread,
		VolumeMin:      r.VolumeMin,
		VolumeMax:      r.VolumeMax,
		VolumeStep:     r.VolumeStep,
		TradeMode:      core.TradeMode(r.TradeMode),
		Visible:        r.Visible,
		Bid:            r.Bid,
		Ask:            r.Ask,
		TickTime:       unixTime(r.Time),
	}
}

func toPosition(r *PositionRecord) core.PositionRecord {
	return core.PositionRecord{
		Ticket:       r.Ticket,
		Symbol:       r.Symbol,
		Side:         core.PositionSide(r.Type),
		Volume:       r.Volume,
		PriceOpen:    r.PriceOpen,
		PriceCurrent: r.PriceCurrent,
		StopLoss:     r.SL,
		TakeProfit:   r.TP,
		Profit:       r.Profit,
		Swap:         r.Swap,
		Comment:      r.Comment,
		Magic:        r.Magic,
		OpenedAt:     unixTime(r.Time),
		UpdatedAt:    unixTime(r.TimeUpdate),
	}
}

func toOrder(r *OrderRecord) core.OrderRecord {
	return core.OrderRecord{
		Ticket:        r.Ticket,
		Symbol:        r.Symbol,
		Kind:          core.OrderKind(r.Type),
		VolumeInitial: r.VolumeInitial,
		VolumeCurrent: r.VolumeCurrent,
		PriceOpen:     r.PriceOpen,
		StopLoss:      r.SL,
		TakeProfit:    r.TP,
		Comment:       r.Comment,
		Magic:         r.Magic,
		SetupAt:       unixTime(r.TimeSetup),
		ExpiresAt:     unixTime(r.TimeExpiration),
	}
}

func unixTime(seconds int64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
