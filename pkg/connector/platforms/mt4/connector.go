package mt4

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
	registry.Register("mt4", NewFromConfig, configSchema)
}

var configSchema = core.Schema{
	{Name: "terminal_path", Type: "string", Description: "terminal executable path; informational, the bridge attaches to the running terminal"},
	{Name: "bridge_port", Type: "int", Required: true, Default: 7788, Description: "expert advisor bridge websocket port"},
	{Name: "ea_name", Type: "string", Default: "MT4Bridge", Description: "expert advisor name checked during the bridge handshake"},
	{Name: "timeout.connect", Type: "int", Default: 30, Description: "session establishment timeout in seconds"},
	{Name: "timeout.trade", Type: "int", Default: 10, Description: "per-operation timeout in seconds"},
}

// Connector binds the capability contract to the platform-4 bridge driver.
type Connector struct {
	*base.Connector
	driver Driver
}

var _ core.Connector = (*Connector)(nil)

// NewFromConfig builds the connector from its configuration section.
func NewFromConfig(cfg config.PlatformConfig) (core.Connector, error) {
	if cfg.BridgePort <= 0 || cfg.BridgePort > 65535 {
		return nil, mtlinkerrors.Newf(mtlinkerrors.ErrorTypeConfig,
			"mt4 bridge_port %d is out of range", cfg.BridgePort)
	}
	eaName := cfg.EAName
	if eaName == "" {
		eaName = "MT4Bridge"
	}
	return New(NewBridge(cfg.BridgePort, eaName, cfg.Timeout), cfg), nil
}

// New builds the connector over an explicit driver, used by tests.
func New(driver Driver, cfg config.PlatformConfig) *Connector {
	return &Connector{
		Connector: base.New("mt4", cfg),
		driver:    driver,
	}
}

// Connect opens the bridge session and captures the account summary.
func (c *Connector) Connect(ctx context.Context) error {
	if err := c.driver.Open(ctx); err != nil {
		c.SetConnected(false)
		return err
	}

	account, err := c.driver.AccountInfo(ctx)
	if err != nil {
		_ = c.driver.Close(ctx)
		c.SetConnected(false)
		return mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeConnection,
			"bridge opened but account query failed")
	}
	if account == nil {
		// A reachable bridge with no account behind it is unusable.
		_ = c.driver.Close(ctx)
		c.SetConnected(false)
		return mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection,
			"bridge opened but no account is logged in")
	}

	c.SetConnected(true)
	c.CacheAccount(toAccountSummary(account))
	c.Logger().Info("connected",
		zap.Int64("login", account.Login),
		zap.String("server", account.Server))
	return nil
}

// Disconnect closes the bridge session.
func (c *Connector) Disconnect(ctx context.Context) error {
	err := c.driver.Close(ctx)
	c.SetConnected(false)
	return err
}

// IsConnected performs a live probe against the bridge.
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

// Positions returns normalized open positions. The terminal family has no
// position concept of its own; open market trades are the positions.
func (c *Connector) Positions(ctx context.Context, symbolFilter string) ([]core.PositionRecord, error) {
	records, err := c.driver.Trades(ctx, symbolFilter)
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
	records, err := c.driver.PendingOrders(ctx, symbolFilter)
	if err != nil {
		return nil, err
	}

	orders := make([]core.OrderRecord, 0, len(records))
	for i := range records {
		orders = append(orders, toOrder(&records[i]))
	}
	return orders, nil
}

// ServerTime derives the terminal server time from the latest tick of the
// first available market watch symbol. The terminal offers no direct
// server clock query.
func (c *Connector) ServerTime(ctx context.Context) (time.Time, error) {
	names, err := c.driver.Symbols(ctx)
	if err != nil {
		return time.Time{}, err
	}

	for _, name := range names {
		record, err := c.driver.SymbolInfo(ctx, name)
		if err != nil {
			return time.Time{}, err
		}
		if record == nil || !record.Visible || record.TickTime == 0 {
			continue
		}
		return time.Unix(record.TickTime, 0).UTC(), nil
	}
	return time.Time{}, nil
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
		FreeMargin:   r.FreeMargin,
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
		VolumeMin:      r.LotMin,
		VolumeMax:      r.LotMax,
		VolumeStep:     r.LotStep,
		TradeMode:      core.TradeMode(r.TradeMode),
		Visible:        r.Visible,
		Bid:            r.Bid,
		Ask:            r.Ask,
		TickTime:       unixTime(r.TickTime),
	}
}

func toPosition(r *TradeRecord) core.PositionRecord {
	return core.PositionRecord{
		Ticket:       r.Ticket,
		Symbol:       r.Symbol,
		Side:         core.PositionSide(r.Cmd),
		Volume:       r.Lots,
		PriceOpen:    r.OpenPrice,
		PriceCurrent: r.ClosePrice,
		StopLoss:     r.StopLoss,
		TakeProfit:   r.TakeProfit,
		Profit:       r.Profit,
		Swap:         r.Swap,
		Comment:      r.Comment,
		Magic:        r.Magic,
		OpenedAt:     unixTime(r.OpenTime),
		// The terminal does not track a separate modification time.
		UpdatedAt: unixTime(r.OpenTime),
	}
}

func toOrder(r *TradeRecord) core.OrderRecord {
	return core.OrderRecord{
		Ticket: r.Ticket,
		Symbol: r.Symbol,
		Kind:   core.OrderKind(r.Cmd),
		// Partial fills replace the ticket, so initial and current
		// volume are always the same lot size here.
		VolumeInitial: r.Lots,
		VolumeCurrent: r.Lots,
		PriceOpen:     r.OpenPrice,
		StopLoss:      r.StopLoss,
		TakeProfit:    r.TakeProfit,
		Comment:       r.Comment,
		Magic:         r.Magic,
		SetupAt:       unixTime(r.OpenTime),
		ExpiresAt:     unixTime(r.Expiration),
	}
}

func unixTime(seconds int64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
