// Package mt4 implements the platform-4 family connector. The terminal has
// no native out-of-process API, so an expert advisor running inside it
// exposes a websocket bridge; this package speaks the bridge protocol and
// translates its records into the normalized contract model.
package mt4

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantfold/mtlink/pkg/config"
	"github.com/quantfold/mtlink/pkg/logger"
	"github.com/quantfold/mtlink/pkg/mtlinkerrors"
)

// Driver is the bridge surface the connector depends on. The production
// implementation is Bridge; tests substitute fakes.
type Driver interface {
	// Open dials the bridge and performs the expert-advisor handshake.
	Open(ctx context.Context) error

	// Close shuts the bridge session down. Idempotent.
	Close(ctx context.Context) error

	// Ping verifies the bridge and the expert advisor are both alive.
	Ping(ctx context.Context) error

	// AccountInfo returns the native account record, or nil when the
	// terminal is logged out.
	AccountInfo(ctx context.Context) (*AccountRecord, error)

	// SymbolInfo returns the native symbol record, or nil for a symbol
	// the terminal does not know.
	SymbolInfo(ctx context.Context, symbol string) (*SymbolRecord, error)

	// Symbols returns the names in the terminal market watch.
	Symbols(ctx context.Context) ([]string, error)

	// Trades returns open market trades, optionally filtered by symbol.
	Trades(ctx context.Context, symbol string) ([]TradeRecord, error)

	// PendingOrders returns pending orders, optionally filtered by
	// symbol.
	PendingOrders(ctx context.Context, symbol string) ([]TradeRecord, error)
}

// AccountRecord is the account payload as the bridge emits it.
type AccountRecord struct {
	Login        int64   `json:"login"`
	Name         string  `json:"name"`
	Server       string  `json:"server"`
	Currency     string  `json:"currency"`
	Company      string  `json:"company"`
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	Margin       float64 `json:"margin"`
	FreeMargin   float64 `json:"free_margin"`
	MarginLevel  float64 `json:"margin_level"`
	Profit       float64 `json:"profit"`
	TradeAllowed bool    `json:"trade_allowed"`
	TradeExpert  bool    `json:"trade_expert"`
	Leverage     int64   `json:"leverage"`
}

// SymbolRecord is the symbol payload as the bridge emits it. The terminal
// reports sizes in lots and tick time as unix seconds.
type SymbolRecord struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	CurrencyBase   string  `json:"currency_base"`
	CurrencyProfit string  `json:"currency_profit"`
	CurrencyMargin string  `json:"currency_margin"`
	Digits         int     `json:"digits"`
	Point          float64 `json:"point"`
	Spread         int     `json:"spread"`
	LotMin         float64 `json:"lot_min"`
	LotMax         float64 `json:"lot_max"`
	LotStep        float64 `json:"lot_step"`
	TradeMode      int     `json:"trade_mode"`
	Visible        bool    `json:"visible"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	TickTime       int64   `json:"tick_time"`
}

// TradeRecord is the unified trade payload the terminal family uses for
// both market trades and pending orders. Cmd carries the native order
// command (0=buy, 1=sell, 2..5 pending).
type TradeRecord struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Cmd        int     `json:"cmd"`
	Lots       float64 `json:"lots"`
	OpenPrice  float64 `json:"open_price"`
	ClosePrice float64 `json:"close_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Profit     float64 `json:"profit"`
	Swap       float64 `json:"swap"`
	Comment    string  `json:"comment"`
	Magic      int64   `json:"magic"`
	OpenTime   int64   `json:"open_time"`
	Expiration int64   `json:"expiration"`
}

// Bridge is the websocket client for the expert-advisor bridge. Requests
// are serialized; the expert advisor processes one command per tick cycle.
type Bridge struct {
	mu     sync.Mutex
	url    string
	eaName string
	cfg    config.TimeoutConfig
	conn   *websocket.Conn
	log    *zap.Logger
}

type command struct {
	ID      string            `json:"id"`
	Command string            `json:"command"`
	Args    map[string]string `json:"args,omitempty"`
}

type reply struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// NewBridge creates a bridge client for the local expert advisor.
func NewBridge(port int, eaName string, timeouts config.TimeoutConfig) *Bridge {
	url := fmt.Sprintf("ws://%s/", net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", port)))
	return &Bridge{
		url:    url,
		eaName: eaName,
		cfg:    timeouts,
		log:    logger.With(zap.String("platform", "mt4"), zap.String("bridge", url)),
	}
}

var _ Driver = (*Bridge)(nil)

// Open dials the bridge and handshakes with the expert advisor. The
// handshake names the expert advisor so a stale bridge from another EA
// cannot masquerade as ours.
func (b *Bridge) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		b.closeLocked()
	}

	dialer := websocket.Dialer{HandshakeTimeout: b.cfg.ConnectTimeout()}
	conn, _, err := dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeConnection,
			"dial bridge %s", b.url)
	}
	b.conn = conn

	raw, err := b.exchangeLocked(ctx, "handshake", map[string]string{"ea_name": b.eaName}, b.cfg.ConnectTimeout())
	if err != nil {
		b.closeLocked()
		return err
	}

	var ack struct {
		EAName string `json:"ea_name"`
	}
	if err := json.Unmarshal(raw, &ack); err != nil {
		b.closeLocked()
		return mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeData, "decode handshake ack")
	}
	if ack.EAName != b.eaName {
		b.closeLocked()
		return mtlinkerrors.Newf(mtlinkerrors.ErrorTypeConnection,
			"bridge answered as %q, expected %q", ack.EAName, b.eaName)
	}

	b.log.Info("bridge session established", zap.String("ea", b.eaName))
	return nil
}

// Close shuts the bridge session down.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
	return nil
}

// Ping verifies the expert advisor is still responding.
func (b *Bridge) Ping(ctx context.Context) error {
	_, err := b.call(ctx, "ping", nil)
	return err
}

// AccountInfo fetches the native account record.
func (b *Bridge) AccountInfo(ctx context.Context) (*AccountRecord, error) {
	raw, err := b.call(ctx, "account_info", nil)
	if err != nil || raw == nil {
		return nil, err
	}

	var record AccountRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeData, "decode account record")
	}
	return &record, nil
}

// SymbolInfo fetches the native symbol record.
func (b *Bridge) SymbolInfo(ctx context.Context, symbol string) (*SymbolRecord, error) {
	raw, err := b.call(ctx, "symbol_info", map[string]string{"symbol": symbol})
	if err != nil || raw == nil {
		return nil, err
	}

	var record SymbolRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeData, "decode symbol record")
	}
	return &record, nil
}

// Symbols fetches the market watch symbol names.
func (b *Bridge) Symbols(ctx context.Context) ([]string, error) {
	raw, err := b.call(ctx, "symbols", nil)
	if err != nil || raw == nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeData, "decode symbol list")
	}
	return names, nil
}

// Trades fetches open market trades.
func (b *Bridge) Trades(ctx context.Context, symbol string) ([]TradeRecord, error) {
	return b.tradeList(ctx, "trades", symbol)
}

// PendingOrders fetches pending orders.
func (b *Bridge) PendingOrders(ctx context.Context, symbol string) ([]TradeRecord, error) {
	return b.tradeList(ctx, "pending_orders", symbol)
}

func (b *Bridge) tradeList(ctx context.Context, cmd, symbol string) ([]TradeRecord, error) {
	args := map[string]string{}
	if symbol != "" {
		args["symbol"] = symbol
	}

	raw, err := b.call(ctx, cmd, args)
	if err != nil || raw == nil {
		return nil, err
	}

	var records []TradeRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeData, "decode %s", cmd)
	}
	return records, nil
}

func (b *Bridge) call(ctx context.Context, cmd string, args map[string]string) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exchangeLocked(ctx, cmd, args, b.cfg.TradeTimeout())
}

func (b *Bridge) exchangeLocked(ctx context.Context, cmd string, args map[string]string, timeout time.Duration) (json.RawMessage, error) {
	if b.conn == nil {
		return nil, mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection, "bridge not connected")
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = b.conn.SetWriteDeadline(deadline)
	_ = b.conn.SetReadDeadline(deadline)

	req := command{ID: uuid.NewString(), Command: cmd, Args: args}
	if err := b.conn.WriteJSON(req); err != nil {
		b.closeLocked()
		return nil, mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeConnection, "send %s", cmd)
	}

	_, payload, err := b.conn.ReadMessage()
	if err != nil {
		b.closeLocked()
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeTimeout, "%s timed out", cmd)
		}
		return nil, mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeConnection, "read %s reply", cmd)
	}

	var resp reply
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeData, "decode %s reply", cmd)
	}
	if resp.ID != req.ID {
		return nil, mtlinkerrors.Newf(mtlinkerrors.ErrorTypeData,
			"bridge reply id mismatch: sent %s, got %s", req.ID, resp.ID)
	}
	if resp.Error != "" {
		return nil, mtlinkerrors.Newf(mtlinkerrors.ErrorTypeDriver, "bridge %s: %s", cmd, resp.Error)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, nil
	}
	return resp.Data, nil
}

func (b *Bridge) closeLocked() {
	if b.conn != nil {
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = b.conn.Close()
		b.conn = nil
	}
}
