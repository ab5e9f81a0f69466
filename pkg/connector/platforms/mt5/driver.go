// Package mt5 implements the platform-5 family connector. The terminal is
// reached through a local JSON gateway process that owns the native terminal
// library; this package speaks the gateway wire protocol and translates its
// records into the normalized contract model.
package mt5

import (
	"context"
	"time"
)

// Driver is the gateway surface the connector depends on. The production
// implementation is Gateway; tests substitute fakes.
type Driver interface {
	// Initialize starts the terminal session. TerminalPath is passed
	// through so the gateway can launch the terminal when it is not
	// already running.
	Initialize(ctx context.Context, terminalPath string) error

	// Shutdown ends the terminal session. Idempotent.
	Shutdown(ctx context.Context) error

	// Ping verifies the gateway and the terminal session are both live.
	Ping(ctx context.Context) error

	// AccountInfo returns the native account record, or nil when the
	// terminal reports no account.
	AccountInfo(ctx context.Context) (*AccountRecord, error)

	// SymbolInfo returns the native symbol record, or nil for an unknown
	// symbol.
	SymbolInfo(ctx context.Context, symbol string) (*SymbolRecord, error)

	// Positions returns native open-position records, optionally
	// filtered by symbol.
	Positions(ctx context.Context, symbol string) ([]PositionRecord, error)

	// Orders returns native pending-order records, optionally filtered
	// by symbol.
	Orders(ctx context.Context, symbol string) ([]OrderRecord, error)

	// ServerTime returns the terminal server time, or the zero time when
	// unavailable.
	ServerTime(ctx context.Context) (time.Time, error)
}

// AccountRecord is the account payload as the gateway emits it, field names
// matching the native terminal library.
type AccountRecord struct {
	Login        int64   `json:"login"`
	Name         string  `json:"name"`
	Server       string  `json:"server"`
	Currency     string  `json:"currency"`
	Company      string  `json:"company"`
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	Margin       float64 `json:"margin"`
	MarginFree   float64 `json:"margin_free"`
	MarginLevel  float64 `json:"margin_level"`
	Profit       float64 `json:"profit"`
	TradeAllowed bool    `json:"trade_allowed"`
	TradeExpert  bool    `json:"trade_expert"`
	Leverage     int64   `json:"leverage"`
}

// SymbolRecord is the symbol payload as the gateway emits it.
type SymbolRecord struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	CurrencyBase   string  `json:"currency_base"`
	CurrencyProfit string  `json:"currency_profit"`
	CurrencyMargin string  `json:"currency_margin"`
	Digits         int     `json:"digits"`
	Point          float64 `json:"point"`
	Spread         int     `json:"spread"`
	VolumeMin      float64 `json:"volume_min"`
	VolumeMax      float64 `json:"volume_max"`
	VolumeStep     float64 `json:"volume_step"`
	TradeMode      int     `json:"trade_mode"`
	Visible        bool    `json:"visible"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Time           int64   `json:"time"`
}

// PositionRecord is the open-position payload as the gateway emits it.
// Timestamps are unix seconds; Type is the native 0=buy/1=sell encoding.
type PositionRecord struct {
	Ticket       int64   `json:"ticket"`
	Symbol       string  `json:"symbol"`
	Type         int     `json:"type"`
	Volume       float64 `json:"volume"`
	PriceOpen    float64 `json:"price_open"`
	PriceCurrent float64 `json:"price_current"`
	SL           float64 `json:"sl"`
	TP           float64 `json:"tp"`
	Profit       float64 `json:"profit"`
	Swap         float64 `json:"swap"`
	Comment      string  `json:"comment"`
	Magic        int64   `json:"magic"`
	Time         int64   `json:"time"`
	TimeUpdate   int64   `json:"time_update"`
}

// OrderRecord is the pending-order payload as the gateway emits it.
type OrderRecord struct {
	Ticket         int64   `json:"ticket"`
	Symbol         string  `json:"symbol"`
	Type           int     `json:"type"`
	VolumeInitial  float64 `json:"volume_initial"`
	VolumeCurrent  float64 `json:"volume_current"`
	PriceOpen      float64 `json:"price_open"`
	SL             float64 `json:"sl"`
	TP             float64 `json:"tp"`
	Comment        string  `json:"comment"`
	Magic          int64   `json:"magic"`
	TimeSetup      int64   `json:"time_setup"`
	TimeExpiration int64   `json:"time_expiration"`
}
