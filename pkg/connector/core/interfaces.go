// Package core defines the capability contract every mtlink platform
// connector satisfies, together with the normalized data model callers see
// regardless of which terminal family is active.
package core

import (
	"context"
	"time"

	"github.com/quantfold/mtlink/pkg/config"
)

// Connector is the capability contract for one trading platform. A variant
// binds it to one terminal driver; the resilient wrapper composes over any
// implementation without knowing the variant.
//
// Failure semantics: operations never leak raw driver errors. Data that is
// simply absent is a nil pointer, empty slice, or zero time with a nil
// error; genuine failures come back as classified mtlinkerrors values
// (Connection, Driver, Timeout). The reconnect decision made by the
// resilient wrapper depends on that classification.
//
// A connector instance is driven by one logical caller at a time; the
// reconnect-then-retry sequence is not atomic across concurrent invokers.
type Connector interface {
	// Connect establishes a session with the underlying terminal. On
	// success it populates the connection state and the cached account
	// summary.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Idempotent; safe to call when
	// already disconnected.
	Disconnect(ctx context.Context) error

	// IsConnected performs a live check against the driver, not just a
	// flag read, and downgrades internal state when the check fails.
	IsConnected(ctx context.Context) bool

	// AccountInfo returns a freshly populated account summary, or
	// (nil, nil) when the driver reports no account.
	AccountInfo(ctx context.Context) (*AccountSummary, error)

	// SymbolInfo returns the descriptor for a tradable instrument, or
	// (nil, nil) for an unknown symbol.
	SymbolInfo(ctx context.Context, symbol string) (*SymbolDescriptor, error)

	// Positions returns open positions, optionally filtered by symbol.
	// An empty filter returns everything; no matches is an empty slice.
	Positions(ctx context.Context, symbolFilter string) ([]PositionRecord, error)

	// Orders returns pending orders with the same filter contract as
	// Positions.
	Orders(ctx context.Context, symbolFilter string) ([]OrderRecord, error)

	// ServerTime returns the terminal server time, or the zero time when
	// it cannot be derived.
	ServerTime(ctx context.Context) (time.Time, error)

	// SymbolAvailable reports whether the symbol is visible and has a
	// non-zero trading mode.
	SymbolAvailable(ctx context.Context, symbol string) (bool, error)

	// ValidateConnection returns false immediately when not connected,
	// otherwise attempts an account query and downgrades state on
	// failure.
	ValidateConnection(ctx context.Context) bool

	// PlatformName returns the uppercase platform label ("MT5", "MT4").
	PlatformName() string
}

// Factory creates connectors from platform identifiers.
type Factory interface {
	Create(platform string, cfg config.PlatformConfig) (Connector, error)
	Supported() []string
	Has(platform string) bool
	ConfigSchema(platform string) (Schema, bool)
}

// AccountSummary is the normalized account snapshot. It is either fully
// populated or the query reports failure; no partial records.
type AccountSummary struct {
	Login        int64   `json:"login"`
	Name         string  `json:"name"`
	Server       string  `json:"server"`
	Currency     string  `json:"currency"`
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	Margin       float64 `json:"margin"`
	FreeMargin   float64 `json:"free_margin"`
	MarginLevel  float64 `json:"margin_level"`
	Profit       float64 `json:"profit"`
	Company      string  `json:"company"`
	TradeAllowed bool    `json:"trade_allowed"`
	TradeExpert  bool    `json:"trade_expert"`
	Leverage     int64   `json:"leverage"`
}

// SymbolDescriptor describes a tradable instrument. It is a read-only
// snapshot valid only at the moment of retrieval.
type SymbolDescriptor struct {
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	CurrencyBase   string    `json:"currency_base"`
	CurrencyProfit string    `json:"currency_profit"`
	CurrencyMargin string    `json:"currency_margin"`
	Digits         int       `json:"digits"`
	Point          float64   `json:"point"`
	Spread         int       `json:"spread"`
	VolumeMin      float64   `json:"volume_min"`
	VolumeMax      float64   `json:"volume_max"`
	VolumeStep     float64   `json:"volume_step"`
	TradeMode      TradeMode `json:"trade_mode"`
	Visible        bool      `json:"visible"`
	Bid            float64   `json:"bid"`
	Ask            float64   `json:"ask"`
	TickTime       time.Time `json:"tick_time"`
}

// PositionRecord describes one open position. Collections are produced
// fresh per call; nothing is cached.
type PositionRecord struct {
	Ticket       int64        `json:"ticket"`
	Symbol       string       `json:"symbol"`
	Side         PositionSide `json:"side"`
	Volume       float64      `json:"volume"`
	PriceOpen    float64      `json:"price_open"`
	PriceCurrent float64      `json:"price_current"`
	StopLoss     float64      `json:"sl"`
	TakeProfit   float64      `json:"tp"`
	Profit       float64      `json:"profit"`
	Swap         float64      `json:"swap"`
	Comment      string       `json:"comment"`
	Magic        int64        `json:"magic"`
	OpenedAt     time.Time    `json:"time"`
	UpdatedAt    time.Time    `json:"time_update"`
}

// OrderRecord describes one pending order.
type OrderRecord struct {
	Ticket        int64     `json:"ticket"`
	Symbol        string    `json:"symbol"`
	Kind          OrderKind `json:"kind"`
	VolumeInitial float64   `json:"volume_initial"`
	VolumeCurrent float64   `json:"volume_current"`
	PriceOpen     float64   `json:"price_open"`
	StopLoss      float64   `json:"sl"`
	TakeProfit    float64   `json:"tp"`
	Comment       string    `json:"comment"`
	Magic         int64     `json:"magic"`
	SetupAt       time.Time `json:"time_setup"`
	ExpiresAt     time.Time `json:"time_expiration"`
}

// PositionSide is the normalized position direction. Both terminal
// families encode it as 0/1; the mapping is fixed here so every variant
// presents the same vocabulary.
type PositionSide int

const (
	SideBuy  PositionSide = 0
	SideSell PositionSide = 1
)

// String returns the side label ("BUY"/"SELL").
func (s PositionSide) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

// OrderKind is the normalized pending-order type, matching the terminal
// numeric encoding shared by both families.
type OrderKind int

const (
	OrderBuy       OrderKind = 0
	OrderSell      OrderKind = 1
	OrderBuyLimit  OrderKind = 2
	OrderSellLimit OrderKind = 3
	OrderBuyStop   OrderKind = 4
	OrderSellStop  OrderKind = 5
)

var orderKindNames = map[OrderKind]string{
	OrderBuy:       "BUY",
	OrderSell:      "SELL",
	OrderBuyLimit:  "BUY_LIMIT",
	OrderSellLimit: "SELL_LIMIT",
	OrderBuyStop:   "BUY_STOP",
	OrderSellStop:  "SELL_STOP",
}

// String returns the order kind label.
func (k OrderKind) String() string {
	if name, ok := orderKindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// TradeMode is the instrument trading mode. Zero means trading disabled,
// which is why SymbolAvailable requires a non-zero mode.
type TradeMode int

const (
	TradeModeDisabled  TradeMode = 0
	TradeModeLongOnly  TradeMode = 1
	TradeModeShortOnly TradeMode = 2
	TradeModeCloseOnly TradeMode = 3
	TradeModeFull      TradeMode = 4
)

// Tradable reports whether any trading is permitted in this mode.
func (m TradeMode) Tradable() bool {
	return m != TradeModeDisabled
}

// Schema describes the configuration fields one platform variant
// recognizes. It is informational, consumed by validation and
// documentation collaborators; the factory does not enforce it.
type Schema []SchemaField

// SchemaField describes one configuration field.
type SchemaField struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
}
