package mt5

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantfold/mtlink/pkg/config"
	"github.com/quantfold/mtlink/pkg/logger"
	"github.com/quantfold/mtlink/pkg/mtlinkerrors"
)

// Gateway is the JSON-over-TCP client for the local terminal gateway. The
// protocol is newline-delimited request/response with correlation IDs; the
// connection serializes one request at a time.
type Gateway struct {
	mu     sync.Mutex
	addr   string
	cfg    config.TimeoutConfig
	conn   net.Conn
	reader *bufio.Reader
	log    *zap.Logger
}

// request is one gateway call. Params carries method arguments and is
// omitted when empty.
type request struct {
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Params map[string]string `json:"params,omitempty"`
}

// response is one gateway reply. A null Result with no Error means the
// requested data does not exist.
type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// NewGateway creates a gateway client for the given address. No connection
// is made until Initialize.
func NewGateway(host string, port int, timeouts config.TimeoutConfig) *Gateway {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	return &Gateway{
		addr: addr,
		cfg:  timeouts,
		log:  logger.With(zap.String("platform", "mt5"), zap.String("gateway", addr)),
	}
}

var _ Driver = (*Gateway)(nil)

// Initialize dials the gateway and starts the terminal session.
func (g *Gateway) Initialize(ctx context.Context, terminalPath string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn != nil {
		g.closeLocked()
	}

	dialer := net.Dialer{Timeout: g.cfg.ConnectTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		return mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeConnection,
			"dial gateway %s", g.addr)
	}
	g.conn = conn
	g.reader = bufio.NewReader(conn)

	params := map[string]string{}
	if terminalPath != "" {
		params["terminal_path"] = terminalPath
	}
	// Terminal launch can take the full connect window.
	if _, err := g.roundTripLocked(ctx, "initialize", params, g.cfg.ConnectTimeout()); err != nil {
		g.closeLocked()
		return err
	}

	g.log.Info("gateway session initialized")
	return nil
}

// Shutdown ends the terminal session and closes the connection.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return nil
	}

	if _, err := g.roundTripLocked(ctx, "shutdown", nil, g.cfg.TradeTimeout()); err != nil {
		g.log.Debug("shutdown request failed, closing anyway", zap.Error(err))
	}
	g.closeLocked()
	return nil
}

// Ping verifies the session end to end.
func (g *Gateway) Ping(ctx context.Context) error {
	_, err := g.call(ctx, "terminal_info", nil)
	return err
}

// AccountInfo fetches the native account record.
func (g *Gateway) AccountInfo(ctx context.Context) (*AccountRecord, error) {
	raw, err := g.call(ctx, "account_info", nil)
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
func (g *Gateway) SymbolInfo(ctx context.Context, symbol string) (*SymbolRecord, error) {
	raw, err := g.call(ctx, "symbol_info", map[string]string{"symbol": symbol})
	if err != nil || raw == nil {
		return nil, err
	}

	var record SymbolRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeData, "decode symbol record")
	}
	return &record, nil
}

// Positions fetches native open-position records.
func (g *Gateway) Positions(ctx context.Context, symbol string) ([]PositionRecord, error) {
	params := map[string]string{}
	if symbol != "" {
		params["symbol"] = symbol
	}

	raw, err := g.call(ctx, "positions_get", params)
	if err != nil || raw == nil {
		return nil, err
	}

	var records []PositionRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeData, "decode position records")
	}
	return records, nil
}

// Orders fetches native pending-order records.
func (g *Gateway) Orders(ctx context.Context, symbol string) ([]OrderRecord, error) {
	params := map[string]string{}
	if symbol != "" {
		params["symbol"] = symbol
	}

	raw, err := g.call(ctx, "orders_get", params)
	if err != nil || raw == nil {
		return nil, err
	}

	var records []OrderRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeData, "decode order records")
	}
	return records, nil
}

// ServerTime fetches the terminal server time as unix seconds.
func (g *Gateway) ServerTime(ctx context.Context) (time.Time, error) {
	raw, err := g.call(ctx, "server_time", nil)
	if err != nil || raw == nil {
		return time.Time{}, err
	}

	var payload struct {
		Time int64 `json:"time"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return time.Time{}, mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeData, "decode server time")
	}
	if payload.Time == 0 {
		return time.Time{}, nil
	}
	return time.Unix(payload.Time, 0).UTC(), nil
}

// call performs one request/response exchange under the trade timeout.
func (g *Gateway) call(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roundTripLocked(ctx, method, params, g.cfg.TradeTimeout())
}

func (g *Gateway) roundTripLocked(ctx context.Context, method string, params map[string]string, timeout time.Duration) (json.RawMessage, error) {
	if g.conn == nil {
		return nil, mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection, "gateway not connected")
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := g.conn.SetDeadline(deadline); err != nil {
		return nil, mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeConnection, "set gateway deadline")
	}

	req := request{ID: uuid.NewString(), Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeInternal, "encode %s request", method)
	}

	if _, err := g.conn.Write(append(payload, '\n')); err != nil {
		g.closeLocked()
		return nil, mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeConnection, "write %s request", method)
	}

	line, err := g.reader.ReadBytes('\n')
	if err != nil {
		g.closeLocked()
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeTimeout, "%s timed out", method)
		}
		return nil, mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeConnection, "read %s response", method)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, mtlinkerrors.Wrapf(err, mtlinkerrors.ErrorTypeData, "decode %s response", method)
	}
	if resp.ID != req.ID {
		return nil, mtlinkerrors.Newf(mtlinkerrors.ErrorTypeData,
			"gateway response id mismatch: sent %s, got %s", req.ID, resp.ID)
	}
	if resp.Error != "" {
		return nil, mtlinkerrors.Newf(mtlinkerrors.ErrorTypeDriver, "gateway %s: %s", method, resp.Error)
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, nil
	}
	return resp.Result, nil
}

func (g *Gateway) closeLocked() {
	if g.conn != nil {
		_ = g.conn.Close()
		g.conn = nil
		g.reader = nil
	}
}
