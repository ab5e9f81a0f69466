package resilient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/mtlink/pkg/connector/core"
	"github.com/quantfold/mtlink/pkg/mtlinkerrors"
)

// fakeConnector counts every call so tests can assert the exact invocation
// sequence the resilience protocol produces.
type fakeConnector struct {
	connected bool

	connectCalls    int
	disconnectCalls int
	accountCalls    int
	symbolCalls     int

	connectErr func(attempt int) error
	accountErr func(attempt int) error
	account    *core.AccountSummary
}

func (f *fakeConnector) Connect(ctx context.Context) error {
	f.connectCalls++
	if f.connectErr != nil {
		if err := f.connectErr(f.connectCalls); err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeConnector) Disconnect(ctx context.Context) error {
	f.disconnectCalls++
	f.connected = false
	return nil
}

func (f *fakeConnector) IsConnected(ctx context.Context) bool {
	return f.connected
}

func (f *fakeConnector) AccountInfo(ctx context.Context) (*core.AccountSummary, error) {
	f.accountCalls++
	if f.accountErr != nil {
		if err := f.accountErr(f.accountCalls); err != nil {
			return nil, err
		}
	}
	return f.account, nil
}

func (f *fakeConnector) SymbolInfo(ctx context.Context, symbol string) (*core.SymbolDescriptor, error) {
	f.symbolCalls++
	return &core.SymbolDescriptor{Name: symbol}, nil
}

func (f *fakeConnector) Positions(ctx context.Context, symbolFilter string) ([]core.PositionRecord, error) {
	return []core.PositionRecord{}, nil
}

func (f *fakeConnector) Orders(ctx context.Context, symbolFilter string) ([]core.OrderRecord, error) {
	return []core.OrderRecord{}, nil
}

func (f *fakeConnector) ServerTime(ctx context.Context) (time.Time, error) {
	return time.Unix(1700000000, 0), nil
}

func (f *fakeConnector) SymbolAvailable(ctx context.Context, symbol string) (bool, error) {
	return true, nil
}

func (f *fakeConnector) ValidateConnection(ctx context.Context) bool {
	return f.connected
}

func (f *fakeConnector) PlatformName() string {
	return "MT5"
}

func TestHappyPathSingleInvocation(t *testing.T) {
	fake := &fakeConnector{connected: true, account: &core.AccountSummary{Login: 1}}
	w := Wrap(fake)

	account, err := w.AccountInfo(context.Background())
	require.NoError(t, err)
	require.NotNil(t, account)

	assert.Equal(t, 1, fake.accountCalls)
	assert.Equal(t, 0, fake.connectCalls, "no connect when session is already live")
}

func TestPreCheckConnectsWhenDown(t *testing.T) {
	fake := &fakeConnector{connected: false, account: &core.AccountSummary{Login: 1}}
	w := Wrap(fake)

	_, err := w.AccountInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, fake.connectCalls)
	assert.Equal(t, 1, fake.accountCalls)
}

func TestPreCheckConnectFailureSkipsOperation(t *testing.T) {
	fake := &fakeConnector{
		connected:  false,
		connectErr: func(int) error { return mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection, "terminal unreachable") },
	}
	w := Wrap(fake)

	_, err := w.AccountInfo(context.Background())
	require.Error(t, err)
	assert.True(t, mtlinkerrors.IsType(err, mtlinkerrors.ErrorTypeConnection))
	assert.Equal(t, 0, fake.accountCalls, "operation must not run when connect fails")
}

func TestConnectionFailureReconnectsAndRetriesOnce(t *testing.T) {
	fake := &fakeConnector{
		connected: true,
		account:   &core.AccountSummary{Login: 42},
		accountErr: func(attempt int) error {
			if attempt == 1 {
				return mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection, "session lost")
			}
			return nil
		},
	}
	w := Wrap(fake)

	account, err := w.AccountInfo(context.Background())
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, int64(42), account.Login)

	assert.Equal(t, 2, fake.accountCalls, "exactly one retry")
	assert.Equal(t, 1, fake.disconnectCalls)
	assert.Equal(t, 1, fake.connectCalls)
}

func TestRetryFailureIsFinal(t *testing.T) {
	fake := &fakeConnector{
		connected: true,
		accountErr: func(int) error {
			return mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection, "session lost")
		},
	}
	w := Wrap(fake)

	_, err := w.AccountInfo(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, fake.accountCalls, "never more than one retry per call")
	assert.Equal(t, 1, fake.connectCalls, "never more than one reconnect per call")
}

func TestReconnectFailureSkipsRetry(t *testing.T) {
	fake := &fakeConnector{
		connected: true,
		accountErr: func(int) error {
			return mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection, "session lost")
		},
		connectErr: func(int) error {
			return mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection, "terminal gone")
		},
	}
	w := Wrap(fake)

	_, err := w.AccountInfo(context.Background())
	require.Error(t, err)
	assert.True(t, mtlinkerrors.IsConnection(err))
	assert.Equal(t, 1, fake.accountCalls, "no retry after failed reconnect")
}

func TestNonConnectionFailureSurfacedUnchanged(t *testing.T) {
	driverErr := mtlinkerrors.New(mtlinkerrors.ErrorTypeDriver, "malformed reply")
	fake := &fakeConnector{
		connected:  true,
		accountErr: func(int) error { return driverErr },
	}
	w := Wrap(fake)

	_, err := w.AccountInfo(context.Background())
	require.Error(t, err)
	assert.Same(t, driverErr, err.(*mtlinkerrors.Error))
	assert.Equal(t, 1, fake.accountCalls, "no retry for non-connection failures")
	assert.Equal(t, 0, fake.connectCalls)
	assert.Equal(t, 0, fake.disconnectCalls)
}

func TestDeadSessionAfterUnclassifiedFailureReconnects(t *testing.T) {
	fake := &fakeConnector{
		connected: true,
		account:   &core.AccountSummary{Login: 9},
	}
	// The driver error carries no connection classification, but the
	// session dies underneath it.
	fake.accountErr = func(attempt int) error {
		if attempt == 1 {
			fake.connected = false
			return mtlinkerrors.New(mtlinkerrors.ErrorTypeDriver, "query aborted")
		}
		return nil
	}
	w := Wrap(fake)

	account, err := w.AccountInfo(context.Background())
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, 2, fake.accountCalls, "dead session triggers the single retry")
	assert.Equal(t, 1, fake.connectCalls)
}

func TestDataUnavailableIsNotAFailure(t *testing.T) {
	fake := &fakeConnector{connected: true, account: nil}
	w := Wrap(fake)

	account, err := w.AccountInfo(context.Background())
	require.NoError(t, err)
	assert.Nil(t, account)
	assert.Equal(t, 1, fake.accountCalls)
}

func TestWrapperSatisfiesContract(t *testing.T) {
	fake := &fakeConnector{connected: true}
	w := Wrap(fake)
	var c core.Connector = w

	assert.Same(t, fake, w.Unwrap())
	assert.Equal(t, "MT5", c.PlatformName())
	assert.True(t, c.IsConnected(context.Background()))

	ok, err := c.SymbolAvailable(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.True(t, ok)

	ts, err := c.ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts.Unix())
}
