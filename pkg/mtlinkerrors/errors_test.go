package mtlinkerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrorTypeConnection, "terminal session lost")
	assert.Equal(t, "connection: terminal session lost", err.Error())

	wrapped := Wrap(errors.New("dial tcp: refused"), ErrorTypeConnection, "bridge unreachable")
	assert.Equal(t, "connection: bridge unreachable: dial tcp: refused", wrapped.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, ErrorTypeDriver, "account query failed")

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)

	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, ErrorTypeDriver, typed.Type)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeDriver, "nothing"))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeConfig, "bad port").
		WithDetail("platform", "mt4").
		WithDetail("bridge_port", 7788)

	assert.Equal(t, "mt4", err.Details["platform"])
	assert.Equal(t, 7788, err.Details["bridge_port"])
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeUnsupported, "unknown platform")
	assert.True(t, IsType(err, ErrorTypeUnsupported))
	assert.False(t, IsType(err, ErrorTypeConnection))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeConnection))

	// Typed errors survive further wrapping with %w.
	chained := fmt.Errorf("outer: %w", err)
	assert.True(t, IsType(chained, ErrorTypeUnsupported))
}

func TestIsConnection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed connection", New(ErrorTypeConnection, "lost"), true},
		{"typed timeout", New(ErrorTypeTimeout, "deadline"), true},
		{"typed driver is authoritative", New(ErrorTypeDriver, "connection glitch"), false},
		{"typed config", New(ErrorTypeConfig, "bad path"), false},
		{"heuristic not connected", errors.New("MT4 not connected"), true},
		{"heuristic broken pipe", errors.New("write: broken pipe"), true},
		{"heuristic reset", errors.New("read: connection reset by peer"), true},
		{"heuristic eof", errors.New("unexpected EOF"), true},
		{"unrelated", errors.New("division by zero"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnection(tt.err))
		})
	}
}

func TestStackCaptured(t *testing.T) {
	err := New(ErrorTypeInternal, "oops")
	require.NotEmpty(t, err.Stack)
	assert.Contains(t, err.Stack[0].Function, "TestStackCaptured")
}
