package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_Error(t *testing.T) {
	err := MissingParamError("symbol")
	assert.Contains(t, err.Error(), "symbol")
	assert.Contains(t, err.Error(), "missing required parameter")

	err = NewValidationError("", "nil message")
	assert.Contains(t, err.Error(), "nil message")
}

func TestConnectionError_Unwrap(t *testing.T) {
	inner := errors.New("dial refused")
	err := NewConnectionError("/v5/market/time", inner)

	assert.Contains(t, err.Error(), "/v5/market/time")
	assert.ErrorIs(t, err, inner)
}

func TestStateError_Unwrap(t *testing.T) {
	err := NewStateError("send", ErrNotConnected)

	assert.Contains(t, err.Error(), "send")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestTransportError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := NewTransportError(inner)
	assert.ErrorIs(t, err, inner)
}

func TestExchangeError_Error(t *testing.T) {
	err := NewExchangeError(10001, 200, "params error")

	assert.Contains(t, err.Error(), "10001")
	assert.Contains(t, err.Error(), "params error")
	assert.False(t, err.Timestamp.IsZero())
}

func TestErrorHelpers(t *testing.T) {
	validation := MissingParamError("symbol")
	connection := NewConnectionError("/v5/market/time", errors.New("down"))
	state := NewStateError("send", ErrNotConnected)
	transport := NewTransportError(errors.New("reset"))

	assert.True(t, IsValidationError(validation))
	assert.True(t, IsConnectionError(connection))
	assert.True(t, IsStateError(state))
	assert.True(t, IsTransportError(transport))

	assert.False(t, IsValidationError(connection))
	assert.False(t, IsConnectionError(state))
	assert.False(t, IsStateError(transport))
	assert.False(t, IsTransportError(validation))
}

func TestErrorHelpers_Wrapped(t *testing.T) {
	err := fmt.Errorf("send failed: %w", MissingParamError("side"))
	require.True(t, IsValidationError(err))
}
