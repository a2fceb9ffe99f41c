package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &Error{
		Exchange:   "binance",
		Kind:       KindTransport,
		Message:    "GET /klines",
		HTTPStatus: 0,
		Cause:      cause,
	}

	assert.Contains(t, err.Error(), "binance")
	assert.Contains(t, err.Error(), "transport")
	assert.ErrorIs(t, err, cause)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindRateLimit, KindOf(&Error{Kind: KindRateLimit}))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindCancelled, KindOf(fmt.Errorf("dial: %w", context.Canceled)))
	assert.Equal(t, KindTransport, KindOf(errors.New("mystery")))
	assert.Equal(t, KindTransport, KindOf(context.DeadlineExceeded))

	wrapped := fmt.Errorf("fetch: %w", ShapeError("okx", "missing data array"))
	assert.Equal(t, KindShape, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindShape))
}

func TestTemporary(t *testing.T) {
	assert.True(t, (&Error{Kind: KindTransport}).Temporary())
	assert.True(t, (&Error{Kind: KindRateLimit}).Temporary())
	assert.False(t, (&Error{Kind: KindMisuse}).Temporary())
	assert.False(t, (&Error{Kind: KindCancelled}).Temporary())
}

func TestRetryAfterOf(t *testing.T) {
	err := &Error{Kind: KindRateLimit, RetryAfter: 2 * time.Second}
	d, ok := RetryAfterOf(fmt.Errorf("fetch: %w", err))
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	_, ok = RetryAfterOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestMisuseError(t *testing.T) {
	err := MisuseError("interval %q not supported", "7m")
	assert.True(t, IsKind(err, KindMisuse))
	assert.Contains(t, err.Error(), "7m")
}
