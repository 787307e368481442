package ctlerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatalDistinguishesClass(t *testing.T) {
	assert.True(t, IsFatal(Fatal("watch", errors.New("boom"))))
	assert.False(t, IsFatal(Transient("config", errors.New("missing"))))
	assert.False(t, IsFatal(errors.New("plain error")))
}

func TestIsFatalUnwrapsWrappedErrors(t *testing.T) {
	inner := Fatal("gateway", errors.New("conn reset"))
	wrapped := fmt.Errorf("tick failed: %w", inner)
	assert.True(t, IsFatal(wrapped))
}

func TestErrorMessageIncludesOp(t *testing.T) {
	err := Transient("advance store watch", errors.New("timeout"))
	assert.Contains(t, err.Error(), "advance store watch")
	assert.Contains(t, err.Error(), "timeout")
}

func TestUnwrapReturnsUnderlyingError(t *testing.T) {
	cause := errors.New("root cause")
	err := Fatal("op", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}
