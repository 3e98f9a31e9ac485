package bot

import (
	"errors"
	"testing"

	"github.com/rmolina/gamebind/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestRenderErrorCoversAllCodes(t *testing.T) {
	codes := []types.ErrorCode{
		types.ErrValidation,
		types.ErrAlreadyBound,
		types.ErrNotBound,
		types.ErrHandleTaken,
		types.ErrHandleNotFound,
		types.ErrInsufficientBalance,
		types.ErrSameIdentity,
		types.ErrAlreadyCheckedIn,
		types.ErrExternalUnavailable,
		types.ErrRedemptionFailed,
		types.ErrAmbiguousOutcome,
		types.ErrStorageError,
		types.ErrInternalError,
	}

	for _, code := range codes {
		msg := renderError(types.NewEngineError(code, "detail"))
		assert.NotEmpty(t, msg, "code %s has no message", code)
		assert.NotContains(t, msg, "detail", "internal detail must not leak to the user")
	}
}

func TestRenderErrorUnknown(t *testing.T) {
	msg := renderError(errors.New("some sql error"))
	assert.Equal(t, "Something went wrong on our side. Please try again later.", msg)
	assert.NotContains(t, msg, "sql")
}

func TestRenderErrorUnwrapsChains(t *testing.T) {
	wrapped := types.WrapError(types.ErrExternalUnavailable, "game api unreachable", errors.New("dial tcp: connection refused"))
	msg := renderError(wrapped)
	assert.Equal(t, errorMessages[types.ErrExternalUnavailable], msg)
}

func TestAmbiguousMessageWarnsAgainstRetry(t *testing.T) {
	msg := renderError(types.NewEngineError(types.ErrAmbiguousOutcome, ""))
	assert.Contains(t, msg, "do NOT retry")
}

func TestCommandNamesUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, cmd := range Commands {
		assert.False(t, seen[cmd.Name], "duplicate command %s", cmd.Name)
		seen[cmd.Name] = true
	}
}
