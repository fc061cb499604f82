package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverityFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		severity Severity
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError},
		{ErrCodeIndexLockHeld, CategoryIO, SeverityFatal},
		{ErrCodeContentTruncated, CategoryIO, SeverityInfo},
		{ErrCodeTrackingIO, CategoryIO, SeverityWarning},
		{ErrCodeVectorEngineUnavailable, CategoryEngine, SeverityWarning},
		{ErrCodeInvalidInput, CategoryValidation, SeverityError},
		{ErrCodeEmbeddingFailed, CategoryInternal, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			// When: creating an error from the code
			err := New(tt.code, "boom", nil)

			// Then: category and severity follow the code
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestKBError_ErrorAndUnwrap(t *testing.T) {
	// Given: a KBError wrapping a cause
	cause := fmt.Errorf("disk gone")
	err := New(ErrCodeTrackingIO, "save failed", cause)

	// Then: message includes the code and the chain reaches the cause
	assert.Equal(t, "[ERR_211_TRACKING_IO] save failed", err.Error())
	assert.True(t, stderrors.Is(err, cause))
}

func TestKBError_IsMatchesByCode(t *testing.T) {
	// Given: an error wrapped twice through fmt
	inner := ParseFailure("/tmp/a.txt", nil)
	wrapped := fmt.Errorf("outer: %w", inner)

	// Then: errors.Is matches against any KBError with the same code
	assert.True(t, stderrors.Is(wrapped, New(ErrCodeParseFailure, "", nil)))
	assert.False(t, stderrors.Is(wrapped, New(ErrCodeUnsupportedFormat, "", nil)))
	assert.Equal(t, ErrCodeParseFailure, GetCode(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeParseFailure))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(IndexLockHeld("/x/.lock")))
	assert.False(t, IsFatal(ParseFailure("a", nil)))
	assert.False(t, IsFatal(fmt.Errorf("plain")))
}

func TestIndexLockHeld_HasSuggestionAndDetail(t *testing.T) {
	err := IndexLockHeld("/data/.lock")

	assert.Equal(t, "/data/.lock", err.Details["lock"])
	assert.Contains(t, err.Suggestion, "/data/.lock")
}

func TestFormatForCLI(t *testing.T) {
	// Given: a KBError with a suggestion and detail
	err := IndexLockHeld("/data/.lock")

	// When: formatting without debug
	out := FormatForCLI(err, false)

	// Then: the message, suggestion and code are shown but not details
	assert.Contains(t, out, "Error: index storage is locked")
	assert.Contains(t, out, "Suggestion:")
	assert.Contains(t, out, "[ERR_210_INDEX_LOCK_HELD]")
	assert.NotContains(t, out, "lock: /data/.lock")

	// When: formatting with debug
	out = FormatForCLI(err, true)

	// Then: details appear
	assert.Contains(t, out, "lock: /data/.lock")

	assert.Equal(t, "Error: plain\n", FormatForCLI(fmt.Errorf("plain"), false))
	assert.Empty(t, FormatForCLI(nil, false))
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryWithResult_SucceedsAfterTransientFailures(t *testing.T) {
	// Given: a function that fails twice with a retryable error
	calls := 0
	fn := func() (int, error) {
		calls++
		if calls < 3 {
			return 0, New(ErrCodeEngineUnreachable, "down", nil)
		}
		return 42, nil
	}

	// When: retrying
	got, err := RetryWithResult(context.Background(), fastRetry(), fn)

	// Then: the third attempt wins
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResult_StopsOnNonRetryableKBError(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(), func() (string, error) {
		calls++
		return "", New(ErrCodeInvalidInput, "bad", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_GivesUp(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(), func() (string, error) {
		calls++
		return "", fmt.Errorf("flaky")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 3, calls)
}

func TestRetryWithResult_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithResult(ctx, fastRetry(), func() (int, error) { return 1, nil })

	assert.ErrorIs(t, err, context.Canceled)
}
