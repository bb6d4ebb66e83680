package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	original := errors.New("connection refused")

	// When: wrapping it as a retrieval failure
	err := RetrievalUnavailable("embedding service unreachable", original)

	// Then: the chain still reaches the original
	require.NotNil(t, err)
	assert.Equal(t, original, errors.Unwrap(err))
	assert.True(t, errors.Is(err, original))
}

func TestMatchError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{"data", ErrCodeDataUnavailable, "taxonomy empty", "[ERR_207_DATA_UNAVAILABLE] taxonomy empty"},
		{"retrieval", ErrCodeRetrievalUnavailable, "timeout", "[ERR_304_RETRIEVAL_UNAVAILABLE] timeout"},
		{"query", ErrCodeInvalidQuery, "empty query", "[ERR_401_INVALID_QUERY] empty query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, tt.message, nil).Error())
		})
	}
}

func TestMatchError_Is_MatchesSentinelThroughWrapping(t *testing.T) {
	// Given: a retrieval failure wrapped by fmt.Errorf
	err := fmt.Errorf("rank: %w", RetrievalUnavailable("boom", nil))

	// Then: errors.Is matches the sentinel by code and not others
	assert.True(t, errors.Is(err, ErrRetrievalUnavailable))
	assert.False(t, errors.Is(err, ErrDataUnavailable))
	assert.Equal(t, ErrCodeRetrievalUnavailable, GetCode(err))
	assert.Equal(t, CategoryNetwork, GetCategory(err))
}

func TestNew_DerivesCategoryAndRetryable(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, false},
		{ErrCodeDataUnavailable, CategoryIO, false},
		{ErrCodeRetrievalUnavailable, CategoryNetwork, true},
		{ErrCodeNetworkTimeout, CategoryNetwork, true},
		{ErrCodeMalformedResponse, CategoryNetwork, false},
		{ErrCodeInvalidQuery, CategoryValidation, false},
		{ErrCodeNotReady, CategoryInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestDataUnavailable_IsFatalWithSuggestion(t *testing.T) {
	err := DataUnavailable("no entries", nil)

	assert.True(t, IsFatal(err))
	assert.NotEmpty(t, err.Suggestion)
	assert.False(t, IsRetryable(err))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetail_AddsDetails(t *testing.T) {
	err := New(ErrCodeIndexCorrupt, "bad meta", nil).
		WithDetail("path", "/tmp/index.hnsw").
		WithDetail("reason", "code mismatch")

	assert.Equal(t, "/tmp/index.hnsw", err.Details["path"])
	assert.Len(t, err.Details, 2)
}

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	out := FormatForCLI(DataUnavailable("taxonomy file not found", nil))

	assert.Contains(t, out, "Error: taxonomy file not found")
	assert.Contains(t, out, "Hint:")
	assert.Contains(t, out, ErrCodeDataUnavailable)
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatForCLI_WrapsPlainErrors(t *testing.T) {
	out := FormatForCLI(errors.New("plain"))

	assert.Contains(t, out, "Error: plain")
	assert.Contains(t, out, ErrCodeInternal)
}

func TestFormatJSON_RoundTripsFields(t *testing.T) {
	data, err := FormatJSON(RetrievalUnavailable("timeout", errors.New("deadline exceeded")))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ErrCodeRetrievalUnavailable, got["code"])
	assert.Equal(t, "deadline exceeded", got["cause"])
	assert.Equal(t, true, got["retryable"])
}
