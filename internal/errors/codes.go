// Package errors provides structured error handling for nocmatch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Taxonomy and index data errors
//   - 3XX: Embedding service errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates taxonomy file and index artifact errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates embedding service errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Data errors (200-299)
	ErrCodeFileNotFound    = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission  = "ERR_202_FILE_PERMISSION"
	ErrCodeIndexCorrupt    = "ERR_206_INDEX_CORRUPT"
	ErrCodeDataUnavailable = "ERR_207_DATA_UNAVAILABLE"
	ErrCodeRebuildLocked   = "ERR_208_REBUILD_LOCKED"

	// Embedding service errors (300-399)
	ErrCodeNetworkTimeout       = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable   = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeMalformedResponse    = "ERR_303_MALFORMED_RESPONSE"
	ErrCodeRetrievalUnavailable = "ERR_304_RETRIEVAL_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidQuery      = "ERR_401_INVALID_QUERY"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
	ErrCodeNotReady     = "ERR_505_NOT_READY"
)

// Sentinels for errors.Is checks. Matching is by code, so any MatchError
// carrying the same code satisfies errors.Is against these.
var (
	ErrDataUnavailable      = &MatchError{Code: ErrCodeDataUnavailable}
	ErrRetrievalUnavailable = &MatchError{Code: ErrCodeRetrievalUnavailable}
	ErrInvalidQuery         = &MatchError{Code: ErrCodeInvalidQuery}
	ErrNotReady             = &MatchError{Code: ErrCodeNotReady}
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDataUnavailable:
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports whether the failure is transient. Only embedding
// service failures qualify; a missing taxonomy stays missing until someone
// fixes the file and calls rebuild.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeRetrievalUnavailable:
		return true
	default:
		return false
	}
}
