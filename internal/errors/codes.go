// Package errors provides structured error handling for kbqa.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, storage)
//   - 3XX: Engine errors (embedding backends, vector engine)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryEngine indicates embedding or vector engine errors.
	CategoryEngine Category = "ENGINE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound       = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission     = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull           = "ERR_203_DISK_FULL"
	ErrCodeFileTooLarge       = "ERR_204_FILE_TOO_LARGE"
	ErrCodeCorruptIndex       = "ERR_205_CORRUPT_INDEX"
	ErrCodeStorageUnreachable = "ERR_206_STORAGE_UNREACHABLE"
	ErrCodeUnsupportedFormat  = "ERR_207_UNSUPPORTED_FORMAT"
	ErrCodeParseFailure       = "ERR_208_PARSE_FAILURE"
	ErrCodeContentTruncated   = "ERR_209_CONTENT_TRUNCATED"
	ErrCodeIndexLockHeld      = "ERR_210_INDEX_LOCK_HELD"
	ErrCodeTrackingIO         = "ERR_211_TRACKING_IO"

	// Engine errors (300-399)
	ErrCodeEngineTimeout           = "ERR_301_ENGINE_TIMEOUT"
	ErrCodeEngineUnreachable       = "ERR_302_ENGINE_UNREACHABLE"
	ErrCodeVectorEngineUnavailable = "ERR_304_VECTOR_ENGINE_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidPath       = "ERR_406_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "210" from "ERR_210_INDEX_LOCK_HELD"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryEngine
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDiskFull, ErrCodeIndexLockHeld, ErrCodeStorageUnreachable:
		return SeverityFatal
	case ErrCodeContentTruncated:
		return SeverityInfo
	case ErrCodeTrackingIO, ErrCodeVectorEngineUnavailable, ErrCodeUnsupportedFormat, ErrCodeFileTooLarge:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEngineTimeout, ErrCodeEngineUnreachable:
		return true
	default:
		return false
	}
}
