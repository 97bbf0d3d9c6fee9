// Package errors provides structured error handling for brainmcp.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, index storage)
//   - 3XX: Network errors (Ollama embedding/generation)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
//   - 6XX: Admission errors (rate limiting)
//   - 7XX: Index lifecycle errors (availability, resync)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
	// CategoryAdmission indicates request admission errors (throttling).
	CategoryAdmission Category = "ADMISSION"
	// CategoryIndex indicates index lifecycle errors.
	CategoryIndex Category = "INDEX"
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
	ErrCodeConfigNotFound  = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "ERR_102_CONFIG_INVALID"
	ErrCodeDocsRootMissing = "ERR_103_DOCS_ROOT_MISSING"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeFileTooLarge   = "ERR_203_FILE_TOO_LARGE"
	ErrCodeCorruptIndex   = "ERR_204_CORRUPT_INDEX"
	ErrCodeStateStore     = "ERR_205_STATE_STORE"
	ErrCodeDataDirLocked  = "ERR_206_DATA_DIR_LOCKED"

	// Network errors (300-399)
	ErrCodeNetworkTimeout    = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeOllamaUnavailable = "ERR_302_OLLAMA_UNAVAILABLE"
	ErrCodeGenerationFailed  = "ERR_303_GENERATION_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"
	ErrCodeUnsupportedFile   = "ERR_404_UNSUPPORTED_FILE"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"

	// Admission errors (600-699)
	ErrCodeRateLimited = "ERR_601_RATE_LIMITED"

	// Index lifecycle errors (700-799)
	ErrCodeIndexUnavailable = "ERR_701_INDEX_UNAVAILABLE"
	ErrCodeResyncItemFailed = "ERR_702_RESYNC_ITEM_FAILED"
	ErrCodeComputeFailed    = "ERR_703_COMPUTE_FAILED"
	ErrCodeResyncFailed     = "ERR_704_RESYNC_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "601" from "ERR_601_RATE_LIMITED")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	case '6':
		return CategoryAdmission
	case '7':
		return CategoryIndex
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDataDirLocked:
		return SeverityFatal
	case ErrCodeRateLimited, ErrCodeResyncItemFailed:
		// Expected under load; callers skip or back off.
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Rate-limit rejections are deliberately not retryable: the client must
// back off rather than have the process retry internally.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeOllamaUnavailable:
		return true
	default:
		return false
	}
}
