package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

const (
	// CategoryTransient indicates temporary failures where a later attempt may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures a later attempt will not fix.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates bugs or corrupted local state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable reports whether errors in this category may succeed on retry.
// Nothing in this module retries on its own; the flag is advice for callers.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies a specific failure kind.
type ErrorCode string

const (
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"  // Token acquisition exhausted
	ErrCodeStore        ErrorCode = "STORE"         // Backing store failure
	ErrCodeDecode       ErrorCode = "DECODE"        // Stored entry is not a valid message
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"     // Message id absent
	ErrCodeConflict     ErrorCode = "CONFLICT"      // Conditional write rejected
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Missing or malformed argument

	ErrCodeTimeout  ErrorCode = "TIMEOUT"  // Deadline exceeded
	ErrCodeCanceled ErrorCode = "CANCELED" // Context canceled
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected failure
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeConflict:
		return CategoryTransient
	case ErrCodeUnauthorized, ErrCodeDecode, ErrCodeNotFound, ErrCodeInvalidInput,
		ErrCodeCanceled, ErrCodeStore:
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeUnauthorized: "authentication failed",
	ErrCodeStore:        "store request failed",
	ErrCodeDecode:       "invalid message",
	ErrCodeNotFound:     "message not found",
	ErrCodeConflict:     "concurrent update detected",
	ErrCodeInvalidInput: "invalid input provided",
	ErrCodeTimeout:      "operation timed out",
	ErrCodeCanceled:     "operation canceled",
	ErrCodeInternal:     "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
