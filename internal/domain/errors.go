package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrInvalidState  = fmt.Errorf("invalid state")
	ErrProviderError = fmt.Errorf("provider error")
	ErrTimeout       = fmt.Errorf("operation timed out")
)

// Sentinel errors for the streaming pipeline and its collaborators.
var (
	ErrServerReported    = fmt.Errorf("server reported error")
	ErrTransport         = fmt.Errorf("transport failure")
	ErrTranslationFailed = fmt.Errorf("translation failed")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrHistoryStore      = fmt.Errorf("history store failed")
	ErrDecryption        = fmt.Errorf("decryption failed")

	// Resilience errors.
	ErrRateLimit   = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid = fmt.Errorf("authentication failed")
	ErrCircuitOpen = fmt.Errorf("circuit open")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Pipeline.Run")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeInvalidState      ErrorCode = "INVALID_STATE"
	CodeProviderError     ErrorCode = "PROVIDER_ERROR"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeServerReported    ErrorCode = "SERVER_REPORTED"
	CodeTransport         ErrorCode = "TRANSPORT"
	CodeTranslationFailed ErrorCode = "TRANSLATION_FAILED"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeHistoryStore      ErrorCode = "HISTORY_STORE"
	CodeDecryption        ErrorCode = "DECRYPTION"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrInvalidInput:      CodeInvalidInput,
	ErrInvalidState:      CodeInvalidState,
	ErrProviderError:     CodeProviderError,
	ErrTimeout:           CodeTimeout,
	ErrServerReported:    CodeServerReported,
	ErrTransport:         CodeTransport,
	ErrTranslationFailed: CodeTranslationFailed,
	ErrConfigLoad:        CodeConfigLoad,
	ErrHistoryStore:      CodeHistoryStore,
	ErrDecryption:        CodeDecryption,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrCircuitOpen:       CodeCircuitOpen,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
