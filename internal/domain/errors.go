package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the assistant client. Every failure the core surfaces
// wraps one of these, so callers dispatch with errors.Is instead of sniffing
// error text.
var (
	// ErrInvalidInput rejects an empty or oversized submission. No state change.
	ErrInvalidInput = fmt.Errorf("invalid input")
	// ErrSendInFlight rejects a send while another send is in progress for the
	// same conversation. No queueing, no interleaving.
	ErrSendInFlight = fmt.Errorf("send already in flight")
	// ErrSendFailed marks any failure during the network/stream lifecycle of
	// one send. Always recoverable via Retry.
	ErrSendFailed = fmt.Errorf("send failed")
	// ErrStreamAborted marks a reply stream that terminated without a
	// completion signal.
	ErrStreamAborted = fmt.Errorf("reply stream aborted")
	// ErrContextPersist marks a failed context-selection persist. The local
	// optimistic selection is retained.
	ErrContextPersist = fmt.Errorf("context persist failed")
	// ErrConversationLoad marks a failed canonical snapshot fetch. Loaded
	// local state is preserved.
	ErrConversationLoad = fmt.Errorf("conversation load failed")
	// ErrConversationNotFound reports an unknown conversation id.
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	// ErrNoFailedSend rejects Retry when there is nothing to retry.
	ErrNoFailedSend = fmt.Errorf("no failed send to retry")
	// ErrNoActiveConversation rejects operations that need an active
	// conversation when none is selected.
	ErrNoActiveConversation = fmt.Errorf("no active conversation")

	// Transport-level sentinels mapped from HTTP responses.
	ErrAuthInvalid   = fmt.Errorf("authentication failed")
	ErrRateLimit     = fmt.Errorf("rate limit exceeded")
	ErrServerFailure = fmt.Errorf("server failure")
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "SendController.Send")
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

// ErrorCode is a machine-parseable error category for monitoring and for the
// UI to pick a presentation (dismissible notice, retry affordance, etc.).
type ErrorCode string

const (
	CodeUnknown              ErrorCode = "UNKNOWN"
	CodeInvalidInput         ErrorCode = "INVALID_INPUT"
	CodeSendInFlight         ErrorCode = "SEND_IN_FLIGHT"
	CodeSendFailed           ErrorCode = "SEND_FAILED"
	CodeStreamAborted        ErrorCode = "STREAM_ABORTED"
	CodeContextPersist       ErrorCode = "CONTEXT_PERSIST"
	CodeConversationLoad     ErrorCode = "CONVERSATION_LOAD"
	CodeConversationNotFound ErrorCode = "CONVERSATION_NOT_FOUND"
	CodeNoFailedSend         ErrorCode = "NO_FAILED_SEND"
	CodeNoActiveConversation ErrorCode = "NO_ACTIVE_CONVERSATION"
	CodeAuthInvalid          ErrorCode = "AUTH_INVALID"
	CodeRateLimit            ErrorCode = "RATE_LIMIT"
	CodeServerFailure        ErrorCode = "SERVER_FAILURE"
	CodeConfigLoad           ErrorCode = "CONFIG_LOAD"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrInvalidInput:         CodeInvalidInput,
	ErrSendInFlight:         CodeSendInFlight,
	ErrSendFailed:           CodeSendFailed,
	ErrStreamAborted:        CodeStreamAborted,
	ErrContextPersist:       CodeContextPersist,
	ErrConversationLoad:     CodeConversationLoad,
	ErrConversationNotFound: CodeConversationNotFound,
	ErrNoFailedSend:         CodeNoFailedSend,
	ErrNoActiveConversation: CodeNoActiveConversation,
	ErrAuthInvalid:          CodeAuthInvalid,
	ErrRateLimit:            CodeRateLimit,
	ErrServerFailure:        CodeServerFailure,
	ErrConfigLoad:           CodeConfigLoad,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and walks the error chain with errors.Is.
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

// Recoverable reports whether err represents a failure the user can retry
// without restarting the session.
func Recoverable(err error) bool {
	return errors.Is(err, ErrSendFailed) ||
		errors.Is(err, ErrContextPersist) ||
		errors.Is(err, ErrConversationLoad) ||
		errors.Is(err, ErrRateLimit)
}
