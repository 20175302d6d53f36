package oauth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies OAuth flow failures. Kinds are stable strings so they
// can be matched, logged, and mapped to exit codes without string parsing.
type ErrorKind string

const (
	// KindNoConfig indicates OAuth client credentials are not configured.
	KindNoConfig ErrorKind = "NO_CONFIG"

	// KindOAuthFailed is a generic authorization flow failure (CSRF state
	// mismatch, malformed callback, authorization server error).
	KindOAuthFailed ErrorKind = "OAUTH_FAILED"

	// KindUserDenied indicates the user cancelled or denied the
	// authorization request at the authorization server.
	KindUserDenied ErrorKind = "USER_DENIED"

	// KindTimeout indicates the flow did not complete before its deadline.
	KindTimeout ErrorKind = "TIMEOUT"

	// KindTokenExchangeFailed indicates the authorization-code exchange
	// against the token endpoint failed.
	KindTokenExchangeFailed ErrorKind = "TOKEN_EXCHANGE_FAILED"

	// KindRefreshFailed indicates a refresh-token grant failed.
	KindRefreshFailed ErrorKind = "REFRESH_FAILED"

	// KindInvalidResponse indicates the token endpoint returned a 2xx
	// response whose body could not be used (bad JSON, no access token).
	KindInvalidResponse ErrorKind = "INVALID_RESPONSE"

	// KindInvalidConfig indicates configuration that is present but
	// unusable (e.g. a redirect URI with an unparsable port).
	KindInvalidConfig ErrorKind = "INVALID_CONFIG"
)

// FlowError is a classified OAuth failure.
type FlowError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// NewFlowError creates a FlowError with the given kind and formatted message.
func NewFlowError(kind ErrorKind, format string, args ...interface{}) *FlowError {
	return &FlowError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapFlowError creates a FlowError wrapping an underlying error.
func WrapFlowError(kind ErrorKind, err error, format string, args ...interface{}) *FlowError {
	return &FlowError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the ErrorKind of err if it is (or wraps) a FlowError, or an
// empty kind otherwise.
func KindOf(err error) ErrorKind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
