// Package errors defines the error kinds surfaced by the sync core.
package errors

import "errors"

var (
	// ErrNoActiveConversation is returned by operations that require a
	// selected conversation.
	ErrNoActiveConversation = errors.New("no active conversation selected")

	// ErrNotAuthenticated is returned by operations that require a logged-in
	// session user.
	ErrNotAuthenticated = errors.New("register or log in first")

	// ErrMalformedEnvelope marks a push payload that could not be parsed.
	// Such payloads are logged and dropped, never fatal.
	ErrMalformedEnvelope = errors.New("malformed push envelope")

	// ErrChannelNotOpen is returned when a push send is attempted while the
	// channel is not in the open state.
	ErrChannelNotOpen = errors.New("push channel is not open")
)

// AuthError reports bad credentials or a registration conflict.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// NetworkError reports a failed or timed out REST call.
type NetworkError struct {
	Op      string
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Op + " failed"
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ChannelError reports a push channel failure. It triggers a reconnect and
// is not surfaced as a hard failure.
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string { return "push channel: " + e.Err.Error() }

func (e *ChannelError) Unwrap() error { return e.Err }

// Humanize collapses any error into a single message fit for the session
// error slot.
func Humanize(err error) string {
	if err == nil {
		return ""
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Something went wrong. Please try again."
}
