package providers

import "fmt"

// Error is the single error type surfaced for every provider-side failure:
// transport errors, non-2xx responses, explicit error fields, and responses
// missing the documented success marker.
type Error struct {
	Provider string
	Action   string
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Action, e.Message)
}

func newError(provider, action, format string, args ...any) *Error {
	return &Error{
		Provider: provider,
		Action:   action,
		Message:  fmt.Sprintf(format, args...),
	}
}
