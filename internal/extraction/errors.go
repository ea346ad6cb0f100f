package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/taskd/internal/provider"
)

// ErrBusy is returned when an extraction is already in flight.
var ErrBusy = errors.New("an extraction is already in progress")

// ValidationError rejects a request before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExhaustedError reports that every attempt failed. It unwraps to the
// last failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("extraction failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// UserMessage maps an extraction failure to text fit for an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		ve *ValidationError
		re *provider.ResponseError
		te *provider.TimeoutError
		tr *provider.TransportError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, ErrBusy):
		return "An extraction is already running. Try again when it finishes."
	case errors.Is(err, context.Canceled):
		return "The extraction was cancelled."
	case errors.As(err, &te), errors.As(err, &tr):
		return "Could not reach the AI provider. Please check your connection."
	case errors.As(err, &re) && re.IsAuth():
		return "The AI provider rejected the request. Please check your credentials."
	case errors.As(err, &re):
		return "The AI provider returned an error. Please check your endpoint/model settings."
	default:
		return "Task extraction failed."
	}
}
