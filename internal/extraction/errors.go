package extraction

import (
	"errors"
	"fmt"
)

// ValidationError marks a segment whose model output cannot become an event
// candidate. The segment is dropped; the post itself keeps processing.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid event fields: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid event fields: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is a dropped-segment validation
// failure rather than a transport or model failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
