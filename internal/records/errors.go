// Package records holds the bit-exact codecs for the fixed-size memory
// records of the radio: channels, routes, waypoints and MMSI directory
// entries.
//
// Codecs never touch a transport or a document. They take raw record bytes
// plus the layout parameters they need and return plain values, or the
// reverse.
package records

import (
	"errors"
	"fmt"
)

// ErrValidation matches every ValidationError.
var ErrValidation = errors.New("records: validation failed")

// ValidationError reports a semantic violation together with the offending
// value. Values are never coerced.
type ValidationError struct {
	Module  string
	Subject string
	Reason  string
}

func (e ValidationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %s", e.Module, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Module, e.Subject, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(module, subject, format string, args ...any) error {
	return ValidationError{Module: module, Subject: subject, Reason: fmt.Sprintf(format, args...)}
}
