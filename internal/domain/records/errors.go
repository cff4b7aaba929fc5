package records

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflict means concurrent writers kept winning the race for a
// collection and the operation gave up after maxAttempts.
var ErrConflict = errors.New("records: concurrent modification, retry later")

// FieldError describes one failing field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidFieldError lists every field that failed validation. Nothing is
// written when it is returned.
type InvalidFieldError struct {
	Fields []FieldError
}

func (e *InvalidFieldError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}

// CorruptStateError is returned when a stored document exists but cannot be
// decoded as the expected array.
type CorruptStateError struct {
	Key string
	Err error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt document %q: %v", e.Key, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }
