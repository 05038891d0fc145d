package template

import "fmt"

// FieldTooWideError is returned when a scalar value is requested from a
// field wider than 64 bits.
type FieldTooWideError struct {
	Template string
	Field    string
	Width    uint
}

func (e *FieldTooWideError) Error() string {
	return fmt.Sprintf("%s.%s is %d bits wide and cannot be read as a scalar", e.Template, e.Field, e.Width)
}

// UnknownFieldError is returned when a template has no field with the
// requested name.
type UnknownFieldError struct {
	Template string
	Field    string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s has no field %s", e.Template, e.Field)
}
