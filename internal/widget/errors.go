package widget

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownType   = errors.New("unknown widget type")
	ErrNotFound      = errors.New("widget not found")
	ErrNotConfigured = errors.New("widget has no path or field name")
	ErrNoFieldName   = errors.New("widget has no field name")
	ErrReadOnly      = errors.New("widget is read-only")
	ErrNotContinuous = errors.New("widget commits immediately and cannot stage values")
	ErrNotSlider     = errors.New("only sliders can step")
	ErrNotDiscrete   = errors.New("only switches and buttons toggle")
	ErrNoWriteSink   = errors.New("no connection for write operation")
	ErrDuplicateID   = errors.New("duplicate widget id")
)

// ValidationError lists the widgets that block a save.
type ValidationError struct {
	MissingField []string `json:"missingField,omitempty"`
	DuplicateID  []string `json:"duplicateId,omitempty"`
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.MissingField) > 0 {
		parts = append(parts, fmt.Sprintf("missing field names: %s", strings.Join(e.MissingField, ", ")))
	}
	if len(e.DuplicateID) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate ids: %s", strings.Join(e.DuplicateID, ", ")))
	}
	return "invalid widget configuration: " + strings.Join(parts, "; ")
}
