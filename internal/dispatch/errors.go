package dispatch

import (
	"errors"
	"fmt"
)

// ErrNotImplemented is returned for chunk runs.
var ErrNotImplemented = errors.New("chunk execution is not implemented")

// ConfigError is a call site that cannot be dispatched at all, such as an
// external call from a cell without a language. It is reported to the caller
// immediately and never retried.
type ConfigError struct {
	CellID string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.CellID == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error in cell %q: %s", e.CellID, e.Reason)
}

// UnresolvedFunctionError is returned when no registered context provides a
// function.
type UnresolvedFunctionError struct {
	Name string
}

func (e *UnresolvedFunctionError) Error() string {
	return fmt.Sprintf("function %q is not provided by any execution context", e.Name)
}
