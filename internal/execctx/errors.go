package execctx

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrContextExists is returned when a context name is registered twice.
var ErrContextExists = errors.New("execution context already registered")

// EvalError is a failed evaluation. Errors is the exact line-keyed map the
// context reported.
type EvalError struct {
	Errors map[int]string
}

func (e *EvalError) Error() string {
	lines := make([]int, 0, len(e.Errors))
	for line := range e.Errors {
		lines = append(lines, line)
	}
	sort.Ints(lines)

	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == 0 {
			parts = append(parts, e.Errors[line])
			continue
		}
		parts = append(parts, fmt.Sprintf("line %d: %s", line, e.Errors[line]))
	}
	return "evaluation failed: " + strings.Join(parts, "; ")
}

// Lines returns the error map, or a single line-0 entry holding err's
// message when err is not an EvalError.
func Lines(err error) map[int]string {
	if err == nil {
		return nil
	}
	var evalErr *EvalError
	if errors.As(err, &evalErr) && len(evalErr.Errors) > 0 {
		return evalErr.Errors
	}
	return map[int]string{0: err.Error()}
}
