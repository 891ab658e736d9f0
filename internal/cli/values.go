package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/cellgrid/internal/value"
)

// parseAssignment splits name=value. The value is read as an HCL literal
// (numbers, bools, quoted strings, lists, objects); anything that does not
// evaluate on its own is taken as a bare string.
func parseAssignment(s string) (string, any, error) {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("invalid --set %q: expected name=value", s)
	}
	if !hclsyntax.ValidIdentifier(name) {
		return "", nil, fmt.Errorf("invalid --set %q: %q is not a valid name", s, name)
	}

	syntax, diags := hclsyntax.ParseExpression([]byte(raw), "--set", hcl.InitialPos)
	if diags.HasErrors() || len(syntax.Variables()) > 0 {
		return name, raw, nil
	}
	v, diags := syntax.Value(nil)
	if diags.HasErrors() {
		return name, raw, nil
	}
	native, err := value.FromCty(v)
	if err != nil {
		return name, raw, nil
	}
	return name, native, nil
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(s))
}
