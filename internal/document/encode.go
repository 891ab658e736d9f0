package document

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/vk/cellgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Encode renders a model in the format Load reads.
func Encode(m *Model) ([]byte, error) {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	for _, rc := range m.Contexts {
		b := body.AppendNewBlock("context", []string{rc.Name}).Body()
		b.SetAttributeValue("url", cty.StringVal(rc.URL))
		if rc.Namespace != "" {
			b.SetAttributeValue("namespace", cty.StringVal(rc.Namespace))
		}
		if rc.Timeout > 0 {
			b.SetAttributeValue("timeout", cty.StringVal(rc.Timeout.String()))
		}
		if rc.InsecureSkipVerify {
			b.SetAttributeValue("insecure_skip_verify", cty.True)
		}
		body.AppendNewline()
	}

	for _, n := range m.Nodes {
		switch {
		case n.Type.IsComputational():
			b := body.AppendNewBlock("cell", []string{n.ID}).Body()
			setString(b, "language", n.Language)
			setString(b, "source", n.Source)
			setString(b, "code", n.Code)
			if n.Type == InlineCell {
				b.SetAttributeValue("inline", cty.True)
			}
		case n.Type.IsInput():
			b := body.AppendNewBlock("input", []string{n.ID}).Body()
			b.SetAttributeValue("kind", cty.StringVal(n.Type.String()))
			setString(b, "name", n.Name)
			if n.Value != nil {
				v, err := value.ToCty(n.Value)
				if err != nil {
					return nil, fmt.Errorf("input %q: %w", n.ID, err)
				}
				b.SetAttributeValue("value", v)
			}
		default:
			return nil, fmt.Errorf("node %q: cannot encode type %s", n.ID, n.Type)
		}
		body.AppendNewline()
	}
	return f.Bytes(), nil
}

func setString(b *hclwrite.Body, name, v string) {
	if v != "" {
		b.SetAttributeValue(name, cty.StringVal(v))
	}
}
