package value

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var dataURIPattern = regexp.MustCompile(`^data:image/([a-z+]+);base64,([A-Za-z0-9+/=]+)$`)

// ToMarkup renders a value as an embeddable fragment. Images become inline
// SVG or a base64 data URI; every other value becomes a tagged container
// holding its packed text.
func ToMarkup(v any) (string, error) {
	v = indirect(v)
	if t, ok := tagged(v); ok {
		if t.Type == TypeImage {
			if t.Format == FormatSVG {
				return fmt.Sprintf(`<div data-value="img" data-format="svg">%s</div>`, t.Content), nil
			}
			return fmt.Sprintf(`<img data-value="img" data-format="%s" src="data:image/%s;base64,%s">`,
				html.EscapeString(string(t.Format)), html.EscapeString(string(t.Format)), t.Content), nil
		}
		content := t.Content
		if t.Format != FormatHTML {
			content = html.EscapeString(content)
		}
		return fmt.Sprintf(`<div data-value="%s" data-format="%s">%s</div>`,
			html.EscapeString(string(t.Type)), html.EscapeString(string(t.Format)), content), nil
	}

	p, err := Pack(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`<div data-value="%s" data-format="%s">%s</div>`,
		p.Type, p.Format, html.EscapeString(p.Content)), nil
}

// FromMarkup reads a value back from a fragment produced by ToMarkup.
func FromMarkup(fragment string) (any, error) {
	ctxNode := &nethtml.Node{Type: nethtml.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := nethtml.ParseFragment(strings.NewReader(fragment), ctxNode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}
	elem := findValueElement(nodes)
	if elem == nil {
		return nil, fmt.Errorf("%w: markup has no element with a data-value attribute", ErrMalformedPackage)
	}

	typ := Type(attr(elem, "data-value"))
	format := Format(attr(elem, "data-format"))

	if typ == TypeImage {
		if format == FormatSVG {
			inner, err := innerHTML(elem)
			if err != nil {
				return nil, err
			}
			return Tagged{Type: TypeImage, Format: FormatSVG, Content: inner}, nil
		}
		match := dataURIPattern.FindStringSubmatch(attr(elem, "src"))
		if match == nil {
			return nil, fmt.Errorf("%w: image source is not a base64 data uri", ErrMalformedPackage)
		}
		return Tagged{Type: TypeImage, Format: Format(match[1]), Content: match[2]}, nil
	}

	if format == "" {
		format = defaultFormat(typ)
	}
	var content string
	if format == FormatHTML {
		if content, err = innerHTML(elem); err != nil {
			return nil, err
		}
	} else {
		content = textContent(elem)
	}

	switch typ {
	case TypeDOM, TypeMath:
		return Tagged{Type: typ, Format: format, Content: content}, nil
	}
	return Unpack(Package{Type: typ, Format: format, Content: content})
}

func tagged(v any) (Tagged, bool) {
	switch t := v.(type) {
	case Tagged:
		return t, true
	case *Tagged:
		if t != nil {
			return *t, true
		}
	}
	return Tagged{}, false
}

func defaultFormat(typ Type) Format {
	switch typ {
	case TypeObject, TypeArray:
		return FormatJSON
	case TypeTable:
		return FormatCSV
	case TypeDOM:
		return FormatHTML
	case TypeMath:
		return FormatLaTeX
	}
	return FormatText
}

func findValueElement(nodes []*nethtml.Node) *nethtml.Node {
	for _, n := range nodes {
		if n.Type == nethtml.ElementNode && attr(n, "data-value") != "" {
			return n
		}
		var children []*nethtml.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		if found := findValueElement(children); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *nethtml.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func innerHTML(n *nethtml.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := nethtml.Render(&buf, c); err != nil {
			return "", fmt.Errorf("failed to render markup: %w", err)
		}
	}
	return buf.String(), nil
}

func textContent(n *nethtml.Node) string {
	var sb strings.Builder
	var walk func(*nethtml.Node)
	walk = func(n *nethtml.Node) {
		if n.Type == nethtml.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
