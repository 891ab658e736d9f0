package value

import "strings"

// FromMime maps a MIME bundle entry onto a tagged value. Unrecognized MIME
// types are treated as plain text.
func FromMime(mimetype, content string) Tagged {
	switch {
	case mimetype == "image/svg+xml":
		return Tagged{Type: TypeImage, Format: FormatSVG, Content: content}
	case strings.HasPrefix(mimetype, "image/") && len(mimetype) > len("image/"):
		return Tagged{Type: TypeImage, Format: Format(strings.TrimPrefix(mimetype, "image/")), Content: content}
	case mimetype == "text/html":
		return Tagged{Type: TypeDOM, Format: FormatHTML, Content: content}
	case mimetype == "text/latex":
		content = strings.TrimPrefix(content, "$$")
		content = strings.TrimSuffix(content, "$$")
		return Tagged{Type: TypeMath, Format: FormatLaTeX, Content: content}
	}
	return Tagged{Type: TypeString, Format: FormatText, Content: content}
}

// ToMime renders a value as a MIME type and content pair.
func ToMime(v any) (mimetype string, content string, err error) {
	v = indirect(v)
	if t, ok := tagged(v); ok {
		if t.Type == TypeImage {
			return "image/" + string(t.Format), t.Content, nil
		}
		return "text/plain", t.Content, nil
	}
	p, err := Pack(v)
	if err != nil {
		return "", "", err
	}
	return "text/plain", p.Content, nil
}
