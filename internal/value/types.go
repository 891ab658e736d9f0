package value

// Type is the type code of a value.
type Type string

const (
	TypeNull    Type = "null"
	TypeBool    Type = "bool"
	TypeInt     Type = "int"
	TypeFloat   Type = "flt"
	TypeString  Type = "str"
	TypeObject  Type = "obj"
	TypeArray   Type = "arr"
	TypeTable   Type = "tab"
	TypeImage   Type = "img"
	TypeDOM     Type = "dom"
	TypeMath    Type = "math"
	TypeUnknown Type = "unk"
)

// Format identifies how a package's content is serialized.
type Format string

const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatTSV    Format = "tsv"
	FormatSVG    Format = "svg"
	FormatBase64 Format = "base64"
	FormatHTML   Format = "html"
	FormatLaTeX  Format = "latex"
)

// Package is the wire representation of a value. It is the only artifact
// that crosses a runtime boundary.
type Package struct {
	Type    Type   `json:"type"`
	Format  Format `json:"format"`
	Content string `json:"content"`
}

// Fields returns the package as a generic map, the shape used by transports
// that serialize loosely typed payloads.
func (p Package) Fields() map[string]any {
	return map[string]any{
		"type":    string(p.Type),
		"format":  string(p.Format),
		"content": p.Content,
	}
}

// Tagged is a native value that reports its own type, such as an image or a
// markup fragment. Content is already serialized in Format.
type Tagged struct {
	Type    Type   `json:"type"`
	Format  Format `json:"format"`
	Content string `json:"content"`
}
