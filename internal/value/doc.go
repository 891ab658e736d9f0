// Package value implements the value codec shared by every execution context.
//
// Values live in two representations. Inside a Go process they are native
// values: nil, bool, int64, float64, string, map[string]any, []any,
// []map[string]any and Tagged for values that carry their own type marker
// (images, markup, math). Across a runtime boundary they travel as a Package,
// the three-field {type, format, content} record, either as a structure or as
// its JSON encoding.
//
// The package also adapts values to and from embeddable markup fragments and
// MIME bundles at the document boundary, and bridges native values to
// cty.Value for the HCL-based native context.
package value
