package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Pack serializes a native value into a package.
func Pack(v any) (Package, error) {
	v = indirect(v)
	typ := Classify(v)
	switch typ {
	case TypeNull:
		return Package{Type: typ, Format: FormatText, Content: "null"}, nil
	case TypeBool:
		return Package{Type: typ, Format: FormatText, Content: strconv.FormatBool(v.(bool))}, nil
	case TypeInt, TypeFloat:
		return Package{Type: typ, Format: FormatText, Content: formatNumber(v)}, nil
	case TypeString:
		return Package{Type: typ, Format: FormatText, Content: v.(string)}, nil
	case TypeObject, TypeArray:
		content, err := marshalJSON(v)
		if err != nil {
			return Package{}, fmt.Errorf("failed to pack %s value: %w", typ, err)
		}
		return Package{Type: typ, Format: FormatJSON, Content: content}, nil
	case TypeTable:
		content, err := formatTable(tableRows(v), ',')
		if err != nil {
			return Package{}, fmt.Errorf("failed to pack table: %w", err)
		}
		return Package{Type: typ, Format: FormatCSV, Content: content}, nil
	case TypeUnknown:
		return Package{Type: typ, Format: FormatText, Content: fmt.Sprint(v)}, nil
	}

	// Tagged values (images, markup, math) travel as their JSON structure.
	content, err := marshalJSON(v)
	if err != nil {
		return Package{}, fmt.Errorf("failed to pack %s value: %w", typ, err)
	}
	return Package{Type: typ, Format: FormatJSON, Content: content}, nil
}

// Unpack decodes a package into a native value. It accepts a Package, a
// *Package, a generic map with the three package fields, or the JSON encoding
// of a package as a string or byte slice.
func Unpack(pkg any) (any, error) {
	p, err := toPackage(pkg)
	if err != nil {
		return nil, err
	}

	switch p.Type {
	case TypeNull:
		return nil, nil
	case TypeBool:
		return p.Content == "true", nil
	case TypeInt:
		if i, err := strconv.ParseInt(p.Content, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(p.Content, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid int content %q", ErrMalformedPackage, p.Content)
		}
		// float64(math.MaxInt64) is 2^63, itself out of range.
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return f, nil
		}
		return int64(f), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(p.Content, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid flt content %q", ErrMalformedPackage, p.Content)
		}
		return f, nil
	case TypeString:
		return p.Content, nil
	case TypeObject, TypeArray:
		v, err := decodeJSON(p.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %s content is not valid json: %v", ErrMalformedPackage, p.Type, err)
		}
		return v, nil
	case TypeTable:
		switch p.Format {
		case FormatCSV:
			return parseTable(p.Content, ',')
		case FormatTSV:
			return parseTable(p.Content, '\t')
		default:
			return nil, &UnsupportedFormatError{Type: p.Type, Format: p.Format}
		}
	}

	v, err := decodeJSON(p.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s content is not valid json: %v", ErrMalformedPackage, p.Type, err)
	}
	if t, ok := asTagged(v); ok {
		return t, nil
	}
	return v, nil
}

// indirect dereferences pointers to plain values so that the type switches
// below see the pointed-to value. Tagged pointers are kept as they are.
func indirect(v any) any {
	if _, ok := v.(*Tagged); ok {
		return v
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

// toPackage normalizes the accepted package shapes into a Package.
func toPackage(pkg any) (Package, error) {
	switch p := pkg.(type) {
	case Package:
		return p, validate(p.Type, p.Format)
	case *Package:
		if p == nil {
			return Package{}, fmt.Errorf("%w: package is nil", ErrMalformedPackage)
		}
		return *p, validate(p.Type, p.Format)
	case string:
		return decodePackage([]byte(p))
	case []byte:
		return decodePackage(p)
	case map[string]any:
		return packageFromFields(p)
	case nil:
		return Package{}, fmt.Errorf("%w: package is nil", ErrMalformedPackage)
	default:
		return Package{}, fmt.Errorf("%w: unsupported package representation %T", ErrMalformedPackage, pkg)
	}
}

func decodePackage(data []byte) (Package, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Package{}, fmt.Errorf("%w: package should be a json object: %v", ErrMalformedPackage, err)
	}
	return packageFromFields(fields)
}

func packageFromFields(fields map[string]any) (Package, error) {
	typ, typOK := fields["type"].(string)
	format, formatOK := fields["format"].(string)
	content, contentOK := fields["content"].(string)
	if !typOK || !formatOK || !contentOK {
		return Package{}, fmt.Errorf("%w: package should have string fields `type`, `format`, `content`", ErrMalformedPackage)
	}
	p := Package{Type: Type(typ), Format: Format(format), Content: content}
	return p, validate(p.Type, p.Format)
}

func validate(typ Type, format Format) error {
	if typ == "" || format == "" {
		return fmt.Errorf("%w: package should have fields `type`, `format`, `content`", ErrMalformedPackage)
	}
	return nil
}

// asTagged recognizes the structural form of a tagged value.
func asTagged(v any) (Tagged, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 3 {
		return Tagged{}, false
	}
	typ, ok1 := m["type"].(string)
	format, ok2 := m["format"].(string)
	content, ok3 := m["content"].(string)
	if !ok1 || !ok2 || !ok3 {
		return Tagged{}, false
	}
	return Tagged{Type: Type(typ), Format: Format(format), Content: content}, true
}

// formatNumber renders a number the way the wire format expects: integral
// values without a fraction, others in the shortest round-tripping form.
func formatNumber(v any) string {
	switch n := v.(type) {
	case float64:
		return formatFloat(n)
	case float32:
		return formatFloat(float64(n))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// decodeJSON parses JSON keeping integral numbers as int64 so that values
// survive a pack/unpack round trip with their classification intact.
func decodeJSON(content string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected trailing data")
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	}
	return v
}
