package value

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
)

// tableRows returns the records of a value already classified as a table.
func tableRows(v any) []map[string]any {
	switch rows := v.(type) {
	case []map[string]any:
		return rows
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			out = append(out, row.(map[string]any))
		}
		return out
	}
	return nil
}

// formatTable serializes records with a header row built from the union of
// their keys, sorted. The result ends with a newline.
func formatTable(rows []map[string]any, comma rune) (string, error) {
	seen := make(map[string]struct{})
	var header []string
	for _, row := range rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				header = append(header, k)
			}
		}
	}
	sort.Strings(header)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma
	if err := w.Write(header); err != nil {
		return "", err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, k := range header {
			cell, err := formatCell(row[k])
			if err != nil {
				return "", fmt.Errorf("column %q: %w", k, err)
			}
			record[i] = cell
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatCell(v any) (string, error) {
	v = indirect(v)
	switch Classify(v) {
	case TypeNull:
		return "", nil
	case TypeString:
		return v.(string), nil
	case TypeBool, TypeInt, TypeFloat, TypeUnknown:
		p, err := Pack(v)
		return p.Content, err
	}
	return marshalJSON(v)
}

// parseTable parses delimited text into records keyed by the header row.
// Every field is kept as a string.
func parseTable(content string, comma rune) (any, error) {
	r := csv.NewReader(strings.NewReader(content))
	r.Comma = comma
	r.FieldsPerRecord = -1
	if comma == '\t' {
		r.LazyQuotes = true
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid table content: %v", ErrMalformedPackage, err)
	}
	rows := make([]any, 0)
	if len(records) == 0 {
		return rows, nil
	}
	header := records[0]
	for _, record := range records[1:] {
		row := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
