package value

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPack(t *testing.T) {
	testCases := []struct {
		name string
		in   any
		want Package
	}{
		{"null", nil, Package{TypeNull, FormatText, "null"}},
		{"bool", false, Package{TypeBool, FormatText, "false"}},
		{"int", 42, Package{TypeInt, FormatText, "42"}},
		{"integral float", 6.0, Package{TypeInt, FormatText, "6"}},
		{"float", 3.5, Package{TypeFloat, FormatText, "3.5"}},
		{"positive infinity", math.Inf(1), Package{TypeFloat, FormatText, "Infinity"}},
		{"negative infinity", math.Inf(-1), Package{TypeFloat, FormatText, "-Infinity"}},
		{"nan", math.NaN(), Package{TypeFloat, FormatText, "NaN"}},
		{"max uint64", uint64(math.MaxUint64), Package{TypeInt, FormatText, "18446744073709551615"}},
		{"string", "a <b>", Package{TypeString, FormatText, "a <b>"}},
		{"object", map[string]any{"b": 2, "a": "x"}, Package{TypeObject, FormatJSON, `{"a":"x","b":2}`}},
		{"array", []any{1, "two", nil}, Package{TypeArray, FormatJSON, `[1,"two",null]`}},
		{
			"table",
			[]any{map[string]any{"a": 1, "b": "x"}, map[string]any{"a": 2.5, "b": "y,z"}},
			Package{TypeTable, FormatCSV, "a,b\n1,x\n2.5,\"y,z\"\n"},
		},
		{
			"image",
			Tagged{Type: TypeImage, Format: "png", Content: "iVBOR"},
			Package{TypeImage, FormatJSON, `{"type":"img","format":"png","content":"iVBOR"}`},
		},
		{"unknown", complex(1, 2), Package{TypeUnknown, FormatText, "(1+2i)"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Pack(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	values := []any{
		nil,
		true,
		false,
		int64(0),
		int64(-17),
		int64(9007199254740993),
		3.25,
		-0.001,
		"",
		"multi\nline \"quoted\"",
		map[string]any{},
		map[string]any{"a": int64(1), "nested": map[string]any{"b": []any{int64(1), 2.5, "c", nil, true}}},
		[]any{},
		[]any{int64(1), []any{int64(2)}, map[string]any{"a": int64(1)}},
	}

	for _, v := range values {
		pkg, err := Pack(v)
		require.NoError(t, err, "pack %#v", v)

		got, err := Unpack(pkg)
		require.NoError(t, err, "unpack %#v", pkg)
		if diff := cmp.Diff(v, got); diff != "" {
			t.Errorf("round trip mismatch for %#v (-want +got):\n%s", v, diff)
		}
	}
}

func TestUnpack_AcceptsJSONEncoding(t *testing.T) {
	got, err := Unpack(`{"type":"int","format":"text","content":"42"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	got, err = Unpack([]byte(`{"type":"arr","format":"json","content":"[1,2]"}`))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, got)

	got, err = Unpack(map[string]any{"type": "str", "format": "text", "content": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}

func TestUnpack_NonFiniteFloats(t *testing.T) {
	got, err := Unpack(Package{TypeFloat, FormatText, "Infinity"})
	require.NoError(t, err)
	assert.Equal(t, math.Inf(1), got)

	got, err = Unpack(Package{TypeFloat, FormatText, "-Infinity"})
	require.NoError(t, err)
	assert.Equal(t, math.Inf(-1), got)

	got, err = Unpack(Package{TypeFloat, FormatText, "NaN"})
	require.NoError(t, err)
	f, ok := got.(float64)
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))
}

func TestUnpack_IntOutsideInt64(t *testing.T) {
	pkg, err := Pack(uint64(math.MaxUint64))
	require.NoError(t, err)

	got, err := Unpack(pkg)
	require.NoError(t, err)
	assert.Equal(t, float64(math.MaxUint64), got)

	got, err = Unpack(Package{TypeInt, FormatText, "-1e30"})
	require.NoError(t, err)
	assert.Equal(t, -1e30, got)

	got, err = Unpack(Package{TypeInt, FormatText, "6.0"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)
}

func TestUnpack_StructuralErrors(t *testing.T) {
	testCases := []struct {
		name string
		in   any
	}{
		{"nil", nil},
		{"not json", "not a package"},
		{"json array", `[1,2]`},
		{"missing content", `{"type":"int","format":"text"}`},
		{"missing type", map[string]any{"format": "text", "content": "1"}},
		{"empty format", Package{Type: TypeInt, Content: "1"}},
		{"bad int", Package{Type: TypeInt, Format: FormatText, Content: "one"}},
		{"bad json", Package{Type: TypeObject, Format: FormatJSON, Content: "{"}},
		{"unsupported representation", 42},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unpack(tc.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPackage), "expected ErrMalformedPackage, got %v", err)
		})
	}
}

func TestUnpack_Tables(t *testing.T) {
	want := []any{
		map[string]any{"a": "1", "b": "x"},
		map[string]any{"a": "2", "b": "y"},
	}

	got, err := Unpack(Package{Type: TypeTable, Format: FormatCSV, Content: "a,b\n1,x\n2,y\n"})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = Unpack(Package{Type: TypeTable, Format: FormatTSV, Content: "a\tb\n1\tx\n2\ty\n"})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Unpack(Package{Type: TypeTable, Format: FormatJSON, Content: "[]"})
	var formatErr *UnsupportedFormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, FormatJSON, formatErr.Format)
}

func TestUnpack_TableFromPack(t *testing.T) {
	pkg, err := Pack([]map[string]any{{"name": "ada", "age": 36}})
	require.NoError(t, err)

	got, err := Unpack(pkg)
	require.NoError(t, err)
	assert.Equal(t, TypeTable, Classify(got))
	assert.Equal(t, []any{map[string]any{"age": "36", "name": "ada"}}, got)
}

func TestUnpack_UnknownTypeFallsBackToStructure(t *testing.T) {
	img := Tagged{Type: TypeImage, Format: "png", Content: "iVBOR"}
	pkg, err := Pack(img)
	require.NoError(t, err)

	got, err := Unpack(pkg)
	require.NoError(t, err)
	assert.Equal(t, img, got)

	got, err = Unpack(Package{Type: "custom", Format: FormatJSON, Content: `{"x":1}`})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": int64(1)}, got)
}
