package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", IRObject{"b": Int(1), "a": Int(2)}, `{"a":2,"b":1}`},
		{"no html escaping", Str("<a&b>"), `"<a&b>"`},
		{"control chars", Str("a\nb\x01"), `"a\nb\u0001"`},
		{"line separator literal", Str("x\u2028y"), "\"x\u2028y\""},
		{"null", IRObject{"x": Null}, `{"x":null}`},
		{"plain go map", map[string]any{"z": []any{"a", int64(2)}, "y": true}, `{"y":true,"z":["a",2]}`},
		{"string slice", []string{"#a", ".b"}, `["#a",".b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute normalizes to the precomposed form.
	got, err := MarshalCanonical(Str("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_RejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"price": 1.5})
	assert.Error(t, err)
}
