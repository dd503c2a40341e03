package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{
		"a":  IRInt(1),
		"A":  IRInt(2),
		"aa": IRInt(3),
		"aA": IRInt(4),
		"Aa": IRInt(5),
		"AA": IRInt(6),
	}

	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b IRValue
		want bool
	}{
		{"same string", Str("x"), Str("x"), true},
		{"different kinds", Str("1"), Int(1), false},
		{"nil is null", nil, Null, true},
		{"null vs string", Null, Str(""), false},
		{"arrays", Array(Int(1), Str("a")), Array(Int(1), Str("a")), true},
		{"array order matters", Array(Int(1), Int(2)), Array(Int(2), Int(1)), false},
		{"objects", IRObject{"a": Int(1)}, IRObject{"a": Int(1)}, true},
		{"object extra key", IRObject{"a": Int(1)}, IRObject{"a": Int(1), "b": Null}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestCompare(t *testing.T) {
	cmp, ok := Compare(Int(18), Int(17))
	require.True(t, ok)
	assert.Equal(t, 1, cmp)

	cmp, ok = Compare(Str("a"), Str("b"))
	require.True(t, ok)
	assert.Equal(t, -1, cmp)

	_, ok = Compare(Str("1"), Int(1))
	assert.False(t, ok, "mixed kinds are not comparable")

	_, ok = Compare(Null, Int(1))
	assert.False(t, ok)
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"name":  "cart",
		"count": 3,
		"tags":  []any{"a", true, nil},
		"whole": float64(20),
	})
	require.NoError(t, err)

	assert.True(t, Equal(IRObject{
		"name":  Str("cart"),
		"count": Int(3),
		"tags":  Array(Str("a"), Bool(true), Null),
		"whole": Int(20),
	}, v))

	_, err = FromGo(3.5)
	assert.Error(t, err, "fractional floats are rejected")
}

func TestUnmarshalIRValue_RejectsFloats(t *testing.T) {
	_, err := UnmarshalIRValue([]byte(`{"price": 9.99}`))
	assert.Error(t, err)

	v, err := UnmarshalIRValue([]byte(`{"age": 18, "gone": null}`))
	require.NoError(t, err)
	assert.True(t, Equal(IRObject{"age": Int(18), "gone": Null}, v))
}

func TestIRObjectMarshalJSON_SortedKeys(t *testing.T) {
	data, err := json.Marshal(IRObject{"b": Int(2), "a": Str("x")})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":2}`, string(data))
}

func TestString(t *testing.T) {
	assert.Equal(t, "plain", String(Str("plain")))
	assert.Equal(t, "18", String(Int(18)))
	assert.Equal(t, "null", String(nil))
	assert.Equal(t, `["a",1]`, String(Array(Str("a"), Int(1))))
}
