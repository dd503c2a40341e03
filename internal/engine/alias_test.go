package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagehand/internal/ir"
)

func testAliases(t *testing.T) *AliasManager {
	t.Helper()
	a, err := NewAliasManager(map[string][]ir.ConditionSet{
		"Alias 1": {{"attr1": oneOf("value1"), "attr2": oneOf("value2")}},
		"Alias 2": {{"attr1": oneOf("value2")}},
		"Alias 3": {
			{"attr3": oneOf("value3")},
			{"attr3": oneOf("value4")},
		},
		"Alias 4": {
			{"attr4": oneOf("value5")},
			{"attr4": oneOf("value6")},
		},
	})
	require.NoError(t, err)
	return a
}

func TestAliasManager_Get(t *testing.T) {
	a := testAliases(t)

	sets, ok := a.Get("Alias 3")
	require.True(t, ok)
	assert.Len(t, sets, 2)

	_, ok = a.Get("Alias 9")
	assert.False(t, ok, "unknown aliases resolve to nothing")
}

func TestAliasManager_CombineRightOverrides(t *testing.T) {
	a := testAliases(t)

	sets, ok := a.Get("Alias 1 + Alias 2")
	require.True(t, ok)
	require.Len(t, sets, 1)
	assert.Equal(t, ir.ConditionSet{"attr1": oneOf("value2"), "attr2": oneOf("value2")}, sets[0])
}

func TestAliasManager_CombineCrossProduct(t *testing.T) {
	a := testAliases(t)

	// One alternative times two alternatives yields two sets.
	sets, ok := a.Get("Alias 2 + Alias 3")
	require.True(t, ok)
	assert.Equal(t, []ir.ConditionSet{
		{"attr1": oneOf("value2"), "attr3": oneOf("value3")},
		{"attr1": oneOf("value2"), "attr3": oneOf("value4")},
	}, sets)

	sets, ok = a.Get("Alias 2 + Alias 3 + Alias 4")
	require.True(t, ok)
	assert.Equal(t, []ir.ConditionSet{
		{"attr1": oneOf("value2"), "attr3": oneOf("value3"), "attr4": oneOf("value5")},
		{"attr1": oneOf("value2"), "attr3": oneOf("value3"), "attr4": oneOf("value6")},
		{"attr1": oneOf("value2"), "attr3": oneOf("value4"), "attr4": oneOf("value5")},
		{"attr1": oneOf("value2"), "attr3": oneOf("value4"), "attr4": oneOf("value6")},
	}, sets)
}

func TestAliasManager_CombineDeduplicates(t *testing.T) {
	a := testAliases(t)

	sets, ok := a.Get("Alias 2 + Alias 2")
	require.True(t, ok)
	assert.Len(t, sets, 1)
}

func TestAliasManager_CombineWithUnknownPart(t *testing.T) {
	a := testAliases(t)

	_, ok := a.Get("Alias 1 + Nope")
	assert.False(t, ok)
}

func TestAliasManager_Immutable(t *testing.T) {
	defs := map[string][]ir.ConditionSet{"a": {{"x": oneOf("1")}}}
	a, err := NewAliasManager(defs)
	require.NoError(t, err)

	defs["a"][0]["x"] = oneOf("2")
	sets, _ := a.Get("a")
	assert.Equal(t, oneOf("1"), sets[0]["x"], "construction copies definitions")
}

func TestNewAliasManager_Rejects(t *testing.T) {
	_, err := NewAliasManager(map[string][]ir.ConditionSet{"a + b": {{}}})
	assert.ErrorIs(t, err, ErrInvalidDeclaration)

	_, err = NewAliasManager(map[string][]ir.ConditionSet{"a": {{"x": nil}}})
	assert.ErrorIs(t, err, ErrInvalidDeclaration)
}

func TestAliasManager_Names(t *testing.T) {
	a := testAliases(t)
	assert.Equal(t, []string{"Alias 1", "Alias 2", "Alias 3", "Alias 4"}, a.Names())
	assert.Len(t, a.Definitions(), 6)
}
