package fieldclass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnumLabelsForOverlap(t *testing.T) {
	e := &Enum{Ranges: []EnumRange{
		{Label: "A", Lower: 0, Upper: 0},
		{Label: "B", Lower: 1, Upper: 3},
		{Label: "overlap", Lower: 2, Upper: 2},
		{Label: "C", Lower: 5, Upper: 5},
	}}
	require.Equal(t, []string{"A"}, e.LabelsFor(0))
	require.Equal(t, []string{"B", "overlap"}, e.LabelsFor(2))
	require.Nil(t, e.LabelsFor(4))
}

func TestVariantSelectOptionNoMatch(t *testing.T) {
	v := &Variant{Ranges: []VariantRange{
		{Lower: 0, Upper: 0, OptionIndex: 0},
		{Lower: 1, Upper: 3, OptionIndex: 1},
		{Lower: 5, Upper: 5, OptionIndex: 2},
	}}
	require.Equal(t, 0, v.SelectOption(0))
	require.Equal(t, 1, v.SelectOption(2))
	require.Equal(t, 2, v.SelectOption(5))
	require.Equal(t, -1, v.SelectOption(4))
}

func TestStructIndexOfStripsUnderscore(t *testing.T) {
	s := &Struct{Members: []Member{
		{Name: "_reserved"},
		{Name: "len"},
	}}
	require.Equal(t, 0, s.IndexOf("reserved"))
	require.Equal(t, 1, s.IndexOf("_len"))
	require.Equal(t, -1, s.IndexOf("missing"))
}

func TestStoredValuesResetClears(t *testing.T) {
	sv := NewStoredValues(3)
	sv.Store(1, 42)
	v, ok := sv.Get(1)
	require.True(t, ok)
	require.Equal(t, int64(42), v)

	sv.Reset()
	_, ok = sv.Get(1)
	require.False(t, ok)
}
