package convert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInferColumnTypes(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		{"1", "1.5", "1", "", "7"},
		{"2", "2", "a", "", "x"},
		{"3", "3.25", "3", "", "9"},
	}
	types := inferColumnTypes(rows, 5)

	require.Equal(t, TypeInt, types[0], "all ints")
	require.Equal(t, TypeFloat, types[1], "mixed ints and floats")
	require.Equal(t, TypeString, types[2], "any non-numeric forces string")
	require.Equal(t, TypeString, types[3], "all-empty column stays string")
	require.Equal(t, TypeString, types[4])
}

func TestInferIgnoresEmptyCells(t *testing.T) {
	t.Parallel()

	rows := [][]string{{"1"}, {""}, {" "}, {"3"}}
	types := inferColumnTypes(rows, 1)
	require.Equal(t, TypeInt, types[0])
}

func TestInferHandlesShortRows(t *testing.T) {
	t.Parallel()

	rows := [][]string{{"1", "2"}, {"3"}}
	types := inferColumnTypes(rows, 2)
	require.Equal(t, TypeInt, types[0])
	require.Equal(t, TypeInt, types[1])
}

func TestCoerceValue(t *testing.T) {
	t.Parallel()

	require.Nil(t, coerceValue("", TypeInt))
	require.Nil(t, coerceValue("   ", TypeString))
	require.Equal(t, int64(42), coerceValue("42", TypeInt))
	require.Equal(t, 1.5, coerceValue("1.5", TypeFloat))
	require.Equal(t, float64(2), coerceValue("2", TypeFloat))
	require.Equal(t, "n/a", coerceValue("n/a", TypeInt), "unparseable cell falls back to raw string")
	require.Equal(t, "YFT", coerceValue("YFT", TypeString))
}
