package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablesFromCellsAcceptsTwoRowTable(t *testing.T) {
	rows := [][]string{
		{"Name", "Amount"},
		{"Widgets", "42"},
	}

	tables := tablesFromCells(rows)

	require.Len(t, tables, 1)
	require.Len(t, tables[0].Rows, 1)
	assert.Equal(t, "Widgets", tables[0].Rows[0]["Name"])
	assert.Equal(t, "42", tables[0].Rows[0]["Amount"])
}

func TestTablesFromCellsSkipsSingleRow(t *testing.T) {
	rows := [][]string{
		{"Name", "Amount"},
		{"a lone prose line"},
	}

	assert.Empty(t, tablesFromCells(rows))
}

func TestTablesFromCellsSplitsOnCellCountChange(t *testing.T) {
	rows := [][]string{
		{"A", "B"},
		{"1", "2"},
		{"A", "B", "C"},
		{"1", "2", "3"},
	}

	tables := tablesFromCells(rows)

	require.Len(t, tables, 2)
	assert.Len(t, tables[0].Rows, 1)
	assert.Equal(t, "3", tables[1].Rows[0]["C"])
}
