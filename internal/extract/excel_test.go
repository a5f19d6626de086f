package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/models"
)

func buildXlsx(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Product"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Units"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Widget"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 42))
	require.NoError(t, f.SetCellValue("Sheet1", "A3", "Gadget"))
	require.NoError(t, f.SetCellValue("Sheet1", "B3", 7))

	require.NoError(t, f.SetDocProps(&excelize.DocProperties{
		Title:   "Inventory",
		Creator: "ops",
	}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestExtractExcel(t *testing.T) {
	rc, err := New().Extract(context.Background(), buildXlsx(t), models.KindExcel)
	require.NoError(t, err)

	assert.Equal(t, models.KindExcel, rc.Kind)
	assert.Equal(t, 1, rc.Metadata.PageCount)
	assert.Equal(t, "Inventory", rc.Metadata.Title)
	assert.Equal(t, "ops", rc.Metadata.Author)

	require.Len(t, rc.Pages, 1)
	assert.Equal(t, []string{
		"Product Units",
		"Widget 42",
		"Gadget 7",
	}, rc.Pages[0].Lines)

	require.Len(t, rc.Tables, 1)
	require.Len(t, rc.Tables[0].Rows, 2)
	assert.Equal(t, "Widget", rc.Tables[0].Rows[0]["Product"])
	assert.Equal(t, "42", rc.Tables[0].Rows[0]["Units"])
	assert.Equal(t, "Gadget", rc.Tables[0].Rows[1]["Product"])
}

func TestExtractExcelCorrupt(t *testing.T) {
	_, err := New().Extract(context.Background(), []byte("not a workbook"), models.KindExcel)
	assert.ErrorIs(t, err, core.ErrCorruptDocument)
}

func TestTrimRow(t *testing.T) {
	assert.Equal(t, []string{"a", "", "b"}, trimRow([]string{" a ", "", "b", "", " "}))
	assert.Nil(t, trimRow([]string{"", "  ", ""}))
	assert.Nil(t, trimRow(nil))
}
