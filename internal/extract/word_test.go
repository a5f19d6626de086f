package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/models"
)

const docxDocumentXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph of the minutes.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph follows.</w:t></w:r></w:p>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Name</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>Role</w:t></w:r></w:p></w:tc>
      </w:tr>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Ana</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>Chair</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
  </w:body>
</w:document>`

const docxContentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
  <Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>
</Types>`

func buildDocx(t *testing.T) []byte {
	t.Helper()
	return buildPackage(t, map[string]string{
		"[Content_Types].xml": docxContentTypesXML,
		"word/document.xml":   docxDocumentXML,
		"docProps/core.xml":   corePropsXML,
	})
}

func TestExtractWord(t *testing.T) {
	rc, err := New().Extract(context.Background(), buildDocx(t), models.KindWord)
	require.NoError(t, err)

	assert.Equal(t, models.KindWord, rc.Kind)
	require.Len(t, rc.Pages, 1)
	body := strings.Join(rc.Pages[0].Lines, " ")
	assert.Contains(t, body, "First paragraph of the minutes.")
	assert.Contains(t, body, "Second paragraph follows.")

	assert.Equal(t, "Fixture Title", rc.Metadata.Title)
	assert.Equal(t, "Fixture Author", rc.Metadata.Author)
	assert.Equal(t, 1, rc.Metadata.PageCount)

	require.Len(t, rc.Tables, 1)
	require.Len(t, rc.Tables[0].Rows, 1)
	assert.Equal(t, "Ana", rc.Tables[0].Rows[0]["Name"])
	assert.Equal(t, "Chair", rc.Tables[0].Rows[0]["Role"])
}

func TestExtractWordCorrupt(t *testing.T) {
	_, err := New().Extract(context.Background(), []byte("not a docx"), models.KindWord)
	assert.ErrorIs(t, err, core.ErrCorruptDocument)
}

func TestParseDocxTablesSkipsSingleRowGrids(t *testing.T) {
	const oneRow = `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:tbl>
      <w:tr><w:tc><w:p><w:r><w:t>Only</w:t></w:r></w:p></w:tc></w:tr>
    </w:tbl>
  </w:body>
</w:document>`
	data := buildPackage(t, map[string]string{"word/document.xml": oneRow})
	zr, err := openPackage(data)
	require.NoError(t, err)

	tables, err := parseDocxTables(zr)
	require.NoError(t, err)
	assert.Empty(t, tables)
}
