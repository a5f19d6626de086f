package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/models"
)

const slide1XML = `<?xml version="1.0" encoding="UTF-8"?>
<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"
       xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <p:cSld><p:spTree>
    <p:sp><p:txBody>
      <a:p><a:r><a:t>Quarterly Results</a:t></a:r></a:p>
      <a:p><a:r><a:t>Revenue is up </a:t></a:r><a:r><a:t>across regions.</a:t></a:r></a:p>
    </p:txBody></p:sp>
  </p:spTree></p:cSld>
</p:sld>`

const slide2XML = `<?xml version="1.0" encoding="UTF-8"?>
<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"
       xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <p:cSld><p:spTree>
    <p:sp><p:txBody>
      <a:p><a:r><a:t>Key metrics</a:t></a:r></a:p>
    </p:txBody></p:sp>
    <p:graphicFrame><a:graphic><a:graphicData>
      <a:tbl>
        <a:tr>
          <a:tc><a:txBody><a:p><a:r><a:t>Metric</a:t></a:r></a:p></a:txBody></a:tc>
          <a:tc><a:txBody><a:p><a:r><a:t>Value</a:t></a:r></a:p></a:txBody></a:tc>
        </a:tr>
        <a:tr>
          <a:tc><a:txBody><a:p><a:r><a:t>Revenue</a:t></a:r></a:p></a:txBody></a:tc>
          <a:tc><a:txBody><a:p><a:r><a:t>10</a:t></a:r></a:p></a:txBody></a:tc>
        </a:tr>
      </a:tbl>
    </a:graphicData></a:graphic></p:graphicFrame>
  </p:spTree></p:cSld>
</p:sld>`

func TestExtractPresentation(t *testing.T) {
	data := buildPackage(t, map[string]string{
		// Out-of-order part names still land in slide order.
		"ppt/slides/slide2.xml": slide2XML,
		"ppt/slides/slide1.xml": slide1XML,
		"docProps/core.xml":     corePropsXML,
	})

	rc, err := New().Extract(context.Background(), data, models.KindPresentation)
	require.NoError(t, err)

	assert.Equal(t, models.KindPresentation, rc.Kind)
	assert.Equal(t, 2, rc.Metadata.PageCount)
	assert.Equal(t, "Fixture Title", rc.Metadata.Title)

	require.Len(t, rc.Pages, 2)
	assert.Equal(t, []string{
		"Quarterly Results",
		"Revenue is up across regions.",
	}, rc.Pages[0].Lines)
	assert.Equal(t, []string{"Key metrics"}, rc.Pages[1].Lines)

	require.Len(t, rc.Tables, 1)
	require.Len(t, rc.Tables[0].Rows, 1)
	assert.Equal(t, "Revenue", rc.Tables[0].Rows[0]["Metric"])
	assert.Equal(t, "10", rc.Tables[0].Rows[0]["Value"])
}

func TestExtractPresentationNoSlides(t *testing.T) {
	data := buildPackage(t, map[string]string{"docProps/core.xml": corePropsXML})
	_, err := New().Extract(context.Background(), data, models.KindPresentation)
	assert.ErrorIs(t, err, core.ErrCorruptDocument)
}

func TestExtractPresentationSkipsBrokenSlide(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"ppt/slides/slide1.xml": slide1XML,
		"ppt/slides/slide2.xml": "<p:sld><unclosed",
	})

	rc, err := New().Extract(context.Background(), data, models.KindPresentation)
	require.NoError(t, err)
	assert.Len(t, rc.Pages, 1)
	assert.Equal(t, 1, rc.Metadata.SkippedPages)
}
