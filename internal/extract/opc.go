package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/models"
)

// Word and Presentation files are OPC packages: a zip archive of XML
// parts. These helpers give the variants shared access to parts and to
// the docProps/core.xml metadata both formats carry.

func openPackage(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid package: %v", core.ErrCorruptDocument, err)
	}
	return zr, nil
}

func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("part %q not in package", name)
}

// readCoreProperties parses docProps/core.xml (Dublin Core fields).
// Missing part or fields is not an error: metadata is best effort.
func readCoreProperties(zr *zip.Reader) models.DocumentMetadata {
	var md models.DocumentMetadata
	raw, err := readPart(zr, "docProps/core.xml")
	if err != nil {
		return md
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	var field string
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			field = t.Name.Local
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch field {
			case "title":
				md.Title = text
			case "creator":
				md.Author = text
			case "created":
				md.CreatedAt = text
			case "modified":
				md.ModifiedAt = text
			}
		case xml.EndElement:
			field = ""
		}
	}
	return md
}
