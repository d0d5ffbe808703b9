package extract

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/xhad/tutor/internal/models"
)

// PDFFile extracts the plain text of every page of the PDF at path.
func PDFFile(path, classID string) (models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Document{}, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return models.Document{}, err
	}

	doc, err := PDF(f, stat.Size(), SourceID(path), classID)
	if err != nil {
		return models.Document{}, err
	}
	doc.Metadata["path"] = path
	return doc, nil
}

// PDF reads size bytes of PDF data from r. Pages keep their 1-based number
// even when they carry no text.
func PDF(r io.ReaderAt, size int64, sourceID, classID string) (models.Document, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to open PDF %s: %w", sourceID, err)
	}

	doc := models.Document{
		ID:      sourceID,
		ClassID: classID,
		Title:   sourceID,
		Metadata: map[string]interface{}{
			"type": "pdf",
		},
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return models.Document{}, fmt.Errorf("failed to read page %d of %s: %w", i, sourceID, err)
		}
		doc.Pages = append(doc.Pages, models.Page{Number: i, Text: strings.TrimSpace(text)})
	}
	doc.Metadata["pages"] = numPages

	return doc, nil
}
