// Package extract turns course files and pages into plain-text documents.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xhad/tutor/internal/models"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

var unsafeIDChars = regexp.MustCompile(`[^\p{L}\p{N}._]+`)

// SourceID derives a stable, file-name safe identifier from a path or URL.
func SourceID(location string) string {
	var name string
	if u, err := url.Parse(location); err == nil && u.Scheme != "" && u.Host != "" {
		name = u.Host + u.Path
	} else {
		name = filepath.Base(location)
	}

	id := unsafeIDChars.ReplaceAllString(strings.ToLower(name), "-")
	id = strings.Trim(id, "-.")
	if id == "" {
		return "document"
	}
	return id
}

// File extracts a document from a local file based on its extension.
func File(path, classID string) (models.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return PDFFile(path, classID)
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return models.Document{}, err
		}
		defer f.Close()
		doc, err := HTML(f, SourceID(path), classID)
		if err != nil {
			return models.Document{}, err
		}
		doc.Metadata["path"] = path
		return doc, nil
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return models.Document{}, err
		}
		id := SourceID(path)
		return models.Document{
			ID:       id,
			ClassID:  classID,
			Title:    id,
			Pages:    []models.Page{{Number: 1, Text: string(data)}},
			Metadata: map[string]interface{}{"type": "text", "path": path},
		}, nil
	}
	return models.Document{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}
