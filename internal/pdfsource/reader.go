// Package pdfsource makes the external document collaborators concrete: a
// text-layer reader, a page rasterizer and a text recognizer, composed into
// one cached source the extraction engine consumes.
package pdfsource

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/dokmap/dokmap/internal/extract"
)

const (
	// maxTextSize caps how much text is read from one document.
	maxTextSize = 10 * 1024 * 1024

	// DefaultMaxFileSize is the largest document accepted for processing.
	DefaultMaxFileSize = 100 * 1024 * 1024
)

// TextLayerReader extracts embedded text from PDFs, page by page. Pages
// without a text layer contribute nothing; the caller decides whether the
// remainder warrants image recognition.
type TextLayerReader struct {
	maxFileSize int64
}

// NewTextLayerReader creates a reader with a file size ceiling.
func NewTextLayerReader(maxFileSize int64) *TextLayerReader {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &TextLayerReader{maxFileSize: maxFileSize}
}

// Validate checks that path names a readable, structurally sound PDF within
// the size ceiling. Parsing is relaxed; only documents pdfcpu cannot open
// at all are rejected.
func (r *TextLayerReader) Validate(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return extract.NotFoundError(path)
	}
	if err != nil {
		return extract.UnreadableError(path, err)
	}
	if info.IsDir() {
		return extract.UnreadableError(path, fmt.Errorf("path is a directory"))
	}
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return extract.UnreadableError(path, fmt.Errorf("not a PDF file"))
	}
	if info.Size() > r.maxFileSize {
		return extract.UnreadableError(path, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), r.maxFileSize))
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return extract.UnreadableError(path, err)
	}
	return nil
}

// PageCount returns the number of pages in the document.
func (r *TextLayerReader) PageCount(path string) (int, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, extract.UnreadableError(path, err)
	}
	return count, nil
}

// Text reads the embedded text layer of every page. A page that fails to
// decode is skipped so one bad page cannot hide the rest of the document.
func (r *TextLayerReader) Text(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", extract.UnreadableError(path, err)
	}
	defer f.Close()

	var builder strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if builder.Len()+len(content) > maxTextSize {
			remaining := maxTextSize - builder.Len()
			if remaining > 0 {
				builder.WriteString(content[:remaining])
			}
			break
		}
		builder.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			builder.WriteString("\n")
		}
	}
	return builder.String(), nil
}
