// Package extract pulls plain text out of uploaded study material so it
// can be converted or turned into a quiz.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// Format is a supported document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatText Format = "text"
)

// MaxBytes caps the size of a document accepted for extraction.
const MaxBytes = 20 << 20

// Document is the text recovered from one file. Pages is only set for PDF.
type Document struct {
	Format Format `json:"format"`
	Pages  int    `json:"pages,omitempty"`
	Text   string `json:"text"`
}

// FormatOf picks a format from a file name's extension.
func FormatOf(name string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	case ".txt", ".md":
		return FormatText, nil
	default:
		return "", model.E(model.KindUnsupportedFormat, "extract", fmt.Errorf("extension %q", ext))
	}
}

// Extract reads the whole document from r. A document with no text fails
// with EmptyInput; one that cannot be parsed fails with UnreadableDocument.
func Extract(ctx context.Context, r io.ReaderAt, size int64, f Format) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if size > MaxBytes {
		return Document{}, model.E(model.KindUnreadableDocument, "extract", fmt.Errorf("document is %d bytes, limit %d", size, MaxBytes))
	}

	doc := Document{Format: f}
	var err error
	switch f {
	case FormatPDF:
		doc.Text, doc.Pages, err = readPDF(ctx, r, size)
	case FormatDOCX:
		doc.Text, err = readDOCX(ctx, r, size)
	case FormatText:
		doc.Text, err = readText(r, size)
	default:
		return Document{}, model.E(model.KindUnsupportedFormat, "extract", fmt.Errorf("format %q", f))
	}
	if err != nil {
		if ctx.Err() != nil {
			return Document{}, ctx.Err()
		}
		return Document{}, model.E(model.KindUnreadableDocument, "extract."+string(f), err)
	}

	doc.Text = strings.TrimSpace(doc.Text)
	if doc.Text == "" {
		return Document{}, model.E(model.KindEmptyInput, "extract."+string(f), nil)
	}
	return doc, nil
}

// File extracts the document at path, choosing the format by extension.
func File(ctx context.Context, path string) (Document, error) {
	f, err := FormatOf(path)
	if err != nil {
		return Document{}, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return Document{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return Extract(ctx, fh, info.Size(), f)
}

func readText(r io.ReaderAt, size int64) (string, error) {
	data, err := io.ReadAll(io.NewSectionReader(r, 0, size))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text is not valid UTF-8")
	}
	return string(data), nil
}
