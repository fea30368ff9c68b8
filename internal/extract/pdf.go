package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// readPDF returns the text of every page, pages separated by a blank line.
// The parser panics on some malformed files, so panics become errors.
func readPDF(ctx context.Context, r io.ReaderAt, size int64) (text string, pages int, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, pages, err = "", 0, fmt.Errorf("parse pdf: %v", p)
		}
	}()

	rd, err := pdf.NewReader(r, size)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	pages = rd.NumPage()
	fonts := make(map[string]*pdf.Font)
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		p := rd.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		pt, err := p.GetPlainText(fonts)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(strings.TrimSpace(pt))
		b.WriteString("\n\n")
	}
	return b.String(), pages, nil
}
