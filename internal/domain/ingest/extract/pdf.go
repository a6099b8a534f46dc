package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextLayerReader reads embedded PDF text with ledongthuc/pdf.
type TextLayerReader struct{}

// ReadText implements PDFReader. Pages whose content cannot be decoded are skipped;
// a document that cannot be opened at all is an error.
func (TextLayerReader) ReadText(ctx context.Context, doc PDF) (text string, pages int, err error) {
	if len(doc.Data) == 0 {
		return "", 0, fmt.Errorf("empty pdf")
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return "", 0, fmt.Errorf("could not read pdf: %w", err)
	}

	var sb strings.Builder
	pages = r.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pt, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(pt)
		sb.WriteString("\n")
	}

	return sb.String(), pages, nil
}
