package extract

import (
	"fmt"
	"mime"
	"strings"
)

const (
	MediaTypePDF = "application/pdf"
)

// Document is the tagged input to the extractor: either an Image or a PDF.
type Document interface {
	document()
	Bytes() []byte
}

// Image is a photographed or scanned receipt.
type Image struct {
	Data      []byte
	MediaType string
}

// PDF is a document with (possibly) an embedded text layer.
type PDF struct {
	Data []byte
}

func (Image) document() {}
func (PDF) document()   {}

func (i Image) Bytes() []byte { return i.Data }
func (p PDF) Bytes() []byte   { return p.Data }

// NewDocument classifies data by its declared media type.
// Parameters such as "; charset=binary" are ignored.
func NewDocument(data []byte, mediaType string) (Document, error) {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}

	switch {
	case mt == MediaTypePDF:
		return PDF{Data: data}, nil
	case strings.HasPrefix(mt, "image/"):
		return Image{Data: data, MediaType: mt}, nil
	default:
		return nil, &ExtractionError{
			Method: MethodNone,
			Err:    fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mediaType),
		}
	}
}
