// Package extract turns receipt images and PDF documents into plain text with a
// confidence score in [0,1].
package extract

import (
	"context"
	"log/slog"
	"time"
)

const (
	MethodNone     = "none"
	MethodImageOCR = "image-ocr"
	MethodPDFText  = "pdf-text"

	// DefaultImageConfidence is used when the OCR engine reports no word confidences.
	DefaultImageConfidence = 0.85
	// PDFConfidence is assigned to every text-layer extraction; it is not measured.
	PDFConfidence = 0.75
)

// Result is the outcome of one extraction.
type Result struct {
	Text       string
	Confidence float64
	Pages      int
	Method     string
	Duration   time.Duration
}

// OCREngine recognizes text in an image. A confidence of 0 means "not reported".
type OCREngine interface {
	Recognize(ctx context.Context, img Image) (text string, confidence float64, err error)
}

// PDFReader reads the embedded text layer of a PDF.
type PDFReader interface {
	ReadText(ctx context.Context, doc PDF) (text string, pages int, err error)
}

// Recorder receives extraction outcomes. Implemented by pkg/metrics.
type Recorder interface {
	Extracted(method string, err error)
}

// Extractor dispatches a Document to the engine for its variant.
type Extractor struct {
	ocr    OCREngine
	pdf    PDFReader
	rec    Recorder
	logger *slog.Logger
}

// NewExtractor creates an extractor from its two engines.
func NewExtractor(ocr OCREngine, pdf PDFReader, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ocr: ocr, pdf: pdf, logger: logger}
}

// WithRecorder attaches a metrics recorder.
func (e *Extractor) WithRecorder(r Recorder) *Extractor {
	e.rec = r
	return e
}

// Extract returns the text of doc. Engine failures are wrapped in *ExtractionError
// and are not retried here.
func (e *Extractor) Extract(ctx context.Context, doc Document) (Result, error) {
	start := time.Now()

	var (
		res Result
		err error
	)
	switch d := doc.(type) {
	case Image:
		res, err = e.extractImage(ctx, d)
	case PDF:
		res, err = e.extractPDF(ctx, d)
	default:
		res = Result{Method: MethodNone}
		err = &ExtractionError{Method: MethodNone, Err: ErrUnsupportedMediaType}
	}
	res.Duration = time.Since(start)

	if e.rec != nil {
		e.rec.Extracted(res.Method, err)
	}
	if err != nil {
		e.logger.Warn("text extraction failed",
			slog.String("method", res.Method),
			slog.Int("bytes", len(doc.Bytes())),
			slog.Any("error", err),
		)
		return res, err
	}

	e.logger.Debug("text extracted",
		slog.String("method", res.Method),
		slog.Int("chars", len(res.Text)),
		slog.Float64("confidence", res.Confidence),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

func (e *Extractor) extractImage(ctx context.Context, img Image) (Result, error) {
	res := Result{Method: MethodImageOCR, Pages: 1}

	text, conf, err := e.ocr.Recognize(ctx, img)
	if err != nil {
		return res, &ExtractionError{Method: MethodImageOCR, Err: err}
	}
	if conf <= 0 {
		conf = DefaultImageConfidence
	}

	res.Text = Normalize(text)
	res.Confidence = min(conf, 1)
	return res, nil
}

func (e *Extractor) extractPDF(ctx context.Context, doc PDF) (Result, error) {
	res := Result{Method: MethodPDFText}

	text, pages, err := e.pdf.ReadText(ctx, doc)
	if err != nil {
		return res, &ExtractionError{Method: MethodPDFText, Err: err}
	}

	res.Text = Normalize(text)
	res.Pages = pages
	res.Confidence = PDFConfidence
	return res, nil
}
