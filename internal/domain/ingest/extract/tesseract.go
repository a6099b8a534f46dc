package extract

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// TesseractConfig locates the tesseract binary and tunes recognition.
type TesseractConfig struct {
	Binary   string // default "tesseract"
	Language string // default "eng"
	PSM      int    // page segmentation mode, 0 keeps tesseract's default
}

// Tesseract is an OCREngine backed by the tesseract CLI. The image is piped on
// stdin and a single TSV run yields both the text and per-word confidences.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

// NewTesseract creates the engine. A nil runner uses ExecRunner.
func NewTesseract(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

// Recognize implements OCREngine. Confidence is the mean word confidence in [0,1],
// or 0 when tesseract reported none.
func (t *Tesseract) Recognize(ctx context.Context, img Image) (string, float64, error) {
	if len(img.Data) == 0 {
		return "", 0, fmt.Errorf("empty image")
	}

	// tesseract stdin stdout -l <lang> [--psm N] tsv
	args := []string{"stdin", "stdout", "-l", t.cfg.Language}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, bytes.NewReader(img.Data), t.cfg.Binary, args...)
	if err != nil {
		return "", 0, fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	text, conf := parseTSV(string(out))
	return text, conf, nil
}

// parseTSV rebuilds line-broken text from tesseract TSV output and averages
// the word confidences. Columns: level page block par line word left top
// width height conf text.
func parseTSV(tsv string) (string, float64) {
	type lineKey struct{ page, block, par, line string }

	var (
		b        strings.Builder
		prev     lineKey
		havePrev bool
		sum, n   float64
	)

	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}

		key := lineKey{cols[1], cols[2], cols[3], cols[4]}
		switch {
		case !havePrev:
		case key != prev:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(word)
		prev, havePrev = key, true

		if v, err := strconv.ParseFloat(cols[10], 64); err == nil && v >= 0 {
			sum += v
			n++
		}
	}

	if n == 0 {
		return b.String(), 0
	}
	return b.String(), sum / n / 100
}
