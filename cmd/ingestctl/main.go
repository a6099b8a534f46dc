// Command ingestctl runs the extraction and parsing stages on local files,
// without a database or job queue.
//
//	ingestctl extract <file>
//	ingestctl receipt <file>
//	ingestctl statement [-format text|csv|xlsx] [-o out] <file>
//	ingestctl token [-ttl 1h] <user-id>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/extract"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/normalizer"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/parser"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/config"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/interceptors"
)

var errUsage = errors.New("usage: ingestctl extract|receipt|statement|token [flags] <arg>")

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if err := run(context.Background(), os.Args[1:], os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "extract":
		return runExtract(ctx, args, stdout, logger)
	case "receipt":
		return runReceipt(ctx, args, stdout, logger)
	case "statement":
		return runStatement(ctx, args, stdout, logger)
	case "token":
		return runToken(args, stdout)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func newExtractor(logger *slog.Logger) *extract.Extractor {
	ocr := extract.NewTesseract(extract.TesseractConfig{
		Binary:   os.Getenv("TESSERACT_PATH"),
		Language: os.Getenv("TESSERACT_LANG"),
	}, extract.ExecRunner{Logger: logger})
	return extract.NewExtractor(ocr, extract.TextLayerReader{}, logger)
}

func extractFile(ctx context.Context, path string, logger *slog.Logger) (extract.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extract.Result{}, err
	}
	doc, err := extract.NewDocument(data, http.DetectContentType(data))
	if err != nil {
		return extract.Result{}, err
	}
	return newExtractor(logger).Extract(ctx, doc)
}

func singleArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", errUsage
	}
	return fs.Arg(0), nil
}

func runExtract(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	path, err := singleArg(flag.NewFlagSet("extract", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	res, err := extractFile(ctx, path, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "# method=%s pages=%d confidence=%.2f duration=%s\n",
		res.Method, res.Pages, res.Confidence, res.Duration.Round(time.Millisecond))
	fmt.Fprintln(stdout, res.Text)
	return nil
}

func runReceipt(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	path, err := singleArg(flag.NewFlagSet("receipt", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	res, err := extractFile(ctx, path, logger)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(parser.New().ParseReceipt(res.Text))
}

func runStatement(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("statement", flag.ContinueOnError)
	format := fs.String("format", "text", "output format: text, csv or xlsx")
	out := fs.String("o", "", "output file (default stdout)")
	path, err := singleArg(fs, args)
	if err != nil {
		return err
	}
	if !slices.Contains([]string{"text", "csv", "xlsx"}, *format) {
		return fmt.Errorf("unknown format %q", *format)
	}

	res, err := extractFile(ctx, path, logger)
	if err != nil {
		return err
	}
	rows := toExportRows(slices.Collect(parser.New().ParseStatement(res.Text)), normalizer.NewMerchantNormalizer())

	w := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	switch *format {
	case "csv":
		return writeCSV(w, rows)
	case "xlsx":
		return writeXLSX(w, rows)
	default:
		return writeText(w, rows)
	}
}

func writeText(w io.Writer, rows []exportRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDATE\tMERCHANT\tAMOUNT\tDIRECTION\tCATEGORY")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.Index, r.Date, r.Merchant, r.Amount, r.Direction, r.Category)
	}
	return tw.Flush()
}

func runToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	raw, err := singleArg(fs, args)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	now := time.Now()
	token, err := interceptors.NewTokenValidator([]byte(cfg.Auth.JWTSecret)).Issue(userID, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}
