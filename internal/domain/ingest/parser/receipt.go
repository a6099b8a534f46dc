// Package parser turns extracted document text into structured fields.
//
// Both parsers are pure: the same text always yields the same output.
package parser

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/categorization"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// ParsedFields are the fields recovered from a single receipt. Amount and
// Date are nil when no candidate was found.
type ParsedFields struct {
	Amount    *decimal.Decimal        `json:"amount,omitempty"`
	Date      *time.Time              `json:"date,omitempty"`
	Merchant  string                  `json:"merchant,omitempty"`
	Category  categorization.Category `json:"category"`
	Direction ingest.Direction        `json:"direction"`
}

// Parser holds the compiled classifiers. The zero value is not usable; use New.
type Parser struct {
	receipts   *categorization.Classifier
	statements *categorization.Classifier
}

// New returns a parser using the default receipt and statement keyword tables.
func New() *Parser {
	return &Parser{
		receipts:   categorization.NewReceiptClassifier(),
		statements: categorization.NewStatementClassifier(),
	}
}

// ParseReceipt extracts amount, date, merchant and category from receipt text.
// Receipts are always expenses.
func (p *Parser) ParseReceipt(text string) ParsedFields {
	return ParsedFields{
		Amount:    findAmount(text),
		Date:      findDate(text),
		Merchant:  findMerchant(text),
		Category:  p.receipts.Classify(text),
		Direction: ingest.Expense,
	}
}

func findAmount(text string) *decimal.Decimal {
	for _, rule := range AmountRules {
		raw := rule.find(text)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil || !d.IsPositive() {
			continue
		}
		return &d
	}
	return nil
}

func findDate(text string) *time.Time {
	for _, rule := range DateRules {
		if t, ok := rule.find(text); ok {
			return &t
		}
	}
	return nil
}

func findMerchant(text string) string {
	seen := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if seen == MerchantRules.MaxLines {
			break
		}
		seen++

		if len(line) < MerchantRules.MinLen || len(line) > MerchantRules.MaxLen {
			continue
		}
		if looksLikeMerchant(line) {
			return line
		}
	}
	return ""
}

func looksLikeMerchant(line string) bool {
	for _, re := range MerchantRules.Rejects {
		if re.MatchString(line) {
			return false
		}
	}
	for _, re := range MerchantRules.Shapes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
