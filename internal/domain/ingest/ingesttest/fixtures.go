package ingesttest

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// StatementLine is one generated statement row and how it was written.
type StatementLine struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Debit       bool
}

// Generator produces deterministic receipt and statement text.
type Generator struct {
	f *gofakeit.Faker
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{f: gofakeit.New(seed)}
}

// Description returns two or three upper-case words without digits.
func (g *Generator) Description() string {
	n := g.f.Number(2, 3)
	words := make([]string, 0, n)
	for len(words) < n {
		w := lettersOnly(g.f.Noun())
		if len(w) < 3 || strings.Contains(strings.ToLower(w), "debit") {
			continue
		}
		words = append(words, strings.ToUpper(w))
	}
	return strings.Join(words, " ")
}

// Amount returns a two-decimal amount between 1.00 and 999.99.
func (g *Generator) Amount() decimal.Decimal {
	cents := g.f.Number(100, 99999)
	return decimal.New(int64(cents), -2)
}

// Date returns a day in 2024.
func (g *Generator) Date() time.Time {
	d := g.f.DateRange(
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
	)
	y, m, day := d.UTC().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// Statement returns n valid rows and their rendering as statement text.
// Roughly half of the rows are written as debits with a leading minus.
func (g *Generator) Statement(n int) (string, []StatementLine) {
	var b strings.Builder
	b.WriteString("ACCOUNT STATEMENT\n")
	lines := make([]StatementLine, 0, n)
	for range n {
		line := StatementLine{
			Date:        g.Date(),
			Description: g.Description(),
			Amount:      g.Amount(),
			Debit:       g.f.Bool(),
		}
		sign := ""
		if line.Debit {
			sign = "-"
		}
		fmt.Fprintf(&b, "%s %s %s%s\n", line.Date.Format("01/02/2006"), line.Description, sign, line.Amount.StringFixed(2))
		lines = append(lines, line)
	}
	b.WriteString("CLOSING BALANCE\n")
	return b.String(), lines
}

// Receipt returns receipt text with a merchant header, a date and a total.
func (g *Generator) Receipt(merchant string, amount decimal.Decimal, date time.Time) string {
	return fmt.Sprintf("%s\n%s\n%s x1\nTOTAL: %s\nTHANK YOU\n",
		merchant,
		date.Format("01/02/2006"),
		strings.ToUpper(lettersOnly(g.f.Noun())),
		amount.StringFixed(2),
	)
}

func lettersOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, s)
}
