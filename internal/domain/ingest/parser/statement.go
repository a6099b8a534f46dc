package parser

import (
	"iter"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/categorization"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// StatementRow is one transaction line recovered from a bank statement.
type StatementRow struct {
	Index       int
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Direction   ingest.Direction
	Category    categorization.Category
}

// StatementLine matches "<date> <description> <amount>" anywhere in the text.
var StatementLine = regexp.MustCompile(
	`(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})\s+(.*?)\s+([\-$]?\d{1,3}(?:,?\d{3})*(?:\.\d{2})?)`,
)

var (
	reRowDate      = regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2,4})$`)
	amountStripper = strings.NewReplacer("$", "", ",", "", "-", "")
)

// ParseStatement lazily yields the valid rows of statement text in the order
// they appear. Rows with an unparseable date or a non-positive amount are
// skipped; Index counts only yielded rows.
func (p *Parser) ParseStatement(text string) iter.Seq[StatementRow] {
	return func(yield func(StatementRow) bool) {
		index := 0
		for offset := 0; offset < len(text); {
			loc := StatementLine.FindStringSubmatchIndex(text[offset:])
			if loc == nil {
				return
			}
			m := func(g int) string { return text[offset+loc[2*g] : offset+loc[2*g+1]] }
			dateRaw, desc, amountRaw := m(1), strings.TrimSpace(m(2)), m(3)

			if loc[1] > 0 {
				offset += loc[1]
			} else {
				offset++
			}

			row, ok := p.statementRow(dateRaw, desc, amountRaw)
			if !ok {
				continue
			}
			row.Index = index
			index++
			if !yield(row) {
				return
			}
		}
	}
}

func (p *Parser) statementRow(dateRaw, desc, amountRaw string) (StatementRow, bool) {
	dm := reRowDate.FindStringSubmatch(dateRaw)
	if dm == nil {
		return StatementRow{}, false
	}
	date, ok := calendarDate(dm[3], dm[1], dm[2])
	if !ok {
		return StatementRow{}, false
	}

	amount, err := decimal.NewFromString(amountStripper.Replace(amountRaw))
	if err != nil || !amount.IsPositive() {
		return StatementRow{}, false
	}

	direction := ingest.Income
	if strings.Contains(amountRaw, "-") || strings.Contains(strings.ToLower(desc), "debit") {
		direction = ingest.Expense
	}

	return StatementRow{
		Date:        date,
		Description: desc,
		Amount:      amount,
		Direction:   direction,
		Category:    p.statements.Classify(desc),
	}, true
}
