package categorization

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Category is a spend/income tag assigned to a ledger transaction.
type Category string

const (
	Groceries      Category = "groceries"
	Food           Category = "food"
	Transportation Category = "transportation"
	Healthcare     Category = "healthcare"
	Travel         Category = "travel"
	Shopping       Category = "shopping"
	Housing        Category = "housing"
	Salary         Category = "salary"
	Other          Category = "other"
)

// Rule maps a set of keywords to a category. Rules are evaluated in slice order.
type Rule struct {
	Category Category
	Keywords []string
}

// Classifier assigns the first category (in rule order) whose keyword set
// matches the text. Keywords are matched as case-insensitive substrings.
//
// All keywords across all rules are compiled into one Aho-Corasick automaton,
// so classification is a single pass over the text regardless of rule count.
type Classifier struct {
	matcher  *ahocorasick.Matcher
	ruleOf   []int // keyword index -> rule index
	rules    []Rule
	fallback Category
}

// NewClassifier compiles rules into a matcher. fallback is returned when nothing matches.
func NewClassifier(rules []Rule, fallback Category) *Classifier {
	c := &Classifier{rules: rules, fallback: fallback}

	var dict []string
	for ri, r := range rules {
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			dict = append(dict, kw)
			c.ruleOf = append(c.ruleOf, ri)
		}
	}
	if len(dict) > 0 {
		c.matcher = ahocorasick.NewStringMatcher(dict)
	}
	return c
}

// Classify returns the highest-priority matching category, or the fallback.
func (c *Classifier) Classify(text string) Category {
	if c.matcher == nil || text == "" {
		return c.fallback
	}

	hits := c.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))
	best := -1
	for _, kw := range hits {
		if kw < 0 || kw >= len(c.ruleOf) {
			continue
		}
		if ri := c.ruleOf[kw]; best < 0 || ri < best {
			best = ri
		}
	}
	if best < 0 {
		return c.fallback
	}
	return c.rules[best].Category
}

// Rules returns the rule table in priority order.
func (c *Classifier) Rules() []Rule {
	return c.rules
}

// ReceiptRules is the priority table used for single receipts.
var ReceiptRules = []Rule{
	{Groceries, []string{"grocery", "supermarket", "walmart", "target", "kroger", "safeway"}},
	{Food, []string{"restaurant", "cafe", "coffee", "pizza", "burger", "dining"}},
	{Transportation, []string{"gas", "fuel", "shell", "exxon", "chevron", "bp"}},
	{Healthcare, []string{"pharmacy", "cvs", "walgreens", "medical"}},
	{Travel, []string{"hotel", "motel", "inn", "resort"}},
	{Shopping, []string{"amazon", "ebay", "shop", "store"}},
}

// StatementRules is the priority table used for bank statement rows.
var StatementRules = []Rule{
	{Groceries, []string{"grocery", "supermarket", "food mart"}},
	{Food, []string{"restaurant", "cafe", "dining"}},
	{Transportation, []string{"gas", "fuel", "gasoline"}},
	{Healthcare, []string{"pharmacy", "medical", "hospital"}},
	{Housing, []string{"rent", "mortgage", "utilities"}},
	{Salary, []string{"salary", "payroll", "wages"}},
}

// NewReceiptClassifier returns the classifier for receipt text.
func NewReceiptClassifier() *Classifier {
	return NewClassifier(ReceiptRules, Other)
}

// NewStatementClassifier returns the classifier for statement descriptions.
func NewStatementClassifier() *Classifier {
	return NewClassifier(StatementRules, Other)
}
