// Package normalizer cleans bank statement descriptions into merchant names.
package normalizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// MerchantPattern maps a description pattern to a canonical merchant name.
type MerchantPattern struct {
	Pattern *regexp.Regexp
	Name    string
}

// MerchantNormalizer turns raw statement descriptions into display names.
// Patterns are evaluated in order; the first match wins.
type MerchantNormalizer struct {
	patterns    []MerchantPattern
	known       []string // lower-cased pattern names, same order as patterns
	maxDistance int
}

// DefaultMaxDistance is the largest edit distance accepted for a fuzzy match.
const DefaultMaxDistance = 2

// NewMerchantNormalizer returns a normalizer loaded with common merchants.
func NewMerchantNormalizer() *MerchantNormalizer {
	n := &MerchantNormalizer{maxDistance: DefaultMaxDistance}
	for _, p := range defaultMerchantPatterns() {
		n.add(p)
	}
	return n
}

// AddPattern appends a custom pattern after the built-in ones.
func (n *MerchantNormalizer) AddPattern(pattern, name string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	n.add(MerchantPattern{Pattern: re, Name: name})
	return nil
}

func (n *MerchantNormalizer) add(p MerchantPattern) {
	n.patterns = append(n.patterns, p)
	n.known = append(n.known, strings.ToLower(p.Name))
}

// Normalize returns the merchant name for a statement description.
// Unknown merchants are title-cased after cleaning.
func (n *MerchantNormalizer) Normalize(description string) string {
	cleaned := cleanDescription(description)
	if cleaned == "" {
		return ""
	}

	upper := strings.ToUpper(cleaned)
	for _, p := range n.patterns {
		if p.Pattern.MatchString(upper) {
			return p.Name
		}
	}

	// Typos such as "STARBCKS" still resolve to a known name.
	if name, ok := n.closest(cleaned); ok {
		return name
	}
	return titleCase(cleaned)
}

func (n *MerchantNormalizer) closest(s string) (string, bool) {
	if len(s) < 4 {
		return "", false
	}
	ranks := fuzzy.RankFindNormalizedFold(strings.ToLower(s), n.known)
	if len(ranks) == 0 {
		return "", false
	}
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	if best.Distance > n.maxDistance {
		return "", false
	}
	return n.patterns[best.OriginalIndex].Name, true
}

var (
	noisePrefixes = []string{
		"DEBIT CARD ", "CREDIT CARD ", "CARD PURCHASE ", "POS PURCHASE ",
		"PURCHASE ", "PAYMENT TO ", "PAYMENT ", "POS ", "ACH ",
		"DEBIT ", "CREDIT ", "VISA ", "MASTERCARD ", "CHECKCARD ",
	}
	reTrailingRef  = regexp.MustCompile(`\s+#?\d{4,}$`)
	reTrailingDate = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}/?$`)
	reStoreNumber  = regexp.MustCompile(`\s+#\d+\b`)
	reSpaces       = regexp.MustCompile(`\s+`)
)

// cleanDescription strips card prefixes, reference numbers and trailing dates.
func cleanDescription(raw string) string {
	result := strings.TrimSpace(raw)

	upper := strings.ToUpper(result)
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(upper, prefix) {
			result = result[len(prefix):]
			break
		}
	}

	result = reTrailingRef.ReplaceAllString(result, "")
	result = reTrailingDate.ReplaceAllString(result, "")
	result = reStoreNumber.ReplaceAllString(result, "")
	result = reSpaces.ReplaceAllString(result, " ")

	return strings.TrimSpace(result)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		first, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(first)) + strings.ToLower(word[size:])
	}
	return strings.Join(words, " ")
}

func defaultMerchantPatterns() []MerchantPattern {
	return []MerchantPattern{
		// Groceries
		{regexp.MustCompile(`WAL-?MART|WM SUPERCENTER`), "Walmart"},
		{regexp.MustCompile(`\bTARGET\b`), "Target"},
		{regexp.MustCompile(`KROGER`), "Kroger"},
		{regexp.MustCompile(`SAFEWAY`), "Safeway"},
		{regexp.MustCompile(`WHOLE\s*FOODS|WHOLEFDS`), "Whole Foods"},
		{regexp.MustCompile(`TRADER\s*JOE`), "Trader Joe's"},
		{regexp.MustCompile(`COSTCO`), "Costco"},

		// Food and drink
		{regexp.MustCompile(`STARBUCKS`), "Starbucks"},
		{regexp.MustCompile(`MC\s*DONALD`), "McDonald's"},
		{regexp.MustCompile(`BURGER\s*KING`), "Burger King"},
		{regexp.MustCompile(`CHIPOTLE`), "Chipotle"},
		{regexp.MustCompile(`UBER\s*EATS`), "Uber Eats"},
		{regexp.MustCompile(`DOORDASH`), "DoorDash"},

		// Transport; delivery above matches first for UBER EATS.
		{regexp.MustCompile(`\bUBER\b`), "Uber"},
		{regexp.MustCompile(`\bLYFT\b`), "Lyft"},
		{regexp.MustCompile(`\bSHELL\b`), "Shell"},
		{regexp.MustCompile(`EXXON|MOBIL`), "ExxonMobil"},
		{regexp.MustCompile(`CHEVRON`), "Chevron"},

		// Health
		{regexp.MustCompile(`\bCVS\b`), "CVS"},
		{regexp.MustCompile(`WALGREENS`), "Walgreens"},

		// Shopping
		{regexp.MustCompile(`AMAZON|AMZN`), "Amazon"},
		{regexp.MustCompile(`\bEBAY\b`), "eBay"},
		{regexp.MustCompile(`\bIKEA\b`), "IKEA"},
		{regexp.MustCompile(`BEST\s*BUY`), "Best Buy"},

		// Subscriptions and utilities
		{regexp.MustCompile(`NETFLIX`), "Netflix"},
		{regexp.MustCompile(`SPOTIFY`), "Spotify"},
		{regexp.MustCompile(`COMCAST|XFINITY`), "Comcast"},
		{regexp.MustCompile(`VERIZON`), "Verizon"},

		// Payments
		{regexp.MustCompile(`PAYPAL`), "PayPal"},
		{regexp.MustCompile(`VENMO`), "Venmo"},
	}
}
