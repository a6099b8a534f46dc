package parser

import (
	"regexp"
	"strings"
	"time"
)

// AmountRule extracts a candidate amount from group 1 of Pattern.
// When LineFilter is set, only lines it accepts are searched, in order.
type AmountRule struct {
	Name       string
	Pattern    *regexp.Regexp
	LineFilter func(line string) bool
}

// find returns the first match of the rule, or "" when it does not apply.
func (r AmountRule) find(text string) string {
	if r.LineFilter == nil {
		if m := r.Pattern.FindStringSubmatch(text); m != nil {
			return m[1]
		}
		return ""
	}
	for _, line := range strings.Split(text, "\n") {
		if !r.LineFilter(line) {
			continue
		}
		if m := r.Pattern.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

var reDecimal = regexp.MustCompile(`\d+\.\d{2}`)

// AmountRules are tried in order; the first positive amount wins.
var AmountRules = []AmountRule{
	{Name: "total", Pattern: regexp.MustCompile(`(?i)total\s*[:$]?\s*(\d+\.\d{2})`)},
	{Name: "amount", Pattern: regexp.MustCompile(`(?i)amount\s*[:$]?\s*(\d+\.\d{2})`)},
	{Name: "dollar-eol", Pattern: regexp.MustCompile(`(?m)\$\s*(\d+\.\d{2})\s*$`)},
	{
		Name:    "bare-eol",
		Pattern: regexp.MustCompile(`(\d+\.\d{2})\s*$`),
		LineFilter: func(line string) bool {
			return len(reDecimal.FindAllStringIndex(line, 2)) == 1
		},
	},
	{Name: "any-decimal", Pattern: regexp.MustCompile(`(\d+\.\d{2})`)},
}

// DateRule matches a date with named groups y, m and d.
type DateRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DateRules are tried in order; the first valid calendar date wins.
var DateRules = []DateRule{
	{Name: "iso", Pattern: regexp.MustCompile(`(?P<y>\d{4})-(?P<m>\d{2})-(?P<d>\d{2})`)},
	{Name: "us-slash", Pattern: regexp.MustCompile(`(?P<m>\d{2})/(?P<d>\d{2})/(?P<y>\d{4})`)},
	{Name: "us-dash", Pattern: regexp.MustCompile(`(?P<m>\d{2})-(?P<d>\d{2})-(?P<y>\d{4})`)},
	{Name: "us-slash-short", Pattern: regexp.MustCompile(`(?P<m>\d{1,2})/(?P<d>\d{1,2})/(?P<y>\d{2,4})`)},
	{Name: "us-dash-short", Pattern: regexp.MustCompile(`(?P<m>\d{1,2})-(?P<d>\d{1,2})-(?P<y>\d{2,4})`)},
}

// find returns the date of the rule's first match, if it is a real calendar date.
func (r DateRule) find(text string) (time.Time, bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	var y, mo, d string
	for i, name := range r.Pattern.SubexpNames() {
		switch name {
		case "y":
			y = m[i]
		case "m":
			mo = m[i]
		case "d":
			d = m[i]
		}
	}
	return calendarDate(y, mo, d)
}

// MerchantRules describe what a merchant header line looks like.
var MerchantRules = struct {
	MaxLines int
	MinLen   int
	MaxLen   int
	Shapes   []*regexp.Regexp
	Rejects  []*regexp.Regexp
}{
	MaxLines: 5,
	MinLen:   3,
	MaxLen:   50,
	Shapes: []*regexp.Regexp{
		regexp.MustCompile(`^[A-Z][A-Za-z\s&',.-]{3,50}$`),
		regexp.MustCompile(`^[A-Z\s&',.]{4,50}$`),
	},
	Rejects: []*regexp.Regexp{
		regexp.MustCompile(`\d{2}/\d{2}/\d{4}`),
		regexp.MustCompile(`\$`),
	},
}
