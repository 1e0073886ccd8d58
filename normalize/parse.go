package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar-date format.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 02, 2006",
	"2 Jan 2006",
}

var missingTokens = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"n/a":  true,
	"na":   true,
	"nan":  true,
	"null": true,
	"none": true,
}

var suffixes = map[byte]decimal.Decimal{
	'K': decimal.NewFromInt(1_000),
	'M': decimal.NewFromInt(1_000_000),
	'B': decimal.NewFromInt(1_000_000_000),
	'T': decimal.NewFromInt(1_000_000_000_000),
}

// ParseNumber parses provider numbers leniently: currency symbols, thousand
// separators, percent signs, K/M/B/T suffixes and accounting parentheses are
// accepted. Anything unparsable or non-finite is null.
func ParseNumber(s string) null.Float {
	d, ok := parseDecimal(s)
	if !ok {
		return null.Float{}
	}
	f, _ := d.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return null.Float{}
	}
	return null.FloatFrom(f)
}

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// ParseInt parses like ParseNumber and truncates toward zero. Values outside
// the int64 range are null.
func ParseInt(s string) null.Int {
	d, ok := parseDecimal(s)
	if !ok {
		return null.Int{}
	}
	d = d.Truncate(0)
	if d.GreaterThan(maxInt64) || d.LessThan(minInt64) {
		return null.Int{}
	}
	return null.IntFrom(d.IntPart())
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if missingTokens[strings.ToLower(s)] {
		return decimal.Decimal{}, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "", "+", "").Replace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}

	mult := decimal.NewFromInt(1)
	if m, ok := suffixes[strings.ToUpper(s[len(s)-1:])[0]]; ok {
		mult = m
		s = s[:len(s)-1]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	d = d.Mul(mult)
	if negative {
		d = d.Neg()
	}
	return d, true
}

// ParseDate accepts the date shapes providers emit, including unix seconds,
// and returns UTC midnight of that calendar date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) >= 9 {
		return Day(time.Unix(secs, 0).UTC()), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}

// Day truncates t to its calendar date at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Symbol canonicalises a ticker symbol.
func Symbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Text trims s; blank or placeholder text is null.
func Text(s string) null.String {
	s = strings.TrimSpace(s)
	if missingTokens[strings.ToLower(s)] {
		return null.String{}
	}
	return null.StringFrom(s)
}
