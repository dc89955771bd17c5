package jobs

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	salaryNumberRe = regexp.MustCompile(`\d[\d'’\x{00a0} ,.]*\d|\d`)
	trailingJunkRe = regexp.MustCompile(`[.,]$`)
)

const monthsPerYear = 12

// ParseSalary detects up to two numeric figures in free-form salary
// text, infers the pay period from accompanying units, and normalizes
// monthly figures to yearly by multiplying by 12. The conversion
// happens here and only here. A nil return means the salary is absent,
// which is distinct from a zero figure.
func ParseSalary(text string) *Salary {
	matches := salaryNumberRe.FindAllString(text, 2)
	if len(matches) == 0 {
		return nil
	}

	low, ok := parseAmount(matches[0])
	if !ok {
		return nil
	}
	high := low
	if len(matches) > 1 {
		if v, ok := parseAmount(matches[1]); ok {
			high = v
		}
	}
	if high < low {
		low, high = high, low
	}

	s := &Salary{
		Min:      low,
		Max:      high,
		Currency: detectCurrency(text),
		Period:   detectPeriod(text, high),
	}
	if s.Period == PeriodMonthly {
		s.Min *= monthsPerYear
		s.Max *= monthsPerYear
		s.Period = PeriodYearly
	}
	return s
}

// parseAmount strips Swiss and international grouping separators and
// parses the remainder as a float.
func parseAmount(raw string) (float64, bool) {
	s := trailingJunkRe.ReplaceAllString(strings.TrimSpace(raw), "")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\'', '’', ' ', '\u00a0':
			return -1
		}
		return r
	}, s)
	// A comma grouping thousands (1,500) is dropped; any other comma is
	// a decimal mark (45,50).
	if i := strings.LastIndex(s, ","); i >= 0 {
		if len(s)-i-1 == 3 && !strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s[:i], ",", "") + "." + s[i+1:]
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}

func detectCurrency(text string) string {
	upper := strings.ToUpper(text)
	for _, cur := range []string{"CHF", "EUR", "USD", "GBP"} {
		if strings.Contains(upper, cur) {
			return cur
		}
	}
	return "CHF"
}

// detectPeriod prefers an explicit unit next to the figure. Without a
// unit, figures of 12'000 and above read as yearly totals.
func detectPeriod(text string, high float64) Period {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "hour") || strings.Contains(lower, "stunde") || strings.Contains(lower, "/ h") || strings.Contains(lower, "/h"):
		return PeriodHourly
	case strings.Contains(lower, "month") || strings.Contains(lower, "monat"):
		return PeriodMonthly
	case strings.Contains(lower, "year") || strings.Contains(lower, "annum") || strings.Contains(lower, "jahr"):
		return PeriodYearly
	case high >= 12000:
		return PeriodYearly
	default:
		return PeriodMonthly
	}
}
