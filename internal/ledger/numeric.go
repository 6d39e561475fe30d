package ledger

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// NormalizeAmount parses a locale-formatted number such as "1'234,56",
// "1 234.56", "-12,5" or "1.234.567,00" into a decimal.
//
// The second return value is false when the cleaned string is empty or
// structurally unparseable. Callers treat that as missing data, never as a
// fatal error.
//
// Separator rules:
//   - whitespace (including no-break spaces) and apostrophes are always
//     thousand separators;
//   - when both '.' and ',' occur, whichever comes last is the decimal point;
//   - several commas are thousand separators; a single comma is the decimal
//     point once the digits were already grouped by whitespace or apostrophes
//     ("1'234,567"); otherwise it is a thousand separator only when exactly
//     three digits follow it and the integer part is not zero ("1,234"), and
//     the decimal point in every other case ("-12,5");
//   - several dots without any comma are thousand separators ("1.234.567").
//
// A value wrapped in parentheses or carrying a trailing minus ("12.50-") is
// negative.
func NormalizeAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasSuffix(s, "-") && !strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}

	s, grouped := stripGroupSeparators(s)

	s = resolveSeparators(s, grouped)

	// Keep digits, one decimal point and a leading minus sign.
	var b strings.Builder
	b.Grow(len(s))
	seenDigit := false
	seenPoint := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			b.WriteRune(r)
		case r == '.':
			if seenPoint {
				return decimal.Zero, false
			}
			seenPoint = true
			b.WriteRune(r)
		case r == '-':
			if b.Len() > 0 {
				return decimal.Zero, false
			}
			b.WriteRune(r)
		}
	}
	if !seenDigit {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Abs().Neg()
	}
	return d, true
}

// stripGroupSeparators drops whitespace and apostrophes and reports whether
// any of them sat between two digits.
func stripGroupSeparators(s string) (string, bool) {
	runes := []rune(s)
	grouped := false
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		if unicode.IsSpace(r) || r == '\'' || r == '’' {
			if i > 0 && i < len(runes)-1 && isDigit(runes[i-1]) && isDigit(runes[i+1]) {
				grouped = true
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), grouped
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// resolveSeparators removes thousand separators and rewrites the decimal
// separator as '.'. grouped reports that whitespace or apostrophes already
// separated the thousands.
func resolveSeparators(s string, grouped bool) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")

	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || (!grouped && commaGroupsThousands(s, lastComma)) {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)

	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

func commaGroupsThousands(s string, idx int) bool {
	after := digitsOnly(s[idx+1:])
	before := digitsOnly(s[:idx])
	if len(after) != 3 || before == "" {
		return false
	}
	return strings.TrimLeft(before, "0") != ""
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// CleanValue normalizes a cell that may already be numeric. Numeric inputs
// pass through unchanged, strings go through NormalizeAmount and anything
// else is reported as missing.
func CleanValue(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return val, true
	case decimal.NullDecimal:
		return val.Decimal, val.Valid
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int32:
		return decimal.NewFromInt32(val), true
	case int64:
		return decimal.NewFromInt(val), true
	case string:
		return NormalizeAmount(val)
	default:
		return decimal.Zero, false
	}
}
