package card

import (
	"strings"
	"time"
)

// Brand is the card scheme inferred from the number prefix.
type Brand string

const (
	Visa       Brand = "visa"
	Mastercard Brand = "mastercard"
	Amex       Brand = "amex"
	Unknown    Brand = "unknown"
)

// DetectBrand identifies the card brand from a (possibly partial) number.
// It works on input as typed so the UI can show the brand before the number
// is complete; length is only gated for full validation in ValidNumber.
func DetectBrand(number string) Brand {
	cleaned := stripSeparators(number)
	switch {
	case strings.HasPrefix(cleaned, "4") && len(cleaned) >= 13:
		return Visa
	case strings.HasPrefix(cleaned, "5") && len(cleaned) == 16:
		return Mastercard
	case strings.HasPrefix(cleaned, "34") || strings.HasPrefix(cleaned, "37"):
		return Amex
	default:
		return Unknown
	}
}

// FormatNumber renders a card number for display. Amex numbers group as
// 4-6-5 joined with dashes (3782-822463-10005); everything else groups as
// 4-4-4-4 joined with spaces. Grouping is prefix-stable: appending a digit
// never reformats the digits already typed.
func FormatNumber(number string) string {
	cleaned := digitsOnly(number)
	if cleaned == "" {
		return ""
	}

	if DetectBrand(cleaned) == Amex {
		switch {
		case len(cleaned) <= 4:
			return cleaned
		case len(cleaned) <= 10:
			return cleaned[:4] + "-" + cleaned[4:]
		default:
			return cleaned[:4] + "-" + cleaned[4:10] + "-" + cleaned[10:]
		}
	}

	var b strings.Builder
	for i := 0; i < len(cleaned); i++ {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(cleaned[i])
	}
	return b.String()
}

// FormatExpiry renders an expiry as MM/YY, inserting the slash once a third
// digit is typed. Input may already contain a slash; at most four digits are
// kept.
func FormatExpiry(input string) string {
	cleaned := strings.NewReplacer("/", "", " ", "").Replace(input)
	if len(cleaned) <= 2 {
		return cleaned
	}
	end := len(cleaned)
	if end > 4 {
		end = 4
	}
	return cleaned[:2] + "/" + cleaned[2:end]
}

// ValidNumber reports whether a card number is complete and well-formed:
// digits only once spaces and dashes are stripped, the exact length for its
// brand (Visa and Mastercard 16, Amex 15, unknown brands always invalid) and
// a passing Luhn checksum.
func ValidNumber(number string) bool {
	cleaned := stripSeparators(number)
	if cleaned == "" || !allDigits(cleaned) {
		return false
	}

	var want int
	switch DetectBrand(cleaned) {
	case Amex:
		want = 15
	case Visa, Mastercard:
		want = 16
	default:
		return false
	}
	return len(cleaned) == want && luhn(cleaned)
}

// ValidExpiry reports whether an MM/YY expiry (slash optional) names a month
// no earlier than the month of ref. Two-digit years are read as 2000+YY and
// a card is good through the end of its stated month.
func ValidExpiry(input string, ref time.Time) bool {
	cleaned := strings.NewReplacer("/", "", " ", "").Replace(input)
	if len(cleaned) != 4 || !allDigits(cleaned) {
		return false
	}

	month := int(cleaned[0]-'0')*10 + int(cleaned[1]-'0')
	year := int(cleaned[2]-'0')*10 + int(cleaned[3]-'0')
	if month < 1 || month > 12 {
		return false
	}

	refYear := ref.Year() % 100
	refMonth := int(ref.Month())
	return year > refYear || (year == refYear && month >= refMonth)
}

// ValidCVV reports whether a security code has the right shape for the
// brand: four digits for Amex, three for everything else including unknown.
func ValidCVV(cvv string, brand Brand) bool {
	cleaned := strings.ReplaceAll(cvv, " ", "")
	want := 3
	if brand == Amex {
		want = 4
	}
	return len(cleaned) == want && allDigits(cleaned)
}

// luhn runs the mod-10 checksum: walking right to left, every second digit
// is doubled and digits above 9 have 9 subtracted before summing.
func luhn(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

func stripSeparators(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
