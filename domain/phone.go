package domain

import "strings"

const brazilCountryCode = "55"

// NormalizePhone canonicalizes a user typed Brazilian phone number into
// country code plus national number, digits only (e.g. 5548999991234).
//
// Formatting characters are dropped, a trunk prefix of zeros is removed and a
// leading 55 country code is recognised. The national number must be an
// 11 digit mobile (area code, 9, eight digits) or a 10 digit landline (area
// code, subscriber starting 2-5). The function is idempotent.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := strings.TrimLeft(b.String(), "0")
	if (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, brazilCountryCode) {
		digits = digits[len(brazilCountryCode):]
	}

	if !validNationalNumber(digits) {
		return "", ErrInvalidPhoneFormat
	}
	return brazilCountryCode + digits, nil
}

func validNationalNumber(n string) bool {
	if len(n) != 10 && len(n) != 11 {
		return false
	}
	// area codes never contain a zero digit
	if n[0] == '0' || n[1] == '0' {
		return false
	}
	if len(n) == 11 {
		return n[2] == '9'
	}
	return n[2] >= '2' && n[2] <= '5'
}

// MaskPhone renders a canonical phone for display, hiding everything but the
// area code and the last four digits: +55 (48) *****-1234.
func MaskPhone(canonical string) string {
	national := strings.TrimPrefix(canonical, brazilCountryCode)
	if len(national) < 10 {
		return "****"
	}
	hidden := strings.Repeat("*", len(national)-6)
	return "+55 (" + national[:2] + ") " + hidden + "-" + national[len(national)-4:]
}

// E164 renders a canonical phone with the leading plus expected by providers.
func E164(canonical string) string {
	return "+" + canonical
}
