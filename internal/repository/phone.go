package repository

import "strings"

// Bounds for a plausible phone number once reduced to digits. The upper bound
// is the E.164 maximum; the lower bound rejects numbers without an area code.
const (
	MinPhoneDigits = 10
	MaxPhoneDigits = 15
)

// NormalizePhone reduces a phone number to its canonical digits-only form.
// The second return value is false when the result is outside the plausible
// length range.
//
//	NormalizePhone("+55 11 91234-5678") == "5511912345678", true
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < MinPhoneDigits || len(digits) > MaxPhoneDigits {
		return digits, false
	}
	return digits, true
}
