package payment

import "strings"

// NormalizePhone converts Kenyan mobile numbers to E.164 (+254...). Numbers
// that do not look Kenyan are passed through unchanged after whitespace
// cleanup; the provider does its own validation.
func NormalizePhone(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, raw)

	switch {
	case cleaned == "":
		return ""
	case strings.HasPrefix(cleaned, "+254"):
		return cleaned
	case strings.HasPrefix(cleaned, "254"):
		return "+" + cleaned
	case strings.HasPrefix(cleaned, "07") || strings.HasPrefix(cleaned, "01"):
		return "+254" + cleaned[1:]
	default:
		return cleaned
	}
}
