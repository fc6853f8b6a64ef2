package phone

import (
	"regexp"
	"strings"
)

var (
	digitsRe     = regexp.MustCompile(`\d+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Digits strips every non-digit character from the value.
func Digits(value string) string {
	if value == "" {
		return ""
	}
	return strings.Join(digitsRe.FindAllString(value, -1), "")
}

// Last9 returns the last nine digits of the value, or all of them when
// the digit form is shorter. Bitrix portals commonly store subscriber
// numbers without a country prefix, so the 9-digit suffix is the most
// generic search key.
func Last9(value string) string {
	digits := Digits(value)
	if len(digits) > 9 {
		return digits[len(digits)-9:]
	}
	return digits
}

// PlusPrefixed returns the value in "+<digits>" form.
func PlusPrefixed(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "+") {
		return value
	}
	return "+" + Digits(value)
}

// Variants returns the search representations of a phone number, most
// literal first, most generic last. The list is deduplicated, preserves
// order, never exceeds five entries, and always contains the original
// value as its first element.
func Variants(value string) []string {
	digits := Digits(value)

	candidates := []string{
		value,
		"+" + digits,
		digits,
		Last9(value),
	}
	if strings.HasPrefix(value, "+") {
		candidates = append(candidates, whitespaceRe.ReplaceAllString(value, ""))
	}

	variants := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		variants = append(variants, candidate)
	}
	return variants
}
