package validator

import (
	"strings"

	"github.com/foxzi/numcheck/internal/rules"
)

// FormatForDisplay groups a number into readable segments for its country.
// number may be the full international form or the local part only.
// The output keeps every character in order and has no effect on validity.
// Grouping counts runes, so unvalidated input is never split mid-character.
func FormatForDisplay(number string, rule rules.CountryRule) string {
	local := []rune(strings.TrimPrefix(Clean(number), rule.CountryCode))

	var grouped string
	switch {
	case rule.CountryCode == "+1" && len(local) == 10:
		grouped = "(" + string(local[:3]) + ") " + string(local[3:6]) + "-" + string(local[6:])
	case len(local) == 8:
		grouped = group(local, 2, 2, 2, 2)
	case len(local) == 9:
		grouped = group(local, 1, 2, 2, 2, 2)
	case len(local) == 10:
		grouped = group(local, 2, 2, 2, 2, 2)
	default:
		grouped = pairs(local)
	}

	return rule.CountryCode + " " + grouped
}

func group(s []rune, sizes ...int) string {
	parts := make([]string, 0, len(sizes)+1)
	for _, n := range sizes {
		if len(s) <= n {
			break
		}
		parts = append(parts, string(s[:n]))
		s = s[n:]
	}
	if len(s) > 0 {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, " ")
}

func pairs(s []rune) string {
	var parts []string
	for len(s) > 2 {
		parts = append(parts, string(s[:2]))
		s = s[2:]
	}
	if len(s) > 0 {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, " ")
}
