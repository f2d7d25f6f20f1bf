package validator

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/foxzi/numcheck/internal/rules"
)

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func TestFormatForDisplay(t *testing.T) {
	table := rules.Default()

	tests := []struct {
		number string
		want   string
	}{
		{"+242061234567", "+242 0 61 23 45 67"},
		{"+14155550123", "+1 (415) 555-0123"},
		{"+22997123456", "+229 97 12 34 56"},
		{"+2250712345678", "+225 07 12 34 56 78"},
		{"+24106123456", "+241 06 12 34 56"},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			rule, ok := table.Match(tt.number)
			if !ok {
				t.Fatalf("no rule for %s", tt.number)
			}
			got := FormatForDisplay(tt.number, *rule)
			if got != tt.want {
				t.Errorf("FormatForDisplay(%q) = %q, want %q", tt.number, got, tt.want)
			}
		})
	}
}

func TestFormatForDisplayAcceptsLocalNumber(t *testing.T) {
	rule, _ := rules.Default().Lookup("+242")
	got := FormatForDisplay("061234567", *rule)
	if got != "+242 0 61 23 45 67" {
		t.Errorf("FormatForDisplay(local) = %q", got)
	}
}

func TestFormatForDisplayPreservesDigits(t *testing.T) {
	table := rules.Default()

	// Build one valid number per rule from its first prefix, padded with a digit pattern.
	for _, rule := range table.Rules() {
		local := rule.MobilePrefixes[0]
		for i := 0; len(local) < rule.TotalLength; i++ {
			local += string(rune('0' + i%10))
		}
		number := rule.CountryCode + local

		res := Validate(number, table)
		if !res.Valid {
			t.Fatalf("generated number %s is invalid: %v", number, res.Errors)
		}

		formatted := FormatForDisplay(number, rule)
		if digits(formatted) != digits(number) {
			t.Errorf("%s: digits of %q = %s, want %s", rule.CountryName, formatted, digits(formatted), digits(number))
		}
	}
}

func TestFormatForDisplayOddLength(t *testing.T) {
	rule := rules.CountryRule{CountryCode: "+86", CountryName: "China", TotalLength: 11, MobilePrefixes: []string{"13"}, Region: rules.RegionOther}
	got := FormatForDisplay("+8613812345678", rule)
	if got != "+86 13 81 23 45 67 8" {
		t.Errorf("FormatForDisplay() = %q", got)
	}
}

func TestFormatForDisplayGroupsRunes(t *testing.T) {
	rule, _ := rules.Default().Lookup("+242")

	got := FormatForDisplay("+242０６１２３４５６７", *rule)
	if got != "+242 ０ ６１ ２３ ４５ ６７" {
		t.Errorf("FormatForDisplay(fullwidth) = %q", got)
	}
	if !utf8.ValidString(got) {
		t.Errorf("FormatForDisplay split a multi-byte character: %q", got)
	}
}
