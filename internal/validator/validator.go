// Package validator checks raw phone numbers against the country rule table
package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/foxzi/numcheck/internal/rules"
)

// ErrorCode identifies the validation step that rejected a number
type ErrorCode string

const (
	CodeEmptyInput             ErrorCode = "empty_input"
	CodeMissingCountryCode     ErrorCode = "missing_country_code"
	CodeUnsupportedCountryCode ErrorCode = "unsupported_country_code"
	CodeLengthMismatch         ErrorCode = "length_mismatch"
	CodePrefixMismatch         ErrorCode = "prefix_mismatch"
	CodeNonDigitLocalNumber    ErrorCode = "non_digit_local_number"
)

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// Steps records how far validation progressed.
// A flag is set only when its step was reached and passed.
type Steps struct {
	HasPlusPrefix     bool `json:"has_plus_prefix"`
	CountryRecognized bool `json:"country_recognized"`
	LengthValid       bool `json:"length_valid"`
	PrefixValid       bool `json:"prefix_valid"`
	AllDigits         bool `json:"all_digits"`
}

// Result is the verdict for one raw input
type Result struct {
	RawInput    string             `json:"raw_input"`
	Valid       bool               `json:"valid"`
	Country     *rules.CountryRule `json:"country,omitempty"`
	LocalNumber string             `json:"local_number,omitempty"`
	Errors      []string           `json:"errors"`
	Code        ErrorCode          `json:"error_code,omitempty"`
	Steps       Steps              `json:"steps"`
}

// Validate runs the validation steps in order and stops at the first failure.
// It never returns an error: every rejection is reported in the Result.
func Validate(raw string, table *rules.Table) Result {
	res := Result{RawInput: raw, Errors: []string{}}

	cleaned := Clean(raw)
	if cleaned == "" {
		return res.fail(CodeEmptyInput, "empty number")
	}

	if !strings.HasPrefix(cleaned, "+") {
		return res.fail(CodeMissingCountryCode,
			"missing country code: number must include country code (e.g. +242...)")
	}
	res.Steps.HasPlusPrefix = true

	rule, ok := table.Match(cleaned)
	if !ok {
		return res.fail(CodeUnsupportedCountryCode,
			fmt.Sprintf("unsupported country code: supported codes are %s", strings.Join(table.Codes(), ", ")))
	}
	res.Country = rule
	res.Steps.CountryRecognized = true

	local := strings.TrimPrefix(cleaned, rule.CountryCode)
	res.LocalNumber = local

	if n := utf8.RuneCountInString(local); n != rule.TotalLength {
		return res.fail(CodeLengthMismatch,
			fmt.Sprintf("invalid length for %s: expected %d digits after %s, got %d",
				rule.CountryName, rule.TotalLength, rule.CountryCode, n))
	}
	res.Steps.LengthValid = true

	if !hasAnyPrefix(local, rule.MobilePrefixes) {
		return res.fail(CodePrefixMismatch,
			fmt.Sprintf("invalid mobile prefix for %s: local number must start with one of %s",
				rule.CountryName, strings.Join(rule.MobilePrefixes, ", ")))
	}
	res.Steps.PrefixValid = true

	if !digitsOnly.MatchString(local) {
		return res.fail(CodeNonDigitLocalNumber, "non-digit characters in local number")
	}
	res.Steps.AllDigits = true

	res.Valid = true
	return res
}

func (r Result) fail(code ErrorCode, msg string) Result {
	r.Code = code
	r.Errors = append(r.Errors, msg)
	return r
}

// Clean trims the input and removes all whitespace inside it
func Clean(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// E164 returns the normalized number of a valid result, or "" otherwise
func E164(r Result) string {
	if !r.Valid || r.Country == nil {
		return ""
	}
	return r.Country.CountryCode + r.LocalNumber
}

// Mask hides all but the last four characters of a number for logging
func Mask(number string) string {
	if len(number) > 4 {
		return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
	}
	return "****"
}
