// Package rules holds the per-country phone number rule table
package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Region groups countries by primary business language
type Region string

const (
	RegionFrancophone Region = "francophone"
	RegionAnglophone  Region = "anglophone"
	RegionOther       Region = "other"
)

// Valid reports whether r is a known region
func (r Region) Valid() bool {
	switch r {
	case RegionFrancophone, RegionAnglophone, RegionOther:
		return true
	}
	return false
}

// CountryRule describes the expected shape of a mobile number for one country code
type CountryRule struct {
	CountryCode    string   `yaml:"country_code" json:"country_code"`
	CountryName    string   `yaml:"country_name" json:"country_name"`
	TotalLength    int      `yaml:"total_length" json:"total_length"`
	MobilePrefixes []string `yaml:"mobile_prefixes" json:"mobile_prefixes"`
	Region         Region   `yaml:"region" json:"region"`
}

// ErrInvalidTable is wrapped by every TableError
var ErrInvalidTable = errors.New("invalid rule table")

// TableError reports why a rule table was rejected
type TableError struct {
	Code   string // country code of the offending rule, empty for table-level problems
	Reason string
}

func (e *TableError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("invalid rule table: %s", e.Reason)
	}
	return fmt.Sprintf("invalid rule table: %s: %s", e.Code, e.Reason)
}

func (e *TableError) Unwrap() error { return ErrInvalidTable }

// Table is an ordered, immutable list of country rules.
// Lookup takes the first rule whose country code prefixes the number.
type Table struct {
	rules []CountryRule
}

// NewTable validates rules and builds a table. The slice is copied.
func NewTable(rules []CountryRule) (*Table, error) {
	if len(rules) == 0 {
		return nil, &TableError{Reason: "table must contain at least one rule"}
	}

	seen := make(map[string]bool, len(rules))
	copied := make([]CountryRule, len(rules))

	for i, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
		if seen[r.CountryCode] {
			return nil, &TableError{Code: r.CountryCode, Reason: "duplicate country code"}
		}
		seen[r.CountryCode] = true

		r.MobilePrefixes = append([]string(nil), r.MobilePrefixes...)
		copied[i] = r
	}

	for i := range copied {
		for j := range copied {
			if i == j {
				continue
			}
			if strings.HasPrefix(copied[j].CountryCode, copied[i].CountryCode) {
				return nil, &TableError{
					Code:   copied[i].CountryCode,
					Reason: fmt.Sprintf("ambiguous with %s", copied[j].CountryCode),
				}
			}
		}
	}

	return &Table{rules: copied}, nil
}

func validateRule(r CountryRule) error {
	code := r.CountryCode
	if len(code) < 2 || code[0] != '+' {
		return &TableError{Code: code, Reason: "country code must start with + followed by digits"}
	}
	for _, c := range code[1:] {
		if c < '0' || c > '9' {
			return &TableError{Code: code, Reason: "country code must start with + followed by digits"}
		}
	}
	if strings.TrimSpace(r.CountryName) == "" {
		return &TableError{Code: code, Reason: "country name is required"}
	}
	if r.TotalLength <= 0 {
		return &TableError{Code: code, Reason: "total length must be positive"}
	}
	if len(r.MobilePrefixes) == 0 {
		return &TableError{Code: code, Reason: "at least one mobile prefix is required"}
	}
	for _, p := range r.MobilePrefixes {
		if p == "" || len(p) > r.TotalLength {
			return &TableError{Code: code, Reason: fmt.Sprintf("invalid mobile prefix %q", p)}
		}
	}
	if !r.Region.Valid() {
		return &TableError{Code: code, Reason: fmt.Sprintf("unknown region %q", r.Region)}
	}
	return nil
}

// Match returns the first rule whose country code is a prefix of number
func (t *Table) Match(number string) (*CountryRule, bool) {
	for i := range t.rules {
		if strings.HasPrefix(number, t.rules[i].CountryCode) {
			r := t.rules[i]
			return &r, true
		}
	}
	return nil, false
}

// Lookup returns the rule for an exact country code
func (t *Table) Lookup(code string) (*CountryRule, bool) {
	for i := range t.rules {
		if t.rules[i].CountryCode == code {
			r := t.rules[i]
			return &r, true
		}
	}
	return nil, false
}

// Rules returns a copy of the rules in table order
func (t *Table) Rules() []CountryRule {
	out := make([]CountryRule, len(t.rules))
	for i, r := range t.rules {
		r.MobilePrefixes = append([]string(nil), r.MobilePrefixes...)
		out[i] = r
	}
	return out
}

// Codes returns all supported country codes in table order
func (t *Table) Codes() []string {
	codes := make([]string, len(t.rules))
	for i, r := range t.rules {
		codes[i] = r.CountryCode
	}
	return codes
}

// Len returns the number of rules
func (t *Table) Len() int {
	return len(t.rules)
}

// ByRegion returns the rules of one region, sorted by country name
func (t *Table) ByRegion(region Region) []CountryRule {
	var out []CountryRule
	for _, r := range t.Rules() {
		if r.Region == region {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CountryName < out[j].CountryName })
	return out
}
