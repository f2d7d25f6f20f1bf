// Package report renders batch results as CSV, JSON and terminal output
package report

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/foxzi/numcheck/internal/batch"
)

// Header is the first row of every CSV report
var Header = []string{
	"raw_input",
	"country_code",
	"country_name",
	"local_number",
	"status",
	"reachability",
	"errors",
	"timestamp",
}

// Row converts one result into CSV fields in Header order
func Row(r batch.Result) []string {
	var code, name string
	if r.Country != nil {
		code = r.Country.CountryCode
		name = r.Country.CountryName
	}

	status := "invalid"
	if r.Valid {
		status = "valid"
	}

	var ts string
	if !r.ValidatedAt.IsZero() {
		ts = r.ValidatedAt.UTC().Format(time.RFC3339)
	}

	return []string{
		r.RawInput,
		code,
		name,
		r.LocalNumber,
		status,
		string(r.Reachability.Status),
		strings.Join(r.Errors, "; "),
		ts,
	}
}

// WriteCSV writes a header row and one row per result
func WriteCSV(w io.Writer, results []batch.Result) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(Row(r)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ToDelimited returns the CSV report as a string
func ToDelimited(results []batch.Result) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, results); err != nil {
		return "", err
	}
	return buf.String(), nil
}
