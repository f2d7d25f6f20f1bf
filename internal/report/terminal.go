package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/foxzi/numcheck/internal/batch"
	"github.com/foxzi/numcheck/internal/validator"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
)

// PrintTable prints one line per result
func PrintTable(w io.Writer, results []batch.Result) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "INPUT\tCOUNTRY\tLOCAL\tSTATUS\tREACHABILITY\tERROR")

	for _, r := range results {
		country := "-"
		if r.Country != nil {
			country = r.Country.CountryCode + " " + r.Country.CountryName
		}

		status := "invalid"
		if r.Valid {
			status = "valid"
		}

		errText := "-"
		if len(r.Errors) > 0 {
			errText = strings.Join(r.Errors, "; ")
		} else if r.Reachability.Error != "" {
			errText = r.Reachability.Error
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RawInput,
			country,
			dashIfEmpty(r.LocalNumber),
			status,
			r.Reachability.Status,
			errText,
		)
	}

	tw.Flush()
}

// PrintSummary prints a boxed run summary
func PrintSummary(w io.Writer, s batch.Summary, cancelled bool) {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Batch summary"))
	b.WriteString("\n")

	line := func(label string, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-24s", label)), value)
	}

	line("Total", fmt.Sprint(s.Total))
	line("Format valid", goodStyle.Render(fmt.Sprint(s.FormatValid)))
	line("Format invalid", badStyle.Render(fmt.Sprint(s.FormatInvalid)))
	line("Reachability confirmed", goodStyle.Render(fmt.Sprint(s.ReachabilityConfirmed)))
	line("Reachability denied", badStyle.Render(fmt.Sprint(s.ReachabilityDenied)))
	line("Reachability unknown", warnStyle.Render(fmt.Sprint(s.ReachabilityUnknown)))
	line("API calls made", fmt.Sprint(s.APICallsMade))
	line("Confirmation rate", fmt.Sprintf("%.2f%%", s.ConfirmationRate))
	if cancelled || s.Pending > 0 {
		line("Pending (cancelled)", warnStyle.Render(fmt.Sprint(s.Pending)))
	}

	if len(s.ByRegion) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("By region"))
		b.WriteString("\n")
		for _, k := range sortedKeys(s.ByRegion) {
			line(k, fmt.Sprint(s.ByRegion[k]))
		}
	}

	if len(s.ByCountry) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("By country"))
		b.WriteString("\n")
		for _, k := range sortedKeys(s.ByCountry) {
			line(k, fmt.Sprint(s.ByCountry[k]))
		}
	}

	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

// PrintValidation prints single-number validation results with the display format
func PrintValidation(w io.Writer, results []validator.Result) {
	for _, r := range results {
		if r.Valid {
			fmt.Fprintf(w, "%s %s  %s (%s, %s)\n",
				goodStyle.Render("✓"),
				r.RawInput,
				validator.FormatForDisplay(validator.E164(r), *r.Country),
				r.Country.CountryName,
				r.Country.Region,
			)
			continue
		}

		fmt.Fprintf(w, "%s %s  %s\n", badStyle.Render("✗"), r.RawInput, strings.Join(r.Errors, "; "))
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
