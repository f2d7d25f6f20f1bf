package batch

import (
	"github.com/foxzi/numcheck/internal/reachability"
)

// Summary aggregates a run's results
type Summary struct {
	Total                 int            `json:"total"`
	FormatValid           int            `json:"format_valid"`
	FormatInvalid         int            `json:"format_invalid"`
	ReachabilityConfirmed int            `json:"reachability_confirmed"`
	ReachabilityDenied    int            `json:"reachability_denied"`
	ReachabilityUnknown   int            `json:"reachability_unknown"`
	APICallsMade          int            `json:"api_calls_made"`
	Pending               int            `json:"pending"`
	ByCountry             map[string]int `json:"by_country"`
	ByRegion              map[string]int `json:"by_region"`
	ConfirmationRate      float64        `json:"confirmation_rate"`
}

// Summarize computes a Summary in a single pass. Country and region
// breakdowns count format-valid results only.
func Summarize(results []Result) Summary {
	s := Summary{
		Total:     len(results),
		ByCountry: make(map[string]int),
		ByRegion:  make(map[string]int),
	}

	for _, r := range results {
		if !r.Valid {
			s.FormatInvalid++
			continue
		}

		s.FormatValid++
		if r.Country != nil {
			s.ByCountry[r.Country.CountryName]++
			s.ByRegion[string(r.Country.Region)]++
		}

		if r.Reachability.Checked {
			s.APICallsMade++
		}

		switch r.Reachability.Status {
		case reachability.StatusConfirmed:
			s.ReachabilityConfirmed++
		case reachability.StatusDenied:
			s.ReachabilityDenied++
		case reachability.StatusUnknown:
			s.ReachabilityUnknown++
		}
	}

	if decided := s.ReachabilityConfirmed + s.ReachabilityDenied; decided > 0 {
		s.ConfirmationRate = float64(s.ReachabilityConfirmed) * 100 / float64(decided)
	}

	return s
}
