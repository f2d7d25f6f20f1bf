package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/foxzi/numcheck/internal/quota"
	"github.com/foxzi/numcheck/internal/rules"
	"github.com/foxzi/numcheck/internal/storage"
	"github.com/foxzi/numcheck/internal/validator"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Uptime  string         `json:"uptime"`
	Rules   int            `json:"rules"`
	Runs    *storage.Stats `json:"runs,omitempty"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// RulesResponse is the response for GET /api/v1/rules
type RulesResponse struct {
	Rules []rules.CountryRule `json:"rules"`
	Total int                 `json:"total"`
}

// ValidateRequest is the request body for POST /api/v1/validate
type ValidateRequest struct {
	Number  string   `json:"number,omitempty"`
	Numbers []string `json:"numbers,omitempty"`
}

// ValidationItem is one validated number
type ValidationItem struct {
	validator.Result
	E164    string `json:"e164,omitempty"`
	Display string `json:"display,omitempty"`
}

// ValidateResponse is the response for POST /api/v1/validate
type ValidateResponse struct {
	Results []ValidationItem `json:"results"`
	Total   int              `json:"total"`
	Valid   int              `json:"valid"`
	Invalid int              `json:"invalid"`
}

// QuotaResponse is the response for GET /api/v1/quota
type QuotaResponse struct {
	Enabled bool           `json:"enabled"`
	Stats   []*quota.Stats `json:"stats"`
	Country *CountryQuota  `json:"country,omitempty"`
}

// CountryQuota previews whether the next lookup for a country would pass
type CountryQuota struct {
	CountryCode       string       `json:"country_code"`
	Allowed           bool         `json:"allowed"`
	DeniedBy          quota.Level  `json:"denied_by,omitempty"`
	RetryAfterSeconds int          `json:"retry_after_seconds,omitempty"`
	Stats             *quota.Stats `json:"stats"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}

	if t := s.deps.Rules.Table(); t != nil {
		resp.Rules = t.Len()
	}
	if s.deps.Runs != nil {
		resp.Runs, _ = s.deps.Runs.Stats(r.Context())
	}

	sendJSON(w, http.StatusOK, resp)
}

// handleRules handles GET /api/v1/rules
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	table := s.deps.Rules.Table()
	if table == nil {
		sendError(w, http.StatusServiceUnavailable, "Rules not loaded")
		return
	}

	list := table.Rules()
	if region := r.URL.Query().Get("region"); region != "" {
		if !rules.Region(region).Valid() {
			sendError(w, http.StatusBadRequest, fmt.Sprintf("unknown region %q", region))
			return
		}
		list = table.ByRegion(rules.Region(region))
	}

	sendJSON(w, http.StatusOK, RulesResponse{Rules: list, Total: len(list)})
}

// handleValidate handles POST /api/v1/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	numbers := req.Numbers
	if req.Number != "" {
		numbers = append([]string{req.Number}, numbers...)
	}
	if len(numbers) == 0 {
		sendError(w, http.StatusBadRequest, "number or numbers is required")
		return
	}
	if s.config.MaxNumbers > 0 && len(numbers) > s.config.MaxNumbers {
		sendError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d numbers per request", s.config.MaxNumbers))
		return
	}

	table := s.deps.Rules.Table()
	if table == nil {
		sendError(w, http.StatusServiceUnavailable, "Rules not loaded")
		return
	}

	resp := ValidateResponse{
		Results: make([]ValidationItem, len(numbers)),
		Total:   len(numbers),
	}

	for i, raw := range numbers {
		res := validator.Validate(raw, table)
		s.deps.Metrics.ObserveValidation(res.Valid, string(res.Code))

		item := ValidationItem{Result: res}
		if res.Valid {
			item.E164 = validator.E164(res)
			item.Display = validator.FormatForDisplay(item.E164, *res.Country)
			resp.Valid++
		} else {
			resp.Invalid++
		}
		resp.Results[i] = item
	}

	sendJSON(w, http.StatusOK, resp)
}

// handleQuota handles GET /api/v1/quota
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if s.deps.Quota == nil {
		sendJSON(w, http.StatusOK, QuotaResponse{Stats: []*quota.Stats{}})
		return
	}

	resp := QuotaResponse{
		Enabled: true,
		Stats:   s.deps.Quota.AllStats(r.Context()),
	}

	if code := countryParam(r.URL.Query().Get("country")); code != "" {
		country, err := s.countryQuota(r, code)
		if err != nil {
			s.logger.Error("failed to check quota", "country_code", code, "error", err)
			sendError(w, http.StatusInternalServerError, "failed to check quota")
			return
		}
		resp.Country = country
	}

	sendJSON(w, http.StatusOK, resp)
}

// countryQuota checks the country quota without counting a lookup
func (s *Server) countryQuota(r *http.Request, code string) (*CountryQuota, error) {
	res, err := s.deps.Quota.Check(r.Context(), &quota.Request{CountryCode: code})
	if err != nil {
		return nil, err
	}
	stats, err := s.deps.Quota.GetStats(r.Context(), quota.LevelCountry, code)
	if err != nil {
		return nil, err
	}

	return &CountryQuota{
		CountryCode:       code,
		Allowed:           res.Allowed,
		DeniedBy:          res.DeniedBy,
		RetryAfterSeconds: int(math.Ceil(res.RetryAfter.Seconds())),
		Stats:             stats,
	}, nil
}

// countryParam normalizes a country code query value. An unescaped "+"
// arrives as a space.
func countryParam(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "+") {
		v = "+" + v
	}
	return v
}

// decodeJSON reads a size-limited JSON body into v, rejecting unknown
// fields. It writes the error response and returns false on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := r.Body
	if s.config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			sendError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			sendError(w, http.StatusBadRequest, "Request body is empty")
		default:
			sendError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		}
		return false
	}
	return true
}

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{Error: message})
}
