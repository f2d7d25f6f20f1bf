package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/numcheck/internal/batch"
	"github.com/foxzi/numcheck/internal/events"
	"github.com/foxzi/numcheck/internal/queue"
	"github.com/foxzi/numcheck/internal/report"
	"github.com/foxzi/numcheck/internal/storage"
)

// keepaliveInterval paces comment lines on idle event streams
const keepaliveInterval = 15 * time.Second

// RunOptions overrides the configured batch defaults for one run
type RunOptions struct {
	BatchSize        *int   `json:"batch_size,omitempty"`
	DelayMS          *int64 `json:"delay_ms,omitempty"`
	SkipReachability *bool  `json:"skip_reachability,omitempty"`
	Concurrency      *int   `json:"concurrency,omitempty"`
}

// maxDelayMS is the largest delay_ms that fits in a time.Duration
const maxDelayMS = math.MaxInt64 / int64(time.Millisecond)

// apply returns base with the set fields replaced
func (o *RunOptions) apply(base batch.Options) (batch.Options, error) {
	if o == nil {
		return base, nil
	}
	if o.BatchSize != nil {
		base.BatchSize = *o.BatchSize
	}
	if o.DelayMS != nil {
		if *o.DelayMS > maxDelayMS {
			return base, &batch.ConfigError{
				Field:  "delay_ms",
				Reason: fmt.Sprintf("must not exceed %d, got %d", maxDelayMS, *o.DelayMS),
			}
		}
		base.Delay = time.Duration(*o.DelayMS) * time.Millisecond
	}
	if o.SkipReachability != nil {
		base.SkipReachability = *o.SkipReachability
	}
	if o.Concurrency != nil {
		base.Concurrency = *o.Concurrency
	}
	return base, nil
}

// CreateRunRequest is the request body for POST /api/v1/runs
type CreateRunRequest struct {
	Numbers []string    `json:"numbers"`
	Options *RunOptions `json:"options,omitempty"`
}

// ListRunsResponse is the response for GET /api/v1/runs
type ListRunsResponse struct {
	Runs  []*storage.Run `json:"runs"`
	Total int            `json:"total"`
}

// handleCreateRun handles POST /api/v1/runs
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if len(req.Numbers) == 0 {
		sendError(w, http.StatusBadRequest, "numbers is required")
		return
	}
	if s.config.MaxNumbers > 0 && len(req.Numbers) > s.config.MaxNumbers {
		sendError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d numbers per run", s.config.MaxNumbers))
		return
	}

	opts, err := req.Options.apply(s.deps.Defaults)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.deps.Queue.Submit(r.Context(), req.Numbers, opts, "api")
	if err != nil {
		switch {
		case errors.Is(err, batch.ErrConfiguration):
			sendError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrStopped):
			sendError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.logger.Error("failed to submit run", "error", err)
			sendError(w, http.StatusInternalServerError, "Failed to submit run")
		}
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID)
	sendJSON(w, http.StatusAccepted, run)
}

// handleListRuns handles GET /api/v1/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := storage.ListFilter{
		Limit: 100, // Default limit
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = storage.Status(status)
		if !filter.Status.Valid() {
			sendError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
			return
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = min(l, 1000)
		}
	}

	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	runs, err := s.deps.Runs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	sendJSON(w, http.StatusOK, ListRunsResponse{Runs: runs, Total: len(runs)})
}

// handleGetRun handles GET /api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	run.Input = nil
	sendJSON(w, http.StatusOK, run)
}

// handleRunCSV handles GET /api/v1/runs/{id}/report.csv
func (s *Server) handleRunCSV(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"numcheck-%s.csv\"", run.ID))
	w.WriteHeader(http.StatusOK)

	if err := report.WriteCSV(w, run.Results); err != nil {
		s.logger.Error("failed to write csv report", "run_id", run.ID, "error", err)
	}
}

// handleRunJSON handles GET /api/v1/runs/{id}/report.json
func (s *Server) handleRunJSON(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"numcheck-%s.json\"", run.ID))
	w.WriteHeader(http.StatusOK)

	if err := report.WriteJSON(w, run.Report()); err != nil {
		s.logger.Error("failed to write json report", "run_id", run.ID, "error", err)
	}
}

// handleCancelRun handles POST /api/v1/runs/{id}/cancel
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.deps.Queue.Cancel(r.Context(), id); err != nil {
		s.sendRunError(w, id, err, "cancel run")
		return
	}

	s.logger.Info("run cancel requested via API", "run_id", id)
	sendJSON(w, http.StatusAccepted, map[string]string{
		"status":  "ok",
		"message": "Run will stop after the current chunk",
	})
}

// handleDeleteRun handles DELETE /api/v1/runs/{id}
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.deps.Runs.Delete(r.Context(), id); err != nil {
		s.sendRunError(w, id, err, "delete run")
		return
	}

	s.logger.Info("run deleted", "run_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleRunEvents handles GET /api/v1/runs/{id}/events as a server-sent
// event stream. It ends after the done event.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Subscribe before reading the run so no transition is missed
	ch, unsubscribe := s.deps.Events.Subscribe(r.Context(), id)
	defer unsubscribe()

	run, err := s.deps.Runs.Get(r.Context(), id)
	if err != nil {
		s.sendRunError(w, id, err, "get run")
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	snapshot := events.Event{
		RunID:     run.ID,
		Type:      events.TypeStatus,
		Status:    string(run.Status),
		Completed: run.Processed,
		Total:     run.Total,
		Time:      run.UpdatedAt,
	}
	if run.Status.Terminal() {
		snapshot.Type = events.TypeDone
	}
	if err := writeEvent(w, snapshot); err != nil {
		return
	}
	_ = rc.Flush()
	if run.Status.Terminal() {
		return
	}

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, e); err != nil {
				return
			}
			_ = rc.Flush()
			if e.Type == events.TypeDone {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

// loadRun fetches the run named in the URL, writing the error response
// when it cannot
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*storage.Run, bool) {
	id := chi.URLParam(r, "id")

	run, err := s.deps.Runs.Get(r.Context(), id)
	if err != nil {
		s.sendRunError(w, id, err, "get run")
		return nil, false
	}
	return run, true
}

// sendRunError maps run errors to HTTP statuses
func (s *Server) sendRunError(w http.ResponseWriter, id string, err error, action string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		sendError(w, http.StatusNotFound, "Run not found")
	case errors.Is(err, storage.ErrRunActive):
		sendError(w, http.StatusConflict, "Run is still active")
	case errors.Is(err, queue.ErrRunFinished):
		sendError(w, http.StatusConflict, "Run already finished")
	default:
		s.logger.Error("failed to "+action, "run_id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// writeEvent writes e in text/event-stream framing
func writeEvent(w io.Writer, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Type, data)
	return err
}
