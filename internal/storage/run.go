// Package storage persists batch runs in BoltDB
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/foxzi/numcheck/internal/batch"
)

// Status represents the lifecycle state of a run
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// transitions lists the statuses each status may move to
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning: {StatusCompleted, StatusCancelled, StatusFailed},
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// CanTransition reports whether a run may move from one status to another
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned when a run does not exist
	ErrNotFound = errors.New("run not found")

	// ErrRunActive is returned when deleting a run that has not finished
	ErrRunActive = errors.New("run is still active")

	// ErrInvalidTransition is wrapped by TransitionError
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TransitionError describes a rejected status change
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("run %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Run is a stored batch run
type Run struct {
	ID      string        `json:"id"`
	Status  Status        `json:"status"`
	Source  string        `json:"source,omitempty"`
	Options batch.Options `json:"options"`

	Total     int `json:"total"`
	Processed int `json:"processed"`

	// Input keeps the submitted numbers until the run finishes
	Input []string `json:"input,omitempty"`

	Results []batch.Result `json:"results,omitempty"`
	Summary *batch.Summary `json:"summary,omitempty"`
	Error   string         `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Brief returns a copy without input and per-number results
func (r *Run) Brief() *Run {
	c := *r
	c.Input = nil
	c.Results = nil
	return &c
}

// Report returns the run in the shape report writers expect
func (r *Run) Report() *batch.Run {
	out := &batch.Run{
		Results:   r.Results,
		Cancelled: r.Status == StatusCancelled,
	}
	if r.Summary != nil {
		out.Summary = *r.Summary
	}
	if r.StartedAt != nil {
		out.StartedAt = *r.StartedAt
	}
	if r.FinishedAt != nil {
		out.FinishedAt = *r.FinishedAt
	}
	return out
}

// ListFilter contains list filtering options
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Stats contains run counts per status
type Stats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Cancelled int64 `json:"cancelled"`
	Failed    int64 `json:"failed"`
}
