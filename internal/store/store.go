// Package store defines the RunStore interface for persisting simulation
// runs and provides SQLite, Postgres and in-memory implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id is unknown to the store.
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted simulation: its metadata, the population, the trust
// edges and the per-step results.
type Run struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Seed      uint64          `json:"seed"`
	Nodes     int             `json:"nodes"`
	StartStep int             `json:"start_step"`
	Config    json.RawMessage `json:"config,omitempty"` // snapshot of the config that produced the run

	Agents []Agent `json:"agents,omitempty"`
	Edges  []Edge  `json:"edges,omitempty"`
	Steps  []Step  `json:"steps,omitempty"`
}

// Agent is one trader's resolved coefficients.
type Agent struct {
	Index int     `json:"index"`
	Name  string  `json:"name"`
	A     float64 `json:"a"`
	B     float64 `json:"b"`
	C     float64 `json:"c"`
	D     float64 `json:"d"`
}

// Edge is a trust edge; Target trusts Source.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Step is the outcome of one time step.
type Step struct {
	T        int     `json:"t"`
	Price    float64 `json:"price"`
	Buyers   int     `json:"buyers"`
	Holders  int     `json:"holders"`
	Sellers  int     `json:"sellers"`
	Inverted int     `json:"inverted"`
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Seed       uint64    `json:"seed"`
	Nodes      int       `json:"nodes"`
	Edges      int       `json:"edges"`
	Steps      int       `json:"steps"`
	FinalPrice float64   `json:"final_price"`
}

// Summary derives the listing view of r.
func (r *Run) Summary() RunSummary {
	s := RunSummary{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		Seed:      r.Seed,
		Nodes:     r.Nodes,
		Edges:     len(r.Edges),
		Steps:     len(r.Steps),
	}
	if len(r.Steps) > 0 {
		s.FinalPrice = r.Steps[len(r.Steps)-1].Price
	}
	return s
}

// RunStore persists simulation runs.
type RunStore interface {
	// SaveRun stores run and returns its id. An empty run.ID is assigned a
	// new time-ordered id; an empty CreatedAt is set to now.
	SaveRun(ctx context.Context, run *Run) (string, error)

	// GetRun returns the full run or ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns summaries, newest first.
	ListRuns(ctx context.Context) ([]RunSummary, error)

	// GetSteps returns the per-step results of a run in step order.
	GetSteps(ctx context.Context, id string) ([]Step, error)

	// DeleteRun removes a run and everything attached to it.
	DeleteRun(ctx context.Context, id string) error

	Close() error
}

// NewRunID returns a UUIDv7 string, so ids sort by creation time.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating run id: %w", err)
	}
	return id.String(), nil
}

// prepareRun fills in the id and timestamp of a run about to be saved.
func prepareRun(run *Run) error {
	if run == nil {
		return fmt.Errorf("run is required")
	}
	if err := validationFailure(ValidateRun(run)); err != nil {
		return err
	}
	if run.ID == "" {
		id, err := NewRunID()
		if err != nil {
			return err
		}
		run.ID = id
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return nil
}
