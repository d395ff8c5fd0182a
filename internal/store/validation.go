package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRun is wrapped by SaveRun when ValidateRun reports problems.
var ErrInvalidRun = errors.New("invalid run")

// ValidationError describes one consistency problem in a run.
type ValidationError struct {
	Field string `json:"field"` // "agents", "edges", "steps"
	Ref   string `json:"ref"`   // the offending agent name, edge or step
	Issue string `json:"issue"` // "dangling", "self-reference", "duplicate", "gap", "count"
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s in %s", e.Issue, e.Ref, e.Field)
}

// ValidateRun checks that a run is internally consistent:
//   - agent indexes are 0..n-1 and names are unique
//   - edges reference known agents, never loop and never repeat
//   - steps are contiguous from StartStep
//   - per-step state counts are non-negative and sum to the population
//
// Agent and edge checks are skipped when the run carries no agents.
func ValidateRun(run *Run) []ValidationError {
	var errs []ValidationError

	names := make(map[string]bool, len(run.Agents))
	for i, a := range run.Agents {
		if a.Index != i {
			errs = append(errs, ValidationError{
				Field: "agents",
				Ref:   fmt.Sprintf("%s (index %d, position %d)", a.Name, a.Index, i),
				Issue: "gap",
			})
		}
		if names[a.Name] {
			errs = append(errs, ValidationError{Field: "agents", Ref: a.Name, Issue: "duplicate"})
		}
		names[a.Name] = true
	}
	if len(run.Agents) > 0 && len(run.Agents) != run.Nodes {
		errs = append(errs, ValidationError{
			Field: "agents",
			Ref:   fmt.Sprintf("%d agents for %d nodes", len(run.Agents), run.Nodes),
			Issue: "count",
		})
	}

	errs = append(errs, validateEdges(run.Edges, names)...)
	errs = append(errs, validateSteps(run)...)
	return errs
}

func validateEdges(edges []Edge, names map[string]bool) []ValidationError {
	var errs []ValidationError
	seen := make(map[Edge]bool, len(edges))
	for _, e := range edges {
		ref := e.Source + "->" + e.Target
		if e.Source == e.Target {
			errs = append(errs, ValidationError{Field: "edges", Ref: ref, Issue: "self-reference"})
		}
		if len(names) > 0 && (!names[e.Source] || !names[e.Target]) {
			errs = append(errs, ValidationError{Field: "edges", Ref: ref, Issue: "dangling"})
		}
		if seen[e] {
			errs = append(errs, ValidationError{Field: "edges", Ref: ref, Issue: "duplicate"})
		}
		seen[e] = true
	}
	return errs
}

func validateSteps(run *Run) []ValidationError {
	var errs []ValidationError
	for i, s := range run.Steps {
		ref := fmt.Sprintf("t=%d", s.T)
		if want := run.StartStep + i; s.T != want {
			errs = append(errs, ValidationError{
				Field: "steps",
				Ref:   fmt.Sprintf("%s (want t=%d)", ref, want),
				Issue: "gap",
			})
		}
		if s.Buyers < 0 || s.Holders < 0 || s.Sellers < 0 || s.Inverted < 0 {
			errs = append(errs, ValidationError{Field: "steps", Ref: ref, Issue: "count"})
			continue
		}
		if run.Nodes > 0 && (s.Buyers+s.Holders+s.Sellers != run.Nodes || s.Inverted > run.Nodes) {
			errs = append(errs, ValidationError{Field: "steps", Ref: ref, Issue: "count"})
		}
	}
	return errs
}

// validationFailure joins validation errors into a single error wrapping
// ErrInvalidRun, or returns nil when there are none.
func validationFailure(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return fmt.Errorf("%w: %s", ErrInvalidRun, strings.Join(parts, "; "))
}
