// Package export writes the per-step results of a run as JSONL or as an
// Apache Arrow IPC file.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nvandessel/tradernet/internal/store"
)

// Format names an export format.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatArrow Format = "arrow"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSONL, FormatArrow:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q (valid: jsonl, arrow)", s)
	}
}

// Write writes steps to w in format f.
func Write(w io.Writer, f Format, steps []store.Step) error {
	switch f {
	case FormatJSONL:
		return WriteJSONL(w, steps)
	case FormatArrow:
		return WriteArrow(w, steps)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// WriteJSONL writes one JSON object per step.
func WriteJSONL(w io.Writer, steps []store.Step) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, st := range steps {
		if err := enc.Encode(st); err != nil {
			return fmt.Errorf("failed to encode step %d: %w", st.T, err)
		}
	}
	return bw.Flush()
}

// ReadJSONL reads steps written by WriteJSONL.
func ReadJSONL(r io.Reader) ([]store.Step, error) {
	dec := json.NewDecoder(r)
	var steps []store.Step
	for {
		var st store.Step
		err := dec.Decode(&st)
		if err == io.EOF {
			return steps, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode step %d: %w", len(steps), err)
		}
		steps = append(steps, st)
	}
}
