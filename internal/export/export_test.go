package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nvandessel/tradernet/internal/store"
)

func sampleSteps() []store.Step {
	return []store.Step{
		{T: 0, Price: 0.125, Buyers: 10, Holders: 80, Sellers: 10},
		{T: 1, Price: -1.5, Buyers: 3, Holders: 94, Sellers: 3, Inverted: 2},
		{T: 2, Price: 2.75, Buyers: 0, Holders: 100, Sellers: 0, Inverted: 1},
	}
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, sampleSteps()); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], `"price":-1.5`) || !strings.Contains(lines[1], `"inverted":2`) {
		t.Errorf("unexpected line: %s", lines[1])
	}

	got, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if len(got) != 3 || got[2] != sampleSteps()[2] {
		t.Errorf("ReadJSONL = %+v", got)
	}
}

func TestArrow(t *testing.T) {
	tests := []struct {
		name  string
		steps []store.Step
	}{
		{"three steps", sampleSteps()},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteArrow(&buf, tt.steps); err != nil {
				t.Fatalf("WriteArrow: %v", err)
			}

			got, err := ReadArrow(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("ReadArrow: %v", err)
			}
			if len(got) != len(tt.steps) {
				t.Fatalf("read %d steps, want %d", len(got), len(tt.steps))
			}
			for i := range got {
				if got[i] != tt.steps[i] {
					t.Errorf("step %d = %+v, want %+v", i, got[i], tt.steps[i])
				}
			}
		})
	}
}

func TestReadArrow_NotArrow(t *testing.T) {
	if _, err := ReadArrow(strings.NewReader("not an arrow file")); err == nil {
		t.Error("expected error for non-arrow input")
	}
}

func TestWrite_Formats(t *testing.T) {
	for _, name := range []string{"jsonl", "arrow"} {
		f, err := ParseFormat(name)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", name, err)
		}
		var buf bytes.Buffer
		if err := Write(&buf, f, sampleSteps()); err != nil {
			t.Errorf("Write(%s): %v", name, err)
		}
		if buf.Len() == 0 {
			t.Errorf("Write(%s) produced no output", name)
		}
	}

	if _, err := ParseFormat("csv"); err == nil {
		t.Error("expected error for unknown format")
	}
}
