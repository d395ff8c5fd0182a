package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// sampleRun builds a small run with every child collection populated.
func sampleRun(seed uint64, created time.Time) *Run {
	return &Run{
		CreatedAt: created,
		Seed:      seed,
		Nodes:     3,
		StartStep: 0,
		Config:    json.RawMessage(`{"simulation":{"nodes":3}}`),
		Agents: []Agent{
			{Index: 0, Name: "0", A: 1, B: 0.5, C: 5, D: -0.1},
			{Index: 1, Name: "1", A: 1, B: -0.2, C: 4, D: 0.3},
			{Index: 2, Name: "2", A: 1, B: 1.1, C: 6, D: 0},
		},
		Edges: []Edge{{Source: "0", Target: "1"}, {Source: "1", Target: "2"}},
		Steps: []Step{
			{T: 0, Price: 0.25, Buyers: 1, Holders: 1, Sellers: 1},
			{T: 1, Price: -0.5, Buyers: 0, Holders: 3, Sellers: 0, Inverted: 1},
		},
	}
}

// testRunStore exercises the RunStore contract against s.
func testRunStore(t *testing.T, s RunStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("save and get", func(t *testing.T) {
		run := sampleRun(1<<63+5, base)
		id, err := s.SaveRun(ctx, run)
		if err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		if id == "" || run.ID != id {
			t.Fatalf("SaveRun() id = %q, run.ID = %q", id, run.ID)
		}

		got, err := s.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got.Seed != run.Seed {
			t.Errorf("Seed = %d, want %d", got.Seed, run.Seed)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
		}
		if len(got.Agents) != 3 || got.Agents[1] != run.Agents[1] {
			t.Errorf("Agents = %+v, want %+v", got.Agents, run.Agents)
		}
		if len(got.Edges) != 2 || got.Edges[1] != run.Edges[1] {
			t.Errorf("Edges = %+v, want %+v", got.Edges, run.Edges)
		}
		if len(got.Steps) != 2 || got.Steps[1] != run.Steps[1] {
			t.Errorf("Steps = %+v, want %+v", got.Steps, run.Steps)
		}
		var cfg map[string]any
		if err := json.Unmarshal(got.Config, &cfg); err != nil {
			t.Errorf("Config is not valid JSON: %v", err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		older, err := s.SaveRun(ctx, sampleRun(2, base.Add(-time.Hour)))
		if err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		newer, err := s.SaveRun(ctx, sampleRun(3, base.Add(time.Hour)))
		if err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}

		runs, err := s.ListRuns(ctx)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) < 3 {
			t.Fatalf("ListRuns() returned %d runs, want at least 3", len(runs))
		}
		if runs[0].ID != newer {
			t.Errorf("first run = %s, want newest %s", runs[0].ID, newer)
		}
		if runs[len(runs)-1].ID != older {
			t.Errorf("last run = %s, want oldest %s", runs[len(runs)-1].ID, older)
		}
		if runs[0].Steps != 2 || runs[0].Edges != 2 || runs[0].FinalPrice != -0.5 {
			t.Errorf("summary = %+v, want 2 steps, 2 edges, final price -0.5", runs[0])
		}
	})

	t.Run("steps", func(t *testing.T) {
		id, err := s.SaveRun(ctx, sampleRun(4, base))
		if err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		steps, err := s.GetSteps(ctx, id)
		if err != nil {
			t.Fatalf("GetSteps() error = %v", err)
		}
		if len(steps) != 2 || steps[0].T != 0 || steps[1].T != 1 {
			t.Errorf("GetSteps() = %+v, want steps 0 and 1", steps)
		}
	})

	t.Run("delete", func(t *testing.T) {
		id, err := s.SaveRun(ctx, sampleRun(5, base))
		if err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		if err := s.DeleteRun(ctx, id); err != nil {
			t.Fatalf("DeleteRun() error = %v", err)
		}
		if _, err := s.GetRun(ctx, id); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("GetRun() after delete error = %v, want ErrRunNotFound", err)
		}
		if _, err := s.GetSteps(ctx, id); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("GetSteps() after delete error = %v, want ErrRunNotFound", err)
		}
		if err := s.DeleteRun(ctx, id); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("second DeleteRun() error = %v, want ErrRunNotFound", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := s.GetRun(ctx, "does-not-exist"); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
		}
	})

	t.Run("empty run", func(t *testing.T) {
		id, err := s.SaveRun(ctx, &Run{Nodes: 0})
		if err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		got, err := s.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if len(got.Agents) != 0 || len(got.Steps) != 0 || got.CreatedAt.IsZero() {
			t.Errorf("empty run round trip = %+v", got)
		}
	})

	t.Run("nil run", func(t *testing.T) {
		if _, err := s.SaveRun(ctx, nil); err == nil {
			t.Error("expected error saving nil run")
		}
	})
}

func TestInMemoryRunStore(t *testing.T) {
	testRunStore(t, NewInMemoryRunStore())
}

func TestInMemoryRunStore_ReturnsCopies(t *testing.T) {
	s := NewInMemoryRunStore()
	ctx := context.Background()

	id, err := s.SaveRun(ctx, sampleRun(1, time.Now()))
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	got, _ := s.GetRun(ctx, id)
	got.Steps[0].Price = 99

	again, _ := s.GetRun(ctx, id)
	if again.Steps[0].Price == 99 {
		t.Error("mutating a returned run changed the stored run")
	}
}

func TestSQLiteRunStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", DBFile)
	s, err := NewSQLiteRunStore(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file was not created: %v", err)
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}

	testRunStore(t, s)
}

func TestSQLiteRunStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), DBFile)

	s, err := NewSQLiteRunStore(ctx, dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	id, err := s.SaveRun(ctx, sampleRun(9, time.Now()))
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	s.Close()

	reopened, err := NewSQLiteRunStore(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() after reopen error = %v", err)
	}
	if got.Seed != 9 {
		t.Errorf("Seed = %d, want 9", got.Seed)
	}
}

// TestPostgresRunStore runs against a live database when
// TRADERNET_TEST_POSTGRES_DSN is set.
func TestPostgresRunStore(t *testing.T) {
	dsn := os.Getenv("TRADERNET_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TRADERNET_TEST_POSTGRES_DSN not set")
	}

	s, err := NewPostgresRunStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("NewPostgresRunStore() error = %v", err)
	}
	defer s.Close()

	testRunStore(t, s)
}

func TestDialect_Rebind(t *testing.T) {
	tests := []struct {
		name  string
		d     dialect
		query string
		want  string
	}{
		{"sqlite unchanged", sqliteDialect, "SELECT * FROM runs WHERE id = ?", "SELECT * FROM runs WHERE id = ?"},
		{"postgres numbered", postgresDialect, "INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"postgres no params", postgresDialect, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.rebind(tt.query); got != tt.want {
				t.Errorf("rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRunID_SortsByTime(t *testing.T) {
	first, err := NewRunID()
	if err != nil {
		t.Fatalf("NewRunID() error = %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := NewRunID()
	if err != nil {
		t.Fatalf("NewRunID() error = %v", err)
	}
	if !(first < second) {
		t.Errorf("expected %s < %s", first, second)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	t.Setenv("TRADERNET_HOME", t.TempDir())

	s, err := Open(ctx, configStorage("memory", ""))
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*InMemoryRunStore); !ok {
		t.Errorf("Open(memory) returned %T", s)
	}

	s, err = Open(ctx, configStorage("", ""))
	if err != nil {
		t.Fatalf("Open(default) error = %v", err)
	}
	defer s.Close()
	sq, ok := s.(*SQLiteRunStore)
	if !ok {
		t.Fatalf("Open(default) returned %T", s)
	}
	want, _ := DefaultDBPath()
	if sq.Path() != want {
		t.Errorf("default path = %q, want %q", sq.Path(), want)
	}

	if _, err := Open(ctx, configStorage("mysql", "")); err == nil {
		t.Error("expected error for unknown driver")
	}
}
