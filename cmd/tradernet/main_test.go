package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/tradernet/internal/export"
	"github.com/nvandessel/tradernet/internal/store"
)

// isolateHome points the data directory at a temp dir and moves the working
// directory there so no real config, .env or database is touched.
func isolateHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TRADERNET_HOME", filepath.Join(dir, "home"))
	for _, k := range []string{
		"TRADERNET_NODES", "TRADERNET_STEPS", "TRADERNET_SEED", "TRADERNET_STORAGE_DRIVER",
		"TRADERNET_DB_PATH", "TRADERNET_LOG_LEVEL", "TRADERNET_BACKUP_DIR",
	} {
		t.Setenv(k, "")
	}
	t.Chdir(dir)
	return dir
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("tradernet %s: %v", strings.Join(args, " "), err)
	}
	return out
}

type runOutput struct {
	Run   store.RunSummary `json:"run"`
	Steps []store.Step     `json:"steps"`
}

func simulateJSON(t *testing.T, args ...string) runOutput {
	t.Helper()
	out := mustRun(t, append([]string{"simulate", "--json"}, args...)...)
	var r runOutput
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("decoding simulate output: %v\n%s", err, out)
	}
	return r
}

func TestVersion(t *testing.T) {
	out := mustRun(t, "version", "--json")
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decoding version: %v", err)
	}
	if v["version"] != version {
		t.Errorf("version = %q, want %q", v["version"], version)
	}

	if out := mustRun(t, "version"); !strings.HasPrefix(out, "tradernet version ") {
		t.Errorf("version = %q", out)
	}
}

func TestSimulateStoreAndInspect(t *testing.T) {
	dir := isolateHome(t)

	sim := simulateJSON(t, "--nodes", "30", "--edge-probability", "0.1", "--steps", "4", "--seed", "5")
	if sim.Run.Nodes != 30 || len(sim.Steps) != 4 || sim.Run.Seed != 5 {
		t.Fatalf("unexpected run: %+v", sim.Run)
	}
	id := sim.Run.ID

	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, "runs", "--json")), &list); err != nil {
		t.Fatalf("decoding runs: %v", err)
	}
	if list.Count != 1 {
		t.Fatalf("runs count = %d, want 1", list.Count)
	}

	var shown runOutput
	if err := json.Unmarshal([]byte(mustRun(t, "show", id, "--json")), &shown); err != nil {
		t.Fatalf("decoding show: %v", err)
	}
	for i := range sim.Steps {
		if shown.Steps[i] != sim.Steps[i] {
			t.Errorf("step %d: stored %+v, simulated %+v", i, shown.Steps[i], sim.Steps[i])
		}
	}

	panel := mustRun(t, "show", id, "--table", "2")
	if !strings.Contains(panel, id) || !strings.Contains(panel, "30 traders") {
		t.Errorf("panel missing run details:\n%s", panel)
	}

	jsonl := mustRun(t, "export", id)
	if n := strings.Count(jsonl, "\n"); n != 4 {
		t.Errorf("jsonl export has %d lines, want 4", n)
	}

	arrowPath := filepath.Join(dir, "steps.arrow")
	mustRun(t, "export", id, "--format", "arrow", "-o", arrowPath)
	f, err := os.Open(arrowPath)
	if err != nil {
		t.Fatalf("open arrow export: %v", err)
	}
	defer f.Close()
	steps, err := export.ReadArrow(f)
	if err != nil {
		t.Fatalf("ReadArrow: %v", err)
	}
	if len(steps) != 4 || steps[3] != sim.Steps[3] {
		t.Errorf("arrow steps = %+v", steps)
	}

	if dot := mustRun(t, "graph", id); !strings.HasPrefix(dot, "digraph tradernet {") {
		t.Errorf("graph output = %.40q", dot)
	}

	var inf struct {
		Traders []struct {
			ID string `json:"id"`
		} `json:"traders"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, "influence", id, "--top", "3", "--json")), &inf); err != nil {
		t.Fatalf("decoding influence: %v", err)
	}
	if len(inf.Traders) != 3 {
		t.Errorf("influence traders = %d, want 3", len(inf.Traders))
	}

	mustRun(t, "delete", id)
	if _, err := run(t, "show", id); err == nil {
		t.Error("expected error showing a deleted run")
	}
}

func TestSimulate_NoSave(t *testing.T) {
	isolateHome(t)

	simulateJSON(t, "--nodes", "20", "--steps", "2", "--seed", "1", "--no-save")
	if out := mustRun(t, "runs"); !strings.Contains(out, "no runs stored") {
		t.Errorf("expected no stored runs, got:\n%s", out)
	}
}

func TestSimulate_InvalidFlags(t *testing.T) {
	isolateHome(t)

	if _, err := run(t, "simulate", "--edge-probability", "2"); err == nil {
		t.Error("expected error for edge probability above 1")
	}
	if _, err := run(t, "export", "x", "--format", "arrow"); err == nil {
		t.Error("expected error for arrow export without --output")
	}
}

func TestGraph_FreshNetwork(t *testing.T) {
	isolateHome(t)

	dot := mustRun(t, "graph", "--nodes", "10", "--edge-probability", "0.2", "--steps", "2", "--seed", "3")
	if !strings.HasPrefix(dot, "digraph tradernet {") {
		t.Fatalf("graph output = %.40q", dot)
	}
	if strings.Contains(dot, `fillcolor="white"`) {
		t.Error("fresh network should color every trader by state")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	isolateHome(t)

	path := strings.TrimSpace(mustRun(t, "config", "path"))
	mustRun(t, "config", "init")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if _, err := run(t, "config", "init"); err == nil {
		t.Error("expected error when config exists without --force")
	}
	mustRun(t, "config", "init", "--force")

	out := mustRun(t, "config", "show")
	for _, want := range []string{"simulation.nodes:             1000", "params.c:        N(5, 2)", "storage.driver:  sqlite"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestConfigFlag(t *testing.T) {
	dir := isolateHome(t)

	path := filepath.Join(dir, "custom.yaml")
	yaml := "simulation:\n  nodes: 12\n  steps: 3\n  seed: 99\nstorage:\n  driver: memory\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	sim := simulateJSON(t, "--config", path)
	if sim.Run.Nodes != 12 || len(sim.Steps) != 3 || sim.Run.Seed != 99 {
		t.Errorf("config file not applied: %+v", sim.Run)
	}
}

func TestSplitAddr(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"127.0.0.1:8080", "127.0.0.1", 8080, false},
		{":9000", "", 9000, false},
		{"localhost", "", 0, true},
		{"host:99999", "", 0, true},
	}
	for _, tt := range tests {
		host, port, err := splitAddr(tt.addr)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitAddr(%q) err = %v, wantErr %v", tt.addr, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (host != tt.wantHost || port != tt.wantPort) {
			t.Errorf("splitAddr(%q) = %q, %d", tt.addr, host, port)
		}
	}
}

func TestBackupAndRestore(t *testing.T) {
	dir := isolateHome(t)

	first := simulateJSON(t, "--nodes", "20", "--edge-probability", "0.1", "--steps", "3", "--seed", "1")
	simulateJSON(t, "--nodes", "20", "--edge-probability", "0.1", "--steps", "3", "--seed", "2")

	archive := filepath.Join(dir, "runs.tnb")
	var created struct {
		Path     string `json:"path"`
		RunCount int    `json:"run_count"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, "backup", "--json", "--output", archive)), &created); err != nil {
		t.Fatalf("decoding backup: %v", err)
	}
	if created.Path != archive || created.RunCount != 2 {
		t.Fatalf("backup = %+v", created)
	}

	if out := mustRun(t, "backup", "verify", archive); !strings.Contains(out, "Checksum OK") {
		t.Errorf("verify = %q", out)
	}

	mustRun(t, "delete", first.Run.ID)
	out := mustRun(t, "restore", archive)
	if !strings.Contains(out, "Restored 1 runs (1 skipped") {
		t.Errorf("restore = %q", out)
	}
	if _, err := run(t, "show", first.Run.ID, "--json"); err != nil {
		t.Errorf("restored run not found: %v", err)
	}

	if _, err := run(t, "restore", archive, "--mode", "overwrite"); err == nil {
		t.Error("expected error for unknown restore mode")
	}

	outside := filepath.Join(t.TempDir(), "runs.tnb")
	if _, err := run(t, "backup", "--output", outside); err == nil {
		t.Error("expected backup outside the working and backup directories to be rejected")
	}
	if _, err := run(t, "export", first.Run.ID, "-o", outside); err == nil {
		t.Error("expected export outside the working and backup directories to be rejected")
	}
}

func TestBackup_DefaultDirectoryAndList(t *testing.T) {
	isolateHome(t)
	simulateJSON(t, "--nodes", "10", "--steps", "2", "--seed", "3")

	mustRun(t, "backup")

	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, "backup", "list", "--json")), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if list.Count != 1 {
		t.Errorf("backup count = %d, want 1", list.Count)
	}
}
