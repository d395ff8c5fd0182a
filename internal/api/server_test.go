package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/nvandessel/tradernet/internal/config"
	"github.com/nvandessel/tradernet/internal/export"
	"github.com/nvandessel/tradernet/internal/ratelimit"
	"github.com/nvandessel/tradernet/internal/store"
)

func setupTestServer(t *testing.T) (*Server, store.RunStore) {
	t.Helper()
	base := config.Default()
	base.Simulation.Nodes = 30
	base.Simulation.EdgeProbability = 0.1
	base.Simulation.Steps = 4
	base.Storage.Driver = "memory"

	rs := store.NewInMemoryRunStore()
	t.Cleanup(func() { rs.Close() })

	s, err := NewServer(Config{Base: base, Store: rs})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s, rs
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func createRun(t *testing.T, s *Server, body string) CreateRunResponse {
	t.Helper()
	w := do(t, s, http.MethodPost, "/v1/runs", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /v1/runs = %d: %s", w.Code, w.Body.String())
	}
	var resp CreateRunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestNewServer_RequiresStore(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Error("expected error without a store")
	}
}

func TestHealth(t *testing.T) {
	s, _ := setupTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestCreateAndGetRun(t *testing.T) {
	s, _ := setupTestServer(t)

	created := createRun(t, s, `{"seed": 12, "steps": 6}`)
	if created.Run.Seed != 12 || created.Run.Steps != 6 || len(created.Prices) != 6 {
		t.Fatalf("unexpected run: %+v", created)
	}

	w := do(t, s, http.MethodGet, "/v1/runs/"+created.Run.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET run = %d: %s", w.Code, w.Body.String())
	}
	var got RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding run: %v", err)
	}
	if len(got.Agents) != 30 || len(got.Steps) != 6 {
		t.Errorf("agents = %d, steps = %d", len(got.Agents), len(got.Steps))
	}
	for i, st := range got.Steps {
		if st.Price != created.Prices[i] {
			t.Errorf("step %d price = %v, want %v", i, st.Price, created.Prices[i])
		}
	}
}

func TestCreateRun_EmptyBodyUsesDefaults(t *testing.T) {
	s, _ := setupTestServer(t)
	created := createRun(t, s, "")
	if created.Run.Nodes != 30 || created.Run.Steps != 4 {
		t.Errorf("expected base config, got %+v", created.Run)
	}
}

func TestCreateRun_BadRequest(t *testing.T) {
	s, _ := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"nodes":`},
		{"probability out of range", `{"edge_probability": 3}`},
		{"too many nodes", `{"nodes": 1000000}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/runs", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestCreateRun_RateLimited(t *testing.T) {
	s, _ := setupTestServer(t)
	s.limiter = ratelimit.NewLimiter(0, 1)

	createRun(t, s, `{}`)
	w := do(t, s, http.MethodPost, "/v1/runs", `{}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestListAndDeleteRuns(t *testing.T) {
	s, _ := setupTestServer(t)
	a := createRun(t, s, `{"seed": 1}`)
	createRun(t, s, `{"seed": 2}`)

	w := do(t, s, http.MethodGet, "/v1/runs", "")
	var list struct {
		Runs  []store.RunSummary `json:"runs"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if list.Count != 2 {
		t.Fatalf("count = %d, want 2", list.Count)
	}

	if w := do(t, s, http.MethodDelete, "/v1/runs/"+a.Run.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("DELETE = %d, want 204", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/v1/runs/"+a.Run.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("GET deleted run = %d, want 404", w.Code)
	}
	if w := do(t, s, http.MethodDelete, "/v1/runs/"+a.Run.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", w.Code)
	}
}

func TestGetSteps_Formats(t *testing.T) {
	s, _ := setupTestServer(t)
	created := createRun(t, s, `{"seed": 5}`)
	base := "/v1/runs/" + created.Run.ID + "/steps"

	w := do(t, s, http.MethodGet, base, "")
	if w.Code != http.StatusOK {
		t.Fatalf("jsonl = %d", w.Code)
	}
	steps, err := export.ReadJSONL(w.Body)
	if err != nil || len(steps) != 4 {
		t.Fatalf("jsonl steps = %d, err %v", len(steps), err)
	}

	w = do(t, s, http.MethodGet, base+"?format=arrow", "")
	if w.Code != http.StatusOK {
		t.Fatalf("arrow = %d", w.Code)
	}
	arrowSteps, err := export.ReadArrow(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("ReadArrow: %v", err)
	}
	for i := range steps {
		if arrowSteps[i] != steps[i] {
			t.Errorf("step %d differs between formats", i)
		}
	}

	if w := do(t, s, http.MethodGet, base+"?format=xml", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown format = %d, want 400", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/v1/runs/missing/steps", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing run = %d, want 404", w.Code)
	}
}

func TestGetGraphAndInfluence(t *testing.T) {
	s, _ := setupTestServer(t)
	created := createRun(t, s, `{"seed": 8}`)

	w := do(t, s, http.MethodGet, "/v1/runs/"+created.Run.ID+"/graph", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "digraph tradernet {") {
		t.Errorf("graph = %d %.40q", w.Code, w.Body.String())
	}

	w = do(t, s, http.MethodGet, "/v1/runs/"+created.Run.ID+"/influence?top=3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("influence = %d", w.Code)
	}
	var inf struct {
		Traders []struct {
			ID    string  `json:"id"`
			Score float64 `json:"score"`
		} `json:"traders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &inf); err != nil {
		t.Fatalf("decoding influence: %v", err)
	}
	if len(inf.Traders) != 3 {
		t.Errorf("traders = %d, want 3", len(inf.Traders))
	}

	if w := do(t, s, http.MethodGet, "/v1/runs/"+created.Run.ID+"/influence?top=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad top = %d, want 400", w.Code)
	}
}

func TestCORS(t *testing.T) {
	s, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/runs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestStream(t *testing.T) {
	s, rs := setupTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream?seed=21&steps=5"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	var steps []float64
	var done *store.RunSummary
	for done == nil {
		var m StreamMessage
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("ReadJSON after %d steps: %v", len(steps), err)
		}
		switch m.Type {
		case MessageStep:
			if m.Step.T != len(steps) {
				t.Errorf("step t = %d, want %d", m.Step.T, len(steps))
			}
			steps = append(steps, m.Step.Price)
		case MessageDone:
			done = m.Run
		default:
			t.Fatalf("unexpected message %+v", m)
		}
	}

	if len(steps) != 5 {
		t.Fatalf("streamed %d steps, want 5", len(steps))
	}
	if done.Seed != 21 || done.FinalPrice != steps[4] {
		t.Errorf("done = %+v", done)
	}

	stored, err := rs.GetSteps(t.Context(), done.ID)
	if err != nil {
		t.Fatalf("GetSteps: %v", err)
	}
	for i := range stored {
		if stored[i].Price != steps[i] {
			t.Errorf("stored step %d = %v, streamed %v", i, stored[i].Price, steps[i])
		}
	}
}

func TestStream_BadQuery(t *testing.T) {
	s, _ := setupTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/stream?nodes=abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
