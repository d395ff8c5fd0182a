package mcp

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/tradernet/internal/export"
	"github.com/nvandessel/tradernet/internal/network"
	"github.com/nvandessel/tradernet/internal/ratelimit"
	"github.com/nvandessel/tradernet/internal/session"
	"github.com/nvandessel/tradernet/internal/store"
)

const stepsURIPrefix = "tradernet://runs/"

// registerTools registers all tradernet MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tradernet_simulate",
		Description: "Build a random trust network of traders, run the market for a number of steps and store the run",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tradernet_runs",
		Description: "List stored simulation runs, newest first",
	}, s.handleRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tradernet_run",
		Description: "Get the per-step clearing prices and buy/hold/sell counts of a stored run",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tradernet_influence",
		Description: "Rank the traders of a stored run by how widely they are trusted",
	}, s.handleInfluence)
}

// registerResources exposes each run's steps as a JSONL resource.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: stepsURIPrefix + "{id}/steps.jsonl",
		Name:        "tradernet-run-steps",
		Description: "Per-step results of a stored run, one JSON object per line.",
		MIMEType:    "application/jsonl",
	}, s.handleStepsResource)
}

func (s *Server) handleStepsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	id, ok := strings.CutPrefix(uri, stepsURIPrefix)
	if ok {
		id, ok = strings.CutSuffix(id, "/steps.jsonl")
	}
	if !ok || id == "" {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}

	steps, err := s.store.GetSteps(ctx, id)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := export.WriteJSONL(&buf, steps); err != nil {
		return nil, err
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/jsonl",
				Text:     buf.String(),
			},
		},
	}, nil
}

// handleSimulate implements the tradernet_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, out SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tradernet_simulate", start, retErr, auditParams(map[string]any{
			"nodes": args.Nodes, "edge_probability": args.EdgeProbability, "steps": args.Steps,
			"seed": args.Seed, "workers": args.Workers, "memory_length": args.MemoryLength,
		}), out.Run.ID)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "tradernet_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	cfg, err := session.Overrides(args).Apply(s.base)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("invalid simulation request: %w", err)
	}

	run, err := session.RunAndSave(ctx, cfg, s.store, session.Options{Logger: s.logger})
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	prices := make([]float64, len(run.Steps))
	for i, st := range run.Steps {
		prices[i] = st.Price
	}

	s.logger.Info("run stored", "run_id", run.ID, "seed", run.Seed, "steps", len(run.Steps))
	return nil, SimulateOutput{Run: run.Summary(), Prices: prices}, nil
}

// handleRuns implements the tradernet_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tradernet_runs", start, retErr, auditParams(map[string]any{"limit": args.Limit}), "")
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "tradernet_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	runs, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}
	if args.Limit > 0 && args.Limit < len(runs) {
		runs = runs[:args.Limit]
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	return nil, RunsOutput{Runs: runs, Count: len(runs)}, nil
}

// handleRun implements the tradernet_run tool.
func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tradernet_run", start, retErr, nil, args.ID)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "tradernet_run"); err != nil {
		return nil, RunOutput{}, err
	}
	if args.ID == "" {
		return nil, RunOutput{}, fmt.Errorf("id is required")
	}

	run, err := s.store.GetRun(ctx, args.ID)
	if err != nil {
		return nil, RunOutput{}, err
	}
	return nil, RunOutput{Run: run.Summary(), Steps: run.Steps}, nil
}

// handleInfluence implements the tradernet_influence tool.
func (s *Server) handleInfluence(ctx context.Context, req *sdk.CallToolRequest, args InfluenceInput) (_ *sdk.CallToolResult, _ InfluenceOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tradernet_influence", start, retErr, auditParams(map[string]any{"top": args.Top}), args.ID)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "tradernet_influence"); err != nil {
		return nil, InfluenceOutput{}, err
	}
	if args.ID == "" {
		return nil, InfluenceOutput{}, fmt.Errorf("id is required")
	}

	run, err := s.store.GetRun(ctx, args.ID)
	if err != nil {
		return nil, InfluenceOutput{}, err
	}

	g, err := session.RunGraph(run)
	if err != nil {
		return nil, InfluenceOutput{}, err
	}

	top := args.Top
	if top <= 0 {
		top = 10
	}
	scores := network.ComputeInfluence(g, network.DefaultInfluenceConfig())
	return nil, InfluenceOutput{Traders: network.TopInfluencers(scores, top)}, nil
}
