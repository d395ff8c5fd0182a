package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// sqlRunStore implements RunStore over database/sql. The SQLite and
// Postgres stores differ only in how they open the connection and in the
// placeholder dialect.
type sqlRunStore struct {
	db      *sql.DB
	dialect dialect
}

// timeFormat is fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func nowText() string {
	return time.Now().UTC().Format(timeFormat)
}

// SaveRun stores a run and all of its rows in a single transaction.
func (s *sqlRunStore) SaveRun(ctx context.Context, run *Run) (string, error) {
	if err := prepareRun(run); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var config sql.NullString
	if len(run.Config) > 0 {
		config = sql.NullString{String: string(run.Config), Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		s.dialect.rebind(`INSERT INTO runs (id, created_at, seed, nodes, start_step, config) VALUES (?, ?, ?, ?, ?, ?)`),
		run.ID,
		run.CreatedAt.UTC().Format(timeFormat),
		strconv.FormatUint(run.Seed, 10),
		run.Nodes,
		run.StartStep,
		config,
	); err != nil {
		return "", fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	if err := s.insertAgents(ctx, tx, run); err != nil {
		return "", err
	}
	if err := s.insertEdges(ctx, tx, run); err != nil {
		return "", err
	}
	if err := s.insertSteps(ctx, tx, run); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return run.ID, nil
}

func (s *sqlRunStore) insertAgents(ctx context.Context, tx *sql.Tx, run *Run) error {
	if len(run.Agents) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		s.dialect.rebind(`INSERT INTO run_agents (run_id, idx, name, a, b, c, d) VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare agent insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range run.Agents {
		if _, err := stmt.ExecContext(ctx, run.ID, a.Index, a.Name, a.A, a.B, a.C, a.D); err != nil {
			return fmt.Errorf("failed to insert agent %d: %w", a.Index, err)
		}
	}
	return nil
}

func (s *sqlRunStore) insertEdges(ctx context.Context, tx *sql.Tx, run *Run) error {
	if len(run.Edges) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		s.dialect.rebind(`INSERT INTO run_edges (run_id, seq, source, target) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range run.Edges {
		if _, err := stmt.ExecContext(ctx, run.ID, i, e.Source, e.Target); err != nil {
			return fmt.Errorf("failed to insert edge %s -> %s: %w", e.Source, e.Target, err)
		}
	}
	return nil
}

func (s *sqlRunStore) insertSteps(ctx context.Context, tx *sql.Tx, run *Run) error {
	if len(run.Steps) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		s.dialect.rebind(`INSERT INTO run_steps (run_id, t, price, buyers, holders, sellers, inverted) VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare step insert: %w", err)
	}
	defer stmt.Close()

	for _, st := range run.Steps {
		if _, err := stmt.ExecContext(ctx, run.ID, st.T, st.Price, st.Buyers, st.Holders, st.Sellers, st.Inverted); err != nil {
			return fmt.Errorf("failed to insert step %d: %w", st.T, err)
		}
	}
	return nil
}

// GetRun loads a run with its agents, edges and steps.
func (s *sqlRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := s.getRunRow(ctx, id)
	if err != nil {
		return nil, err
	}

	if run.Agents, err = s.getAgents(ctx, id); err != nil {
		return nil, err
	}
	if run.Edges, err = s.getEdges(ctx, id); err != nil {
		return nil, err
	}
	if run.Steps, err = s.GetSteps(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *sqlRunStore) getRunRow(ctx context.Context, id string) (*Run, error) {
	var (
		run       Run
		createdAt string
		seed      string
		config    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT id, created_at, seed, nodes, start_step, config FROM runs WHERE id = ?`), id).
		Scan(&run.ID, &createdAt, &seed, &run.Nodes, &run.StartStep, &config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}

	if err := decodeRunColumns(&run, createdAt, seed); err != nil {
		return nil, err
	}
	if config.Valid {
		run.Config = []byte(config.String)
	}
	return &run, nil
}

func decodeRunColumns(run *Run, createdAt, seed string) error {
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return fmt.Errorf("run %s: invalid created_at %q: %w", run.ID, createdAt, err)
	}
	run.CreatedAt = t

	n, err := strconv.ParseUint(seed, 10, 64)
	if err != nil {
		return fmt.Errorf("run %s: invalid seed %q: %w", run.ID, seed, err)
	}
	run.Seed = n
	return nil
}

func (s *sqlRunStore) getAgents(ctx context.Context, id string) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT idx, name, a, b, c, d FROM run_agents WHERE run_id = ? ORDER BY idx`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.Index, &a.Name, &a.A, &a.B, &a.C, &a.D); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *sqlRunStore) getEdges(ctx context.Context, id string) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT source, target FROM run_edges WHERE run_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.Source, &e.Target); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// GetSteps returns the per-step results of a run ordered by step.
func (s *sqlRunStore) GetSteps(ctx context.Context, id string) ([]Step, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM runs WHERE id = ?`), id).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT t, price, buyers, holders, sellers, inverted FROM run_steps WHERE run_id = ? ORDER BY t`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.T, &st.Price, &st.Buyers, &st.Holders, &st.Sellers, &st.Inverted); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// ListRuns returns run summaries, newest first.
func (s *sqlRunStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.created_at, r.seed, r.nodes,
		       (SELECT COUNT(*) FROM run_edges e WHERE e.run_id = r.id),
		       (SELECT COUNT(*) FROM run_steps st WHERE st.run_id = r.id),
		       COALESCE((SELECT st.price FROM run_steps st WHERE st.run_id = r.id ORDER BY st.t DESC LIMIT 1), 0)
		FROM runs r
		ORDER BY r.created_at DESC, r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var (
			sum       RunSummary
			createdAt string
			seed      string
		)
		if err := rows.Scan(&sum.ID, &createdAt, &seed, &sum.Nodes, &sum.Edges, &sum.Steps, &sum.FinalPrice); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		run := Run{ID: sum.ID}
		if err := decodeRunColumns(&run, createdAt, seed); err != nil {
			return nil, err
		}
		sum.CreatedAt, sum.Seed = run.CreatedAt, run.Seed
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// DeleteRun removes a run; child rows go with it through ON DELETE CASCADE.
func (s *sqlRunStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM runs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Close closes the database connection.
func (s *sqlRunStore) Close() error {
	return s.db.Close()
}
