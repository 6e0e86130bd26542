// Package store persists analysis runs to PostgreSQL.
package store

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"workreq/output"
)

//go:embed sql/schema.sql
var schemaSQL string

// Run is one invocation of the pipeline and everything it produced.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Config     string // rendered configuration, for provenance
	Variants   []*output.Results
}

// NewRun starts a run with a fresh identifier.
func NewRun(started time.Time) *Run {
	return &Run{ID: uuid.New(), StartedAt: started}
}

// Store writes runs through a small connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects and verifies the connection.
func Open(ctx context.Context, connStr string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the result tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

var (
	coefficientCols = []string{
		"run_id", "variant", "outcome", "family", "formula", "term",
		"estimate", "std_error", "t_value", "p_value", "n", "weighted_n", "df",
	}
	tabulationCols = []string{
		"run_id", "variant", "outcome", "grp", "period", "n",
		"total", "count", "percentage", "std_error",
	}
	countCols   = []string{"run_id", "variant", "state", "period", "count"}
	failureCols = []string{"run_id", "variant", "outcome", "family", "error"}
)

// SaveRun writes the run row and all of its result rows in a single
// transaction; nothing is visible unless everything is.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO runs (id, started_at, finished_at, config) VALUES ($1, $2, $3, $4)`,
		run.ID, run.StartedAt, run.FinishedAt, run.Config,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	var coefs, tabs, counts, fails [][]interface{}
	for _, v := range run.Variants {
		for _, m := range v.Models {
			coefs = append(coefs, []interface{}{
				run.ID, m.Variant, m.Outcome, m.Family, m.Formula, m.Term,
				m.Estimate, nullFloat(m.StdError), nullFloat(m.TValue), nullFloat(m.PValue),
				m.N, m.WeightedN, m.DF,
			})
		}
		for _, t := range v.Tabs {
			tabs = append(tabs, []interface{}{
				run.ID, t.Variant, t.Outcome, t.Group, t.Period, t.N,
				t.Total, t.Count, t.Percentage, nullFloat(t.StdError),
			})
		}
		for _, c := range v.Counts {
			counts = append(counts, []interface{}{run.ID, c.Variant, c.State, c.Period, c.Count})
		}
		for _, f := range v.Failures {
			fails = append(fails, []interface{}{run.ID, f.Variant, f.Outcome, f.Family, f.Error})
		}
	}

	for _, c := range []struct {
		table string
		cols  []string
		rows  [][]interface{}
	}{
		{"coefficients", coefficientCols, coefs},
		{"tabulations", tabulationCols, tabs},
		{"sample_counts", countCols, counts},
		{"fit_failures", failureCols, fails},
	} {
		if len(c.rows) == 0 {
			continue
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{c.table}, c.cols, pgx.CopyFromRows(c.rows)); err != nil {
			return fmt.Errorf("copy %s: %w", c.table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// nullFloat maps NaN and infinities to SQL NULL.
func nullFloat(f float64) pgtype.Float8 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: f, Valid: true}
}
