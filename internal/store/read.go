package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReadRuns returns every run, oldest first (UUIDv7 ids sort by creation).
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, source_hash, engine_version, ir_version
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source_hash, engine_version, ir_version
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ReadLatestRun returns the most recent run.
// Returns sql.ErrNoRows if the journal is empty.
func (s *Store) ReadLatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source_hash, engine_version, ir_version
		FROM runs
		ORDER BY id COLLATE BINARY DESC
		LIMIT 1
	`)
	return scanRun(row)
}

// ReadPicks returns the picks of a run in evaluation order.
//
// Returns an empty slice (not nil) if the run has no picks.
func (s *Store) ReadPicks(ctx context.Context, runID string) ([]Pick, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, ord, step, manager, enter, exit, current, in_refs, out_refs
		FROM picks
		WHERE run_id = ?
		ORDER BY ord ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query picks: %w", err)
	}
	defer rows.Close()

	picks := []Pick{}
	for rows.Next() {
		var (
			p                             Pick
			enter, exit, current, in, out string
		)
		if err := rows.Scan(&p.RunID, &p.Ord, &p.Step, &p.Manager, &enter, &exit, &current, &in, &out); err != nil {
			return nil, fmt.Errorf("scan pick: %w", err)
		}
		if p.Enter, err = unmarshalRules(enter); err != nil {
			return nil, err
		}
		if p.Exit, err = unmarshalRules(exit); err != nil {
			return nil, err
		}
		if p.Current, err = unmarshalRefs(current); err != nil {
			return nil, err
		}
		if p.In, err = unmarshalRefs(in); err != nil {
			return nil, err
		}
		if p.Out, err = unmarshalRefs(out); err != nil {
			return nil, err
		}
		picks = append(picks, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate picks: %w", err)
	}
	return picks, nil
}

// ReadSettlements returns the settlements of a run ordered by seq.
//
// Returns an empty slice (not nil) if the run has no settlements.
func (s *Store) ReadSettlements(ctx context.Context, runID string) ([]Settlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, manager, outcome, in_refs, out_refs, error
		FROM settlements
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	settlements := []Settlement{}
	for rows.Next() {
		var (
			st      Settlement
			in, out string
		)
		if err := rows.Scan(&st.RunID, &st.Seq, &st.Manager, &st.Outcome, &in, &out, &st.Error); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		if st.In, err = unmarshalRefs(in); err != nil {
			return nil, err
		}
		if st.Out, err = unmarshalRefs(out); err != nil {
			return nil, err
		}
		settlements = append(settlements, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return settlements, nil
}

// OutcomeCounts returns, per manager, how many jobs settled with each
// outcome.
func (s *Store) OutcomeCounts(ctx context.Context, runID string) (map[string]map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT manager, outcome, COUNT(*)
		FROM settlements
		WHERE run_id = ?
		GROUP BY manager, outcome
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]map[string]int)
	for rows.Next() {
		var manager, outcome string
		var n int
		if err := rows.Scan(&manager, &outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		if counts[manager] == nil {
			counts[manager] = make(map[string]int)
		}
		counts[manager][outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome counts: %w", err)
	}
	return counts, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.Name, &run.SourceHash, &run.EngineVersion, &run.IRVersion)
	if err == sql.ErrNoRows {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}
