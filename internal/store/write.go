package store

import (
	"context"
	"fmt"
)

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, name, source_hash, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Name,
		run.SourceHash,
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WritePick inserts a pick record.
// Uses ON CONFLICT(run_id, ord) DO NOTHING for idempotency.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WritePick(ctx context.Context, p Pick) error {
	enter, err := marshalRules(p.Enter)
	if err != nil {
		return fmt.Errorf("write pick: %w", err)
	}
	exit, err := marshalRules(p.Exit)
	if err != nil {
		return fmt.Errorf("write pick: %w", err)
	}
	current, err := marshalRefs(p.Current)
	if err != nil {
		return fmt.Errorf("write pick: %w", err)
	}
	in, err := marshalRefs(p.In)
	if err != nil {
		return fmt.Errorf("write pick: %w", err)
	}
	out, err := marshalRefs(p.Out)
	if err != nil {
		return fmt.Errorf("write pick: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO picks
		(run_id, ord, step, manager, enter, exit, current, in_refs, out_refs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, ord) DO NOTHING
	`,
		p.RunID,
		p.Ord,
		p.Step,
		p.Manager,
		enter,
		exit,
		current,
		in,
		out,
	)
	if err != nil {
		return fmt.Errorf("write pick: %w", err)
	}
	return nil
}

// WriteSettlement inserts a settlement record.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency: a job settles
// exactly once.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteSettlement(ctx context.Context, st Settlement) error {
	in, err := marshalRefs(st.In)
	if err != nil {
		return fmt.Errorf("write settlement: %w", err)
	}
	out, err := marshalRefs(st.Out)
	if err != nil {
		return fmt.Errorf("write settlement: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settlements
		(run_id, seq, manager, outcome, in_refs, out_refs, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		st.RunID,
		st.Seq,
		st.Manager,
		st.Outcome,
		in,
		out,
		st.Error,
	)
	if err != nil {
		return fmt.Errorf("write settlement: %w", err)
	}
	return nil
}
