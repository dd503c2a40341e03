package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stagehand/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	Manager  string // optional - filter to one manager
	List     bool   // list runs instead of tracing one
}

// TraceResult holds the journal entries of one run.
type TraceResult struct {
	Run         store.Run                 `json:"run"`
	Picks       []store.Pick              `json:"picks"`
	Settlements []store.Settlement        `json:"settlements"`
	Outcomes    map[string]map[string]int `json:"outcomes"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a journaled run",
		Long: `Show what the engine did during a journaled run.

The output includes:
- Picks: every evaluation that entered or exited rules, in order
- Settlements: how each queued job ended (applied, superseded, failed)
- Outcomes: settlement counts per manager

Examples:
  stagehand trace --db ./journal.db
  stagehand trace --db ./journal.db --list
  stagehand trace --db ./journal.db --run 0192c0de-... --manager display
  stagehand trace --db ./journal.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace (default: latest)")
	cmd.Flags().StringVar(&opts.Manager, "manager", "", "filter to one manager")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list journaled runs")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// store.Open would create a missing database
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		runs, err := st.ReadRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		if opts.Format == "json" {
			return formatter.Encode(CLIResponse{Status: "ok", Data: runs})
		}
		outputRunList(cmd.OutOrStdout(), runs)
		return nil
	}

	run, err := findRun(ctx, st, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		if opts.RunID == "" {
			if opts.Format == "json" {
				return formatter.Encode(CLIResponse{Status: "ok", Data: []store.Run{}})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}
		_ = formatter.Error(ErrCodeRunNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	result, err := buildTrace(ctx, st, run, opts.Manager)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	if opts.Format == "json" {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

func findRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	if id == "" {
		return st.ReadLatestRun(ctx)
	}
	return st.ReadRun(ctx, id)
}

// buildTrace reads a run's journal. A non-empty manager keeps only that
// manager's entries.
func buildTrace(ctx context.Context, st *store.Store, run store.Run, manager string) (TraceResult, error) {
	picks, err := st.ReadPicks(ctx, run.ID)
	if err != nil {
		return TraceResult{}, err
	}
	settlements, err := st.ReadSettlements(ctx, run.ID)
	if err != nil {
		return TraceResult{}, err
	}
	outcomes, err := st.OutcomeCounts(ctx, run.ID)
	if err != nil {
		return TraceResult{}, err
	}

	if manager != "" {
		picks = slices.DeleteFunc(picks, func(p store.Pick) bool { return p.Manager != manager })
		settlements = slices.DeleteFunc(settlements, func(s store.Settlement) bool { return s.Manager != manager })
		maps.DeleteFunc(outcomes, func(name string, _ map[string]int) bool { return name != manager })
	}

	return TraceResult{
		Run:         run,
		Picks:       picks,
		Settlements: settlements,
		Outcomes:    outcomes,
	}, nil
}

func outputRunList(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %s\n", r.ID, truncateHash(r.SourceHash), r.Name)
	}
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Run: %s (%s)\n", result.Run.ID, result.Run.Name)
	fmt.Fprintf(w, "Source: %s\n", truncateHash(result.Run.SourceHash))
	fmt.Fprintf(w, "Engine: %s (IR %s)\n", result.Run.EngineVersion, result.Run.IRVersion)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Picks ===")
	if len(result.Picks) == 0 {
		fmt.Fprintln(w, "  (no picks)")
	}
	for _, p := range result.Picks {
		fmt.Fprintf(w, "  [%d] step %d %s in: %s out: %s\n",
			p.Ord, p.Step, p.Manager, formatList(p.In, "-"), formatList(p.Out, "-"))
		if verbose {
			fmt.Fprintf(w, "       current: %s\n", formatList(p.Current, "-"))
			for _, rule := range p.Enter {
				fmt.Fprintf(w, "       enter: {%s}\n", strings.Join(rule, ", "))
			}
			for _, rule := range p.Exit {
				fmt.Fprintf(w, "       exit: {%s}\n", strings.Join(rule, ", "))
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Settlements ===")
	if len(result.Settlements) == 0 {
		fmt.Fprintln(w, "  (no settlements)")
	}
	for _, s := range result.Settlements {
		fmt.Fprintf(w, "  [%d] %s %s", s.Seq, s.Manager, s.Outcome)
		if s.Error != "" {
			fmt.Fprintf(w, ": %s", s.Error)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Outcomes ===")
	for _, name := range slices.Sorted(maps.Keys(result.Outcomes)) {
		counts := result.Outcomes[name]
		var parts []string
		for _, outcome := range slices.Sorted(maps.Keys(counts)) {
			parts = append(parts, fmt.Sprintf("%s=%d", outcome, counts[outcome]))
		}
		fmt.Fprintf(w, "  %s: %s\n", name, strings.Join(parts, " "))
	}
}

// truncateHash shortens a hex hash for display.
func truncateHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
