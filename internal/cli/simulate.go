package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stagehand/internal/engine"
	"github.com/roach88/stagehand/internal/harness"
	"github.com/roach88/stagehand/internal/metrics"
	"github.com/roach88/stagehand/internal/store"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database    string // journal database; empty keeps each run in memory
	MetricsFile string // Prometheus textfile written after the suite
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	RunID  string   `json:"run_id,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// SimulationResult holds the overall simulation result.
type SimulationResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario>...",
		Short: "Run scenarios against a simulated subject",
		Long: `Run YAML scenarios against a simulated subject.

Each scenario names a configuration, describes the subject's parts,
operations and children, then changes attributes step by step and checks
the calls the engine makes. Directories contribute their .yaml and .yml
files.

With --db every run is journaled into one database for later inspection
with the trace command. With --metrics-file the engine counters of the
whole suite are written in the Prometheus text format.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, database errors, etc.)

Examples:
  stagehand simulate ./scenarios
  stagehand simulate ./scenarios/bar.yaml --db ./journal.db
  stagehand simulate ./scenarios --metrics-file ./stagehand.prom --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal database")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file")

	return cmd
}

func runSimulate(opts *SimulateOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	files, err := harness.FindScenarios(paths)
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			return NewExitError(ExitCommandError, notFound.Error())
		}
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(files) == 0 {
		if opts.Format == "json" {
			return outputSimulationJSON(formatter, SimulationResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	runOpts := []harness.Option{harness.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr()))}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		// The journal outlives this process; each run needs a fresh id
		runOpts = append(runOpts, harness.WithStore(st), harness.WithRunIDs(engine.UUIDv7Generator{}))
	}

	var collector *metrics.Collector
	if opts.MetricsFile != "" {
		collector = metrics.New()
		runOpts = append(runOpts, harness.WithHooks(collector.Hooks()))
	}

	formatter.VerboseLog("Running %d scenario(s)", len(files))
	suite := harness.RunSuite(cmd.Context(), files, runOpts...)

	if collector != nil {
		if err := collector.WriteTextfile(opts.MetricsFile); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
		formatter.VerboseLog("Wrote metrics to %s", opts.MetricsFile)
	}

	result := buildSimulationResult(files, suite)

	if opts.Format == "json" {
		if err := outputSimulationJSON(formatter, result); err != nil {
			return err
		}
	} else {
		outputSimulationText(cmd, result)
	}

	if !suite.Pass() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

// buildSimulationResult lists scenarios in the order they ran.
func buildSimulationResult(files []string, suite *harness.SuiteResult) SimulationResult {
	failures := make(map[string]harness.ScenarioFailure, len(suite.Failures))
	for _, f := range suite.Failures {
		failures[f.Path] = f
	}

	result := SimulationResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Passed:    suite.Passed,
		Failed:    suite.Failed,
		Total:     suite.TotalScenarios,
	}
	for _, path := range files {
		sr := ScenarioResult{Path: path, Pass: true}
		if run, ok := suite.Results[path]; ok {
			sr.RunID = run.RunID
		}
		if f, failed := failures[path]; failed {
			sr.Pass = false
			sr.Name = f.Scenario
			sr.Errors = strings.Split(f.Error, "\n")
		}
		if sr.Name == "" {
			sr.Name = scenarioName(path)
		}
		result.Scenarios = append(result.Scenarios, sr)
	}
	return result
}

func scenarioName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// outputSimulationJSON outputs the simulation result as JSON.
func outputSimulationJSON(formatter *OutputFormatter, result SimulationResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeScenarioFailed,
			Message: fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total),
		}
	}

	return formatter.Encode(response)
}

// outputSimulationText outputs the simulation result as text.
func outputSimulationText(cmd *cobra.Command, result SimulationResult) {
	w := cmd.OutOrStdout()

	for _, sr := range result.Scenarios {
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Passed: %d/%d\n", result.Passed, result.Total)
}
