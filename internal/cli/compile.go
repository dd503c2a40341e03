package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stagehand/internal/compiler"
	"github.com/roach88/stagehand/internal/engine"
	"github.com/roach88/stagehand/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the expanded form of a configuration: every
// declaration flattened into rules with aliases resolved.
type CompilationResult struct {
	SourceHash string           `json:"source_hash"`
	Aliases    []string         `json:"aliases"`
	Managers   []ManagerSummary `json:"managers"`
}

// ManagerSummary describes one compiled manager.
type ManagerSummary struct {
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Settings     map[string]any `json:"settings,omitempty"`
	Declarations int            `json:"declarations"`
	Rules        []RuleSummary  `json:"rules"`
}

// RuleSummary describes one expanded rule by its condition attributes and
// transition references.
type RuleSummary struct {
	Conditions []string `json:"conditions"`
	In         []string `json:"in,omitempty"`
	Out        []string `json:"out,omitempty"`
	RunBefore  []string `json:"run_before,omitempty"`
	RunAfter   []string `json:"run_after,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <config>",
		Short: "Compile a CUE state configuration",
		Long: `Compile a CUE state configuration and print its expanded rules.

The config is a single .cue file or a directory of .cue files. Aliases are
resolved and nested declarations flattened exactly as the engine does at
construction; the result can be written as JSON with --output.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, err := LoadConfig(path)
	if err != nil {
		return outputCompileErrors(formatter, []error{err})
	}

	formatter.VerboseLog("Loaded %d CUE file(s) from %s", len(loadResult.Files), path)

	result, err := summarize(loadResult, formatter)
	if err != nil {
		return outputCompileErrors(formatter, []error{err})
	}

	if opts.Output != "" {
		if err := writeResultToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// summarize expands every manager's declarations.
func summarize(loaded *LoadResult, formatter *OutputFormatter) (*CompilationResult, error) {
	cfg := loaded.Config

	aliases, err := engine.NewAliasManager(cfg.Aliases)
	if err != nil {
		return nil, &LoadError{Code: compiler.ErrInvalidAlias, Message: err.Error()}
	}

	result := &CompilationResult{
		SourceHash: loaded.SourceHash,
		Aliases:    aliases.Names(),
		Managers:   make([]ManagerSummary, 0, len(cfg.Managers)),
	}

	for _, mc := range cfg.Managers {
		formatter.VerboseLog("Expanding manager: %s", mc.ManagerName())

		rules, err := engine.Expand(mc.Declarations, aliases)
		if err != nil {
			code := compiler.ErrInvalidDeclaration
			if engine.IsUnknownAlias(err) {
				code = compiler.ErrUndefinedAlias
			}
			return nil, &LoadError{Code: code, Message: fmt.Sprintf("manager %q: %v", mc.ManagerName(), err)}
		}

		summary := ManagerSummary{
			Name:         mc.ManagerName(),
			Kind:         string(mc.Kind),
			Settings:     mc.Settings,
			Declarations: len(mc.Declarations),
			Rules:        make([]RuleSummary, 0, len(rules)),
		}
		for _, r := range rules {
			summary.Rules = append(summary.Rules, RuleSummary{
				Conditions: r.Conditions.Keys(),
				In:         ir.ItemRefs(r.Then.In),
				Out:        ir.ItemRefs(r.Then.Out),
				RunBefore:  slices.Clone(r.Then.RunBefore),
				RunAfter:   slices.Clone(r.Then.RunAfter),
			})
		}
		result.Managers = append(result.Managers, summary)
	}

	return result, nil
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	ruleCount := 0
	for _, m := range result.Managers {
		ruleCount += len(m.Rules)
	}

	// Human-readable text output
	fmt.Fprintf(formatter.Writer, "✓ Compiled %d manager(s), %d rule(s), %d alias(es)\n\n",
		len(result.Managers), ruleCount, len(result.Aliases))

	for _, m := range result.Managers {
		fmt.Fprintf(formatter.Writer, "%s (%s): %d declaration(s)\n", m.Name, m.Kind, m.Declarations)
		for _, r := range m.Rules {
			fmt.Fprintf(formatter.Writer, "  %s → %s\n", formatList(r.Conditions, "*"), formatList(r.In, "-"))
		}
		fmt.Fprintln(formatter.Writer)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote compiled configuration to %s\n", outputFile)
	}

	return nil
}

// formatList joins names with commas, printing empty when there are none.
func formatList(names []string, empty string) string {
	if len(names) == 0 {
		return empty
	}
	return strings.Join(names, ", ")
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		if err := formatter.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeResultToFile writes the compilation result as indented JSON.
func writeResultToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
