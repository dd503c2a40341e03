package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/stagehand/internal/compiler"
	"github.com/roach88/stagehand/internal/ir"
)

// LoadResult contains a loaded state configuration.
type LoadResult struct {
	Config     *ir.Config
	CUEValue   cue.Value // The raw CUE value for additional processing
	Files      []string  // CUE files that were loaded, sorted
	SourceHash string    // stagehand/source/v1 hash of the concatenated files
}

// LoadError represents an error that occurred during configuration loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadConfig loads and compiles a state configuration. path is a single
// .cue file or a directory whose top-level .cue files are unified into one
// configuration.
func LoadConfig(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config: %v", err)}
	}

	dir := path
	var files []string
	if info.IsDir() {
		files, err = FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
	} else {
		if filepath.Ext(path) != ".cue" {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file: %s", path)}
		}
		dir = filepath.Dir(path)
		files = []string{path}
	}

	// Files are passed explicitly so package-less configs unify into one
	// instance.
	args := make([]string, len(files))
	for i, f := range files {
		args[i] = filepath.Base(f)
	}
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		loadErr := &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
		if positions := cueerrors.Positions(err); len(positions) > 0 {
			loadErr.Pos = positions[0]
		}
		return nil, loadErr
	}

	cfg, err := compiler.CompileConfig(value)
	if err != nil {
		return nil, convertCompileError(err)
	}

	hash, err := sourceHash(files)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("reading config: %v", err)}
	}

	return &LoadResult{
		Config:     cfg,
		CUEValue:   value,
		Files:      files,
		SourceHash: hash,
	}, nil
}

// FindCUEFiles returns the .cue files directly inside dir, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// sourceHash matches the hash the harness records for a single config
// file: the raw bytes, concatenated in file order.
func sourceHash(files []string) (string, error) {
	var src []byte
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		src = append(src, data...)
	}
	return ir.SourceHash(src), nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
// Configuration errors share the compiler's E1xx codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	ErrCodeScenarioFailed = "E008" // One or more scenarios failed
	ErrCodeRunNotFound    = "E009" // No such run in the journal
)

// MapFieldToErrorCode maps a compiler error field to an error code.
//
//	managers                          -> E101
//	managers[0].kind                  -> E103
//	managers[0].settings              -> E104
//	aliases.can_drink                 -> E110
//	managers[1].states[2].when.age    -> E112
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "managers":
		return compiler.ErrNoManagers
	case strings.HasPrefix(field, "aliases"):
		return compiler.ErrInvalidAlias
	case strings.Contains(field, ".states"):
		return compiler.ErrInvalidDeclaration
	case strings.HasSuffix(field, ".kind"):
		return compiler.ErrUnknownManagerKind
	case strings.Contains(field, ".settings"):
		return compiler.ErrInvalidSettings
	default:
		return ErrCodeGeneric
	}
}
