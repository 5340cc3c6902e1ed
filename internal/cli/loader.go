package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tsq/internal/compiler"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/schema"
)

// LoadMode controls how errors are handled during schema loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading schemas from a directory.
type LoadResult struct {
	Specs []ir.RelationSpec
	// Registry holds the declared relations. It is nil when any
	// relation failed to compile or validate.
	Registry  *schema.Registry
	CUEValue  cue.Value
	FileCount int
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchemas compiles, validates and declares the CUE relation
// declarations found under dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
// A nil result means nothing could be compiled.
func LoadSchemas(dir string, mode LoadMode, logger *slog.Logger) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schemas directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schemas directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	value, err := compiler.LoadFiles(cuecontext.New(), cueFiles)
	if err != nil {
		loadErr := convertCompileError(err, "schemas")
		loadErr.Code = ErrCodeBuildFailed
		return nil, []error{loadErr}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	var errs []error
	specs, compileErrs := compiler.CompileSchema(value)
	for _, err := range compileErrs {
		errs = append(errs, convertCompileError(err, "schemas"))
		if mode == LoadModeFailFast {
			return result, errs
		}
	}
	result.Specs = specs

	for _, verr := range compiler.Validate(specs) {
		errs = append(errs, &LoadError{
			Code:    verr.Code,
			Field:   verr.Field,
			Message: fmt.Sprintf("%s: %s", verr.Field, verr.Message),
		})
		if mode == LoadModeFailFast {
			return result, errs
		}
	}

	if len(specs) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no tables or views found in schemas"})
	}
	if len(errs) > 0 {
		return result, errs
	}

	if logger == nil {
		logger = slog.Default()
	}
	reg := schema.NewRegistry(schema.WithLogger(logger))
	if err := reg.DeclareAll(specs); err != nil {
		return result, []error{&LoadError{Code: ErrCodeDeclareFailed, Message: err.Error()}}
	}
	reg.Freeze()
	result.Registry = reg

	return result, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		// Keep the "table.name: " prefix added while compiling the schema.
		prefix := strings.TrimSuffix(err.Error(), compileErr.Error())
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Field:   compileErr.Field,
			Message: prefix + compileErr.Field + ": " + compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Field:   context,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // Scenario load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeDeclareFailed = "E008" // Relation declaration rejected by the registry
	ErrCodeConfig        = "E009" // Invalid configuration
	ErrCodeStatement     = "E010" // Statement construction or rendering failed
	ErrCodeDatabase      = "E011" // Database connection or execution failed
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "columns":
		return compiler.ErrRelationNoColumns
	case strings.HasSuffix(field, ".type"):
		return compiler.ErrInvalidValueType
	default:
		return ErrCodeGeneric
	}
}
