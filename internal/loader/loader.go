// Package loader reads clinical pathway modules from JSON files into
// validated, immutable module graphs.
//
// Loading is a three-stage pipeline: the raw JSON is validated against
// an embedded CUE schema (shape, enums, closed structs, so typos carry a
// file position), the generic state maps are decoded into typed state
// definitions, and the assembled module is checked against the graph
// invariants the engine relies on. All file I/O in the system lives
// here; the engine only ever sees the finished module set.
package loader

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/cohortgen/cohortgen/internal/pathway"
)

//go:embed schema.cue
var schemaSource string

// Options adjusts load-time policy.
type Options struct {
	// LenientWeights accepts distributed weights with any positive sum.
	// The default rejects sums outside the engine's tolerance at load, so
	// a malformed module fails the run before any patient reaches it.
	LenientWeights bool
}

// LoadError is a module loading failure with file context and, when the
// schema produced one, a source position.
type LoadError struct {
	File    string
	Message string
	Pos     token.Pos
	Err     error
}

func (e *LoadError) Error() string {
	switch {
	case e.Pos.IsValid():
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	default:
		return e.Message
	}
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader validates and decodes module files. The CUE schema compiles
// once per Loader; a Loader is not safe for concurrent use.
type Loader struct {
	opts   Options
	ctx    *cue.Context
	schema cue.Value
}

// New builds a Loader with the embedded schema.
func New(opts Options) (*Loader, error) {
	ctx := cuecontext.New()
	compiled := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := compiled.Err(); err != nil {
		return nil, fmt.Errorf("compiling module schema: %w", err)
	}
	schema := compiled.LookupPath(cue.ParsePath("#Module"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("module schema has no #Module definition: %w", err)
	}
	return &Loader{opts: opts, ctx: ctx, schema: schema}, nil
}

// LoadDir loads every .json file in dir, keyed by module name. Files
// are visited in sorted order and loading fails fast on the first bad
// file or duplicate module name.
func (l *Loader) LoadDir(dir string) (map[string]*pathway.Module, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{File: dir, Message: "modules directory not accessible", Err: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{File: dir, Message: "not a directory"}
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, &LoadError{File: dir, Message: "scanning modules directory", Err: err}
	}
	if len(paths) == 0 {
		return nil, &LoadError{File: dir, Message: "no module files found"}
	}
	sort.Strings(paths)

	modules := make(map[string]*pathway.Module, len(paths))
	byFile := make(map[string]string, len(paths))
	for _, path := range paths {
		m, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := modules[m.Name]; dup {
			return nil, &LoadError{
				File:    path,
				Message: fmt.Sprintf("module %q already defined in %s", prev.Name, byFile[m.Name]),
			}
		}
		modules[m.Name] = m
		byFile[m.Name] = path
	}
	return modules, nil
}

// LoadFile loads one module file: schema validation, decoding, then the
// graph invariants.
func (l *Loader) LoadFile(path string) (*pathway.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "reading module file", Err: err}
	}

	expr, err := cuejson.Extract(path, data)
	if err != nil {
		return nil, l.cueError(path, "module file is not valid JSON", err)
	}
	value := l.ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return nil, l.cueError(path, "building module value", err)
	}

	unified := l.schema.Unify(value)
	if err := unified.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return nil, l.cueError(path, "module does not match schema", err)
	}

	m, err := decodeModule(data)
	if err != nil {
		return nil, &LoadError{File: path, Message: err.Error(), Err: err}
	}
	if err := m.Validate(); err != nil {
		return nil, &LoadError{File: path, Message: err.Error(), Err: err}
	}
	if err := checkWeights(m, l.opts.LenientWeights); err != nil {
		return nil, &LoadError{File: path, Message: err.Error(), Err: err}
	}
	return m, nil
}

// checkWeights applies the load-time distributed weight policy. The
// engine re-applies the same policy at evaluation, so modules injected
// without the loader get the same treatment.
func checkWeights(m *pathway.Module, lenient bool) error {
	for _, name := range m.StateNames() {
		tr, ok := m.States[name].Transition().(*pathway.DistributedTransition)
		if !ok {
			continue
		}
		if _, err := tr.Normalized(lenient); err != nil {
			return fmt.Errorf("state %q: %w", name, err)
		}
	}
	return nil
}

// cueError extracts the first positioned error from a CUE validation
// failure.
func (l *Loader) cueError(path, message string, err error) *LoadError {
	le := &LoadError{File: path, Message: message, Err: err}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return le
	}
	first := errs[0]
	le.Message = fmt.Sprintf("%s: %s", message, first.Error())
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
