package merge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResult is returned when a run collects no rows at all. No output
// artifacts are written in that case.
var ErrEmptyResult = errors.New("no rows collected; check the input directory and label map")

// LoadError reports a file that could not be read under any attempted strategy.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SchemaError reports a file without a usable text column.
type SchemaError struct {
	Path    string
	Columns []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("no text-like column in %s (columns: %s)", e.Path, strings.Join(e.Columns, ", "))
}
