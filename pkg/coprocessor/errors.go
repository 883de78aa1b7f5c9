package coprocessor

import (
	"errors"
	"fmt"

	"github.com/breeswish/tikv/pkg/storage"
)

// ErrOutdated reports that a request's deadline passed between chunks.
var ErrOutdated = errors.New("coprocessor: request outdated")

// MissingColumnError reports a NOT NULL column absent from a row that has
// no default value.
type MissingColumnError struct {
	ColumnID int64
	Handle   int64
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("coprocessor: column %d of row %d is missing", e.ColumnID, e.Handle)
}

// EvalError reports a failure inside expression evaluation.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return "coprocessor: " + e.Msg }

func evalErrf(format string, args ...any) *EvalError {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}

// IsOther reports whether err belongs to the catch-all class the DAG
// handler encodes into the response body instead of failing the task.
// Deadline, lock and storage errors keep their identity and propagate.
func IsOther(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOutdated) || storage.IsKeyIsLocked(err) {
		return false
	}
	var se *storage.StorageError
	return !errors.As(err, &se)
}
