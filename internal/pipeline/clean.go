package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafeClean is returned when the directory to clean is the project
// root, contains it, or lies outside it.
var ErrUnsafeClean = errors.New("refusing to clean")

// FSError is a filesystem failure outside a transform.
type FSError struct {
	Op   string
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FSError) Unwrap() error {
	return e.Err
}

// Clean removes dir and everything below it. Removing a directory that does
// not exist succeeds.
func Clean(root, dir string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return &FSError{Op: "clean", Path: root, Err: err}
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return &FSError{Op: "clean", Path: dir, Err: err}
	}

	if absDir == absRoot || !strings.HasPrefix(absDir, absRoot+string(filepath.Separator)) {
		return &FSError{Op: "clean", Path: absDir, Err: fmt.Errorf("%w: %s is not inside %s", ErrUnsafeClean, absDir, absRoot)}
	}

	if err := os.RemoveAll(absDir); err != nil {
		return &FSError{Op: "remove", Path: absDir, Err: err}
	}
	return nil
}
