package transform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDest is returned when an output path would escape the destination.
var ErrOutsideDest = errors.New("output path escapes destination")

// StageError reports a failure while committing outputs.
type StageError struct {
	Op   string // "validate", "write", "rename"
	Path string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type staged struct {
	tmp    string
	target string
}

// Stage writes files under dest in two phases: every file is first written to
// a temporary sibling, and only when all writes succeed are they renamed into
// place. A failure in the first phase removes all temporaries and leaves dest
// untouched. Returns the absolute paths written.
func Stage(dest string, files []File) ([]string, error) {
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return nil, &StageError{Op: "validate", Path: dest, Err: err}
	}

	targets := make([]string, len(files))
	for i, f := range files {
		target, err := safeJoin(absDest, f.Rel)
		if err != nil {
			return nil, &StageError{Op: "validate", Path: f.Rel, Err: err}
		}
		targets[i] = target
	}

	pending := make([]staged, 0, len(files))
	cleanup := func() {
		for _, s := range pending {
			_ = os.Remove(s.tmp)
		}
	}

	for i, f := range files {
		target := targets[i]
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			cleanup()
			return nil, &StageError{Op: "write", Path: target, Err: err}
		}
		tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
		if err != nil {
			cleanup()
			return nil, &StageError{Op: "write", Path: target, Err: err}
		}
		pending = append(pending, staged{tmp: tmp.Name(), target: target})

		_, werr := tmp.Write(f.Data)
		cerr := tmp.Close()
		if werr == nil {
			werr = cerr
		}
		if werr != nil {
			cleanup()
			return nil, &StageError{Op: "write", Path: target, Err: werr}
		}
		if err := os.Chmod(tmp.Name(), 0o644); err != nil {
			cleanup()
			return nil, &StageError{Op: "write", Path: target, Err: err}
		}
	}

	written := make([]string, 0, len(pending))
	for i, s := range pending {
		if err := os.Rename(s.tmp, s.target); err != nil {
			for _, rest := range pending[i:] {
				_ = os.Remove(rest.tmp)
			}
			return written, &StageError{Op: "rename", Path: s.target, Err: err}
		}
		written = append(written, s.target)
	}
	return written, nil
}

// safeJoin joins rel onto dest, rejecting absolute paths and ".." escapes.
func safeJoin(dest, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", ErrOutsideDest
	}
	target := filepath.Join(dest, filepath.FromSlash(rel))
	r, err := filepath.Rel(dest, target)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", ErrOutsideDest
	}
	return target, nil
}
