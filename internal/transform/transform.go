// Package transform defines the asset transform contract and the built-in units.
//
// A unit turns a set of source files into a set of output files under one
// destination directory. Units build their outputs in memory and commit them
// through Stage, which makes every invocation all-or-nothing: either every
// output file is in place or none of them changed.
package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/sitesmith/internal/pathset"
)

// Request is the input to a single transform invocation.
type Request struct {
	// Root is the absolute project root. Inputs are relative to it.
	Root string

	// Inputs are slash-separated source paths relative to Root, resolved
	// just before the invocation.
	Inputs []string

	// Dest is the absolute destination directory. Units must not write outside it.
	Dest string

	// Sources is the set Inputs were resolved from. Units use its static
	// bases to keep the relative layout of outputs.
	Sources pathset.PathSet

	// Options are the category-specific settings from configuration.
	Options Options
}

// RelToBase strips the longest matching source base from rel, so
// "src/fonts/a/b.woff2" from "src/fonts/**/*" becomes "a/b.woff2".
func (r Request) RelToBase(rel string) string {
	best := ""
	for _, base := range r.Sources.Bases() {
		if base == "." {
			continue
		}
		if strings.HasPrefix(rel, base+"/") && len(base) > len(best) {
			best = base
		}
	}
	if best == "" {
		return rel
	}
	return strings.TrimPrefix(rel, best+"/")
}

// Abs returns the absolute path of a relative input.
func (r Request) Abs(rel string) string {
	return filepath.Join(r.Root, filepath.FromSlash(rel))
}

// ReadInput reads a relative input file.
func (r Request) ReadInput(rel string) ([]byte, error) {
	data, err := os.ReadFile(r.Abs(rel))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	return data, nil
}

// Output describes what an invocation wrote.
type Output struct {
	// Files are the absolute paths of every file written, sorted.
	Files []string

	// Warnings are non-fatal findings such as lint results.
	Warnings []string
}

// Transform is an asset transform unit.
type Transform interface {
	// Category names the asset category (html, styles, scripts, images, sprites, fonts).
	Category() string

	// Transform produces the outputs for req. On error nothing under req.Dest
	// may have been modified.
	Transform(ctx context.Context, req Request) (Output, error)
}

// Func adapts a function to the Transform interface.
type Func struct {
	Name string
	Fn   func(ctx context.Context, req Request) (Output, error)
}

// Category returns the function's category name.
func (f Func) Category() string { return f.Name }

// Transform calls the wrapped function.
func (f Func) Transform(ctx context.Context, req Request) (Output, error) {
	return f.Fn(ctx, req)
}

// File is an output produced in memory, addressed relative to the destination.
type File struct {
	Rel  string
	Data []byte
}

// Commit stages files under req.Dest and returns the resulting Output.
func Commit(req Request, files []File) (Output, error) {
	written, err := Stage(req.Dest, files)
	if err != nil {
		return Output{}, err
	}
	sort.Strings(written)
	return Output{Files: written}, nil
}
