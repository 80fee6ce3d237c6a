// Package pathset resolves ordered include/exclude glob lists to concrete files.
//
// A PathSet is a list of slash-separated patterns relative to a project root.
// A pattern starting with "!" excludes. Patterns are applied in listed order,
// so an exclusion removes anything matched by earlier inclusions and a later
// inclusion can add paths back:
//
//	set := pathset.New("src/img/**/*", "!src/img/*.svg")
//	files, err := set.Resolve(root)
//
// Resolution happens at call time; nothing is cached between calls.
package pathset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// ErrEmptyPattern is returned for a pattern with no body (e.g. "" or "!").
var ErrEmptyPattern = errors.New("empty pattern")

// PathSet is an ordered list of inclusion and exclusion globs.
type PathSet struct {
	rules []rule
}

type rule struct {
	raw     string
	pattern string
	exclude bool
	globs   []glob.Glob
}

// New compiles the given patterns, panicking on an invalid pattern.
// Use Compile for patterns that come from user input.
func New(patterns ...string) PathSet {
	ps, err := Compile(patterns...)
	if err != nil {
		panic(err)
	}
	return ps
}

// Compile compiles the given patterns in order.
func Compile(patterns ...string) (PathSet, error) {
	var ps PathSet
	for _, p := range patterns {
		r, err := compileRule(p)
		if err != nil {
			return PathSet{}, err
		}
		ps.rules = append(ps.rules, r)
	}
	return ps, nil
}

func compileRule(raw string) (rule, error) {
	r := rule{raw: raw}
	p := strings.TrimSpace(raw)
	if strings.HasPrefix(p, "!") {
		r.exclude = true
		p = p[1:]
	}
	p = Clean(p)
	if p == "" || p == "." {
		return rule{}, fmt.Errorf("pattern %q: %w", raw, ErrEmptyPattern)
	}
	r.pattern = p

	for _, variant := range expandGlobstar(p) {
		g, err := glob.Compile(variant, '/')
		if err != nil {
			return rule{}, fmt.Errorf("pattern %q: %w", raw, err)
		}
		r.globs = append(r.globs, g)
	}
	return r, nil
}

// expandGlobstar returns the pattern plus variants where "**/" matches zero
// directories, which glob.Glob does not do on its own.
func expandGlobstar(p string) []string {
	out := []string{p}
	if !strings.Contains(p, "**/") {
		return out
	}
	collapsed := strings.ReplaceAll(p, "/**/", "/")
	collapsed = strings.TrimPrefix(collapsed, "**/")
	if collapsed != p {
		out = append(out, collapsed)
	}
	return out
}

// Clean normalizes a pattern or path to the slash form used for matching.
func Clean(p string) string {
	p = filepath.ToSlash(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

func (r rule) match(rel string) bool {
	for _, g := range r.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Patterns returns the patterns in their original form.
func (ps PathSet) Patterns() []string {
	out := make([]string, len(ps.rules))
	for i, r := range ps.rules {
		out[i] = r.raw
	}
	return out
}

// Empty reports whether the set has no inclusion pattern.
func (ps PathSet) Empty() bool {
	for _, r := range ps.rules {
		if !r.exclude {
			return false
		}
	}
	return true
}

// Match reports whether rel (relative to the root, either separator) belongs to the set.
// The file need not exist, so removed files can still be classified.
func (ps PathSet) Match(rel string) bool {
	rel = Clean(rel)
	if rel == "" || rel == "." || strings.HasPrefix(rel, "../") {
		return false
	}
	matched := false
	for _, r := range ps.rules {
		if r.exclude {
			if matched && r.match(rel) {
				matched = false
			}
			continue
		}
		if !matched && r.match(rel) {
			matched = true
		}
	}
	return matched
}

// Bases returns the static directory prefix of every inclusion pattern,
// i.e. the deepest directory that contains all of its matches.
func (ps PathSet) Bases() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range ps.rules {
		if r.exclude {
			continue
		}
		b := staticBase(r.pattern)
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

func staticBase(p string) string {
	parts := strings.Split(p, "/")
	var base []string
	for i, part := range parts {
		if i == len(parts)-1 || strings.ContainsAny(part, "*?[{\\") {
			break
		}
		base = append(base, part)
	}
	if len(base) == 0 {
		return "."
	}
	return strings.Join(base, "/")
}

// Resolve walks root and returns the sorted slash-separated relative paths of
// all regular files in the set. Missing base directories yield no files.
func (ps PathSet) Resolve(root string) ([]string, error) {
	found := make(map[string]bool)
	for _, base := range ps.Bases() {
		dir := filepath.Join(root, filepath.FromSlash(base))
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if ps.Match(rel) {
				found[rel] = true
			}
			return nil
		})
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("resolving %s: %w", base, err)
		}
	}

	files := make([]string, 0, len(found))
	for f := range found {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

// String joins the patterns for display.
func (ps PathSet) String() string {
	return strings.Join(ps.Patterns(), ", ")
}
