package transform

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownKind is returned by New for an unrecognized transform kind.
var ErrUnknownKind = errors.New("unknown transform kind")

type factory func(category string) Transform

var builtins = map[string]factory{
	"markup":  func(string) Transform { return NewMarkup() },
	"styles":  func(string) Transform { return NewStyles() },
	"scripts": func(string) Transform { return NewScripts() },
	"images":  func(string) Transform { return NewImages() },
	"sprite":  func(string) Transform { return NewSprite() },
	"copy":    func(c string) Transform { return NewCopy(c) },
	"lua":     func(c string) Transform { return NewLua(c) },
}

// New returns a built-in unit by kind. category names the unit for kinds
// that serve several categories (copy, lua); other kinds ignore it.
func New(kind, category string) (Transform, error) {
	f, ok := builtins[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownKind, kind, Kinds())
	}
	return f(category), nil
}

// Kinds returns the built-in kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(builtins))
	for k := range builtins {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
