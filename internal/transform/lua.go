package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
)

const defaultLuaTimeout = 10 * time.Second

// ErrNoTransformFunc is returned when a script does not define transform().
var ErrNoTransformFunc = errors.New("script does not define a transform function")

// Lua runs a user script over every input. The script must define
//
//	function transform(path, content)
//	  return content            -- or: return content, "new/name.ext"
//	end
//
// Returning nil drops the file. Scripts run in a fresh sandboxed state per
// invocation with only the base, table, string and math libraries.
//
// Options:
//
//	script   string    script path relative to the project root (required)
//	category string    category name reported in errors (default "lua")
//	timeout  duration  per-invocation limit, e.g. "5s" (default 10s)
type Lua struct {
	name string
}

// NewLua creates a Lua unit reporting the given category.
func NewLua(category string) *Lua {
	if category == "" {
		category = "lua"
	}
	return &Lua{name: category}
}

// Category returns the configured category.
func (l *Lua) Category() string { return l.name }

// Transform runs the script on every input.
func (l *Lua) Transform(ctx context.Context, req Request) (Output, error) {
	script := req.Options.String("script", "")
	if script == "" {
		return Output{}, fmt.Errorf("lua: script option is required")
	}
	if !filepath.IsAbs(script) {
		script = filepath.Join(req.Root, filepath.FromSlash(script))
	}
	code, err := os.ReadFile(script)
	if err != nil {
		return Output{}, fmt.Errorf("lua: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, req.Options.Duration("timeout", defaultLuaTimeout))
	defer cancel()

	L := newSandbox()
	defer L.Close()
	L.SetContext(ctx)

	if err := L.DoString(string(code)); err != nil {
		return Output{}, fmt.Errorf("lua: loading %s: %w", script, err)
	}
	fn, ok := L.GetGlobal("transform").(*lua.LFunction)
	if !ok {
		return Output{}, ErrNoTransformFunc
	}

	files := make([]File, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		data, err := req.ReadInput(in)
		if err != nil {
			return Output{}, err
		}
		rel := req.RelToBase(in)

		if err := L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, lua.LString(rel), lua.LString(data)); err != nil {
			return Output{}, fmt.Errorf("lua: transform(%s): %w", rel, err)
		}
		content, name := L.Get(-2), L.Get(-1)
		L.Pop(2)

		if content == lua.LNil {
			continue
		}
		s, ok := content.(lua.LString)
		if !ok {
			return Output{}, fmt.Errorf("lua: transform(%s) returned %s, want string or nil", rel, content.Type())
		}
		if n, ok := name.(lua.LString); ok && n != "" {
			rel = string(n)
		}
		files = append(files, File{Rel: rel, Data: []byte(s)})
	}
	return Commit(req, files)
}

// newSandbox opens only libraries without filesystem or process access.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, unsafe := range []string{"dofile", "loadfile", "load", "loadstring", "module", "require"} {
		L.SetGlobal(unsafe, lua.LNil)
	}
	return L
}
