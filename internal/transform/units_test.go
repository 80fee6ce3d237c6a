package transform

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/sitesmith/internal/pathset"
)

func setupProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func request(t *testing.T, root, dest string, opts Options, patterns ...string) Request {
	t.Helper()
	ps := pathset.New(patterns...)
	inputs, err := ps.Resolve(root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return Request{
		Root:    root,
		Inputs:  inputs,
		Dest:    filepath.Join(root, dest),
		Sources: ps,
		Options: opts,
	}
}

func readOut(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestCopy_KeepsLayout(t *testing.T) {
	root := setupProject(t, map[string]string{
		"src/fonts/a.woff2":          "A",
		"src/fonts/family/b.woff2":   "B",
		"src/fonts/family/c.ttf.txt": "C",
	})
	req := request(t, root, "build/fonts", nil, "src/fonts/**/*")

	out, err := NewCopy("").Transform(context.Background(), req)
	if err != nil {
		t.Fatalf("Transform error = %v", err)
	}
	if len(out.Files) != 3 {
		t.Errorf("Files = %v, want 3", out.Files)
	}
	if got := readOut(t, filepath.Join(root, "build/fonts/family/b.woff2")); got != "B" {
		t.Errorf("b.woff2 = %q, want B", got)
	}
}

func TestMarkup_TemplatesAndPartials(t *testing.T) {
	root := setupProject(t, map[string]string{
		"src/blocks/header/header.html": `{{define "header"}}<header id="top">{{.Title}}</header>{{end}}`,
		"src/pages/index.html": `<!DOCTYPE html>
<html>
  <head>   <title>Home</title>  </head>
  <body>
    {{template "header" .}}
    <p>{{.Data.tagline}}</p>
  </body>
</html>`,
	})
	opts := Options{
		"partials": []any{"src/blocks/**/*.html"},
		"data":     map[string]any{"tagline": "fast builds"},
	}
	req := request(t, root, "build", opts, "src/pages/*.html")

	out, err := NewMarkup().Transform(context.Background(), req)
	if err != nil {
		t.Fatalf("Transform error = %v", err)
	}
	if len(out.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", out.Warnings)
	}

	got := readOut(t, filepath.Join(root, "build", "index.html"))
	if !strings.Contains(got, `<header id="top">index</header>`) {
		t.Errorf("partial not rendered: %s", got)
	}
	if !strings.Contains(got, "<p>fast builds") {
		t.Errorf("data not rendered: %s", got)
	}
	if strings.Contains(got, "\n    ") {
		t.Errorf("whitespace not collapsed: %q", got)
	}
}

func TestMarkup_Markdown(t *testing.T) {
	root := setupProject(t, map[string]string{
		"src/pages/about.md": "# About\n\nHello *world*.\n",
	})
	req := request(t, root, "build", Options{"minify": false}, "src/pages/*.md")

	if _, err := NewMarkup().Transform(context.Background(), req); err != nil {
		t.Fatalf("Transform error = %v", err)
	}
	got := readOut(t, filepath.Join(root, "build", "about.html"))
	for _, want := range []string{"<h1>About</h1>", "<em>world</em>", "<title>about</title>", "<!DOCTYPE html>"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestMarkup_TemplateErrorWritesNothing(t *testing.T) {
	root := setupProject(t, map[string]string{
		"src/pages/a.html": `<!DOCTYPE html><title>a</title>ok`,
		"src/pages/b.html": `{{template "missing"}}`,
	})
	req := request(t, root, "build", nil, "src/pages/*.html")

	if _, err := NewMarkup().Transform(context.Background(), req); err == nil {
		t.Fatal("Transform succeeded, want template error")
	}
	if _, err := os.Stat(filepath.Join(root, "build", "a.html")); !os.IsNotExist(err) {
		t.Error("a.html written despite b.html failure")
	}
}

func TestMarkup_StrictLint(t *testing.T) {
	root := setupProject(t, map[string]string{
		"src/pages/a.html": `<p id="x"></p><p id="x"></p>`,
	})
	req := request(t, root, "build", Options{"strictLint": true}, "src/pages/*.html")
	if _, err := NewMarkup().Transform(context.Background(), req); err == nil {
		t.Fatal("strict lint passed a document without doctype")
	}

	req.Options = Options{}
	out, err := NewMarkup().Transform(context.Background(), req)
	if err != nil {
		t.Fatalf("non-strict Transform error = %v", err)
	}
	if len(out.Warnings) != 3 {
		t.Errorf("Warnings = %v, want doctype, title and duplicate id", out.Warnings)
	}
}

func TestLint(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"clean", `<!DOCTYPE html><html><head><title>x</title></head><body id="a"></body></html>`, 0},
		{"no doctype", `<html><title>x</title></html>`, 1},
		{"empty title", `<!doctype html><title> </title>`, 1},
		{"dup id", `<!DOCTYPE html><title>x</title><a id="q"></a><b id='q'></b>`, 1},
		{"empty src", `<!DOCTYPE html><title>x</title><img src="">`, 1},
		{"data-id not an id", `<!DOCTYPE html><title>x</title><a data-id="q"></a><b id="q"></b>`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Lint([]byte(tt.doc)); len(got) != tt.want {
				t.Errorf("Lint = %v, want %d findings", got, tt.want)
			}
		})
	}
}

func TestStyles_InlinesImports(t *testing.T) {
	root := setupProject(t, map[string]string{
		"src/styles/main.css":          "@import \"./partials/base.css\";\nbody {\n  color: red;\n}\n",
		"src/styles/partials/base.css": ".a {\n  margin: 0;\n}\n",
	})
	req := request(t, root, "build/css", nil, "src/styles/main.css")

	out, err := NewStyles().Transform(context.Background(), req)
	if err != nil {
		t.Fatalf("Transform error = %v", err)
	}
	if len(out.Files) != 1 || filepath.Base(out.Files[0]) != "main.min.css" {
		t.Fatalf("Files = %v, want main.min.css", out.Files)
	}
	got := readOut(t, out.Files[0])
	if !strings.Contains(got, "margin:0") || !strings.Contains(got, "color:red") {
		t.Errorf("bundle missing rules: %s", got)
	}
	if strings.Contains(got, "@import") {
		t.Errorf("@import not inlined: %s", got)
	}
}

func TestStyles_SyntaxError(t *testing.T) {
	root := setupProject(t, map[string]string{
		"src/styles/main.css": "@import \"./missing.css\";\n",
	})
	req := request(t, root, "build/css", nil, "src/styles/main.css")
	if _, err := NewStyles().Transform(context.Background(), req); err == nil {
		t.Fatal("Transform succeeded with a missing import")
	}
	if _, err := os.Stat(filepath.Join(root, "build")); !os.IsNotExist(err) {
		t.Error("build directory created on failure")
	}
}

func TestScripts_ConcatAndMinify(t *testing.T) {
	root := setupProject(t, map[string]string{
		"src/js/a.js": "// first\nconst greeting = 'hello';\n",
		"src/js/b.js": "const shout = (s) => s.toUpperCase();\nconsole.log(shout(greeting));\n",
	})
	req := request(t, root, "build/js", nil, "src/js/**/*.js")

	out, err := NewScripts().Transform(context.Background(), req)
	if err != nil {
		t.Fatalf("Transform error = %v", err)
	}
	got := readOut(t, filepath.Join(root, "build/js/main.min.js"))
	if strings.Contains(got, "// first") {
		t.Errorf("comment survived minification: %s", got)
	}
	if strings.Contains(got, "greeting") {
		t.Errorf("top-level identifier not mangled: %s", got)
	}
	if len(out.Files) != 1 {
		t.Errorf("Files = %v, want 1", out.Files)
	}
}

func TestScripts_SyntaxError(t *testing.T) {
	root := setupProject(t, map[string]string{"src/js/bad.js": "function ( {"})
	req := request(t, root, "build/js", nil, "src/js/*.js")
	if _, err := NewScripts().Transform(context.Background(), req); err == nil {
		t.Fatal("Transform succeeded on invalid script")
	}
}

func TestImages_Optimize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var raw bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&raw, img); err != nil {
		t.Fatal(err)
	}

	root := setupProject(t, map[string]string{
		"src/img/red.png":    raw.String(),
		"src/img/notes.txt":  "plain",
		"src/img/broken.png": "not a png",
		"src/img/icon.svg":   "<svg/>",
	})
	req := request(t, root, "build/img", nil, "src/img/**/*", "!src/img/*.svg")

	out, err := NewImages().Transform(context.Background(), req)
	if err != nil {
		t.Fatalf("Transform error = %v", err)
	}
	if len(out.Files) != 3 {
		t.Errorf("Files = %v, want 3 (svg excluded)", out.Files)
	}
	if len(out.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one for broken.png", out.Warnings)
	}

	info, err := os.Stat(filepath.Join(root, "build/img/red.png"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= int64(raw.Len()) {
		t.Errorf("optimized size %d not smaller than %d", info.Size(), raw.Len())
	}
	if got := readOut(t, filepath.Join(root, "build/img/broken.png")); got != "not a png" {
		t.Errorf("broken.png = %q, want copied unchanged", got)
	}
}

func TestImages_BadQuality(t *testing.T) {
	root := setupProject(t, nil)
	req := request(t, root, "build/img", Options{"quality": 0}, "src/img/*")
	if _, err := NewImages().Transform(context.Background(), req); err == nil {
		t.Error("quality 0 accepted")
	}
}

func TestSprite_BuildsSymbols(t *testing.T) {
	root := setupProject(t, map[string]string{
		"src/img/arrow.svg": `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><g stroke="#111"><path fill="#000" style="x" d="M0 0h24v24H0z"/></g></svg>`,
		"src/img/close.svg": `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16"><circle fill="red" cx="8" cy="8" r="8"/></svg>`,
	})
	req := request(t, root, "build/img", Options{"minify": false}, "src/img/*.svg")

	out, err := NewSprite().Transform(context.Background(), req)
	if err != nil {
		t.Fatalf("Transform error = %v", err)
	}
	if len(out.Files) != 1 || filepath.Base(out.Files[0]) != "sprite.svg" {
		t.Fatalf("Files = %v, want sprite.svg", out.Files)
	}
	got := readOut(t, out.Files[0])
	for _, want := range []string{`<symbol id="arrow" viewBox="0 0 24 24">`, `<symbol id="close" viewBox="0 0 16 16">`, `d="M0 0h24v24H0z"`} {
		if !strings.Contains(got, want) {
			t.Errorf("sprite missing %q:\n%s", want, got)
		}
	}
	for _, banned := range []string{`fill=`, `stroke=`, `style="x"`} {
		if strings.Contains(got, banned) {
			t.Errorf("sprite still contains %s:\n%s", banned, got)
		}
	}
}

func TestSprite_InvalidSVG(t *testing.T) {
	root := setupProject(t, map[string]string{"src/img/bad.svg": `<div></div>`})
	req := request(t, root, "build/img", nil, "src/img/*.svg")
	if _, err := NewSprite().Transform(context.Background(), req); err == nil {
		t.Fatal("Transform accepted a non-svg root")
	}
}

func TestSymbolID(t *testing.T) {
	tests := map[string]string{
		"src/img/arrow.svg":      "arrow",
		"src/img/arrow left.svg": "arrow-left",
		"src/img/Icon_2 (x).svg": "Icon_2-x",
		"deep/dir/social.fb.svg": "social-fb",
	}
	for in, want := range tests {
		if got := SymbolID(in); got != want {
			t.Errorf("SymbolID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLua_Transform(t *testing.T) {
	root := setupProject(t, map[string]string{
		"scripts/upper.lua": `
function transform(path, content)
  if string.find(path, "skip") then
    return nil
  end
  return string.upper(content), path .. ".up"
end`,
		"src/text/a.txt":    "hello",
		"src/text/skip.txt": "ignored",
	})
	req := request(t, root, "build/text", Options{"script": "scripts/upper.lua"}, "src/text/*")

	out, err := NewLua("").Transform(context.Background(), req)
	if err != nil {
		t.Fatalf("Transform error = %v", err)
	}
	if len(out.Files) != 1 {
		t.Fatalf("Files = %v, want 1", out.Files)
	}
	if got := readOut(t, filepath.Join(root, "build/text/a.txt.up")); got != "HELLO" {
		t.Errorf("a.txt.up = %q, want HELLO", got)
	}
}

func TestLua_Sandboxed(t *testing.T) {
	root := setupProject(t, map[string]string{
		"s.lua":      `function transform(p, c) return io.read("*a") end`,
		"src/a.txt":  "x",
		"nofunc.lua": `x = 1`,
	})
	req := request(t, root, "build", Options{"script": "s.lua"}, "src/*.txt")
	if _, err := NewLua("").Transform(context.Background(), req); err == nil {
		t.Error("script reached the io library")
	}

	req.Options = Options{"script": "nofunc.lua"}
	if _, err := NewLua("").Transform(context.Background(), req); !errors.Is(err, ErrNoTransformFunc) {
		t.Errorf("error = %v, want ErrNoTransformFunc", err)
	}

	req.Options = Options{}
	if _, err := NewLua("").Transform(context.Background(), req); err == nil {
		t.Error("missing script option accepted")
	}
}

func TestNew(t *testing.T) {
	for _, kind := range Kinds() {
		tr, err := New(kind, "fonts")
		if err != nil || tr == nil {
			t.Errorf("New(%q) = %v, %v", kind, tr, err)
		}
	}
	if tr, _ := New("copy", "fonts"); tr.Category() != "fonts" {
		t.Errorf("copy category = %q, want fonts", tr.Category())
	}
	if _, err := New("pug", ""); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("New(pug) error = %v, want ErrUnknownKind", err)
	}
}
