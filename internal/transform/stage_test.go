package transform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStage_WritesAll(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "build")

	written, err := Stage(dest, []File{
		{Rel: "index.html", Data: []byte("<p>hi</p>")},
		{Rel: "css/main.min.css", Data: []byte("a{}")},
	})
	if err != nil {
		t.Fatalf("Stage error = %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("written = %v, want 2 files", written)
	}

	data, err := os.ReadFile(filepath.Join(dest, "css", "main.min.css"))
	if err != nil {
		t.Fatalf("reading staged file: %v", err)
	}
	if string(data) != "a{}" {
		t.Errorf("content = %q, want a{}", data)
	}

	entries, _ := os.ReadDir(dest)
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".html" && e.Name() != "css" {
			t.Errorf("unexpected leftover %s", e.Name())
		}
	}
}

func TestStage_RejectsEscape(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "build")

	tests := []string{"../outside.txt", "/etc/passwd", "", "a/../../x"}
	for _, rel := range tests {
		t.Run(rel, func(t *testing.T) {
			_, err := Stage(dest, []File{
				{Rel: "ok.txt", Data: []byte("ok")},
				{Rel: rel, Data: []byte("bad")},
			})
			if !errors.Is(err, ErrOutsideDest) {
				t.Errorf("Stage(%q) error = %v, want ErrOutsideDest", rel, err)
			}
			var se *StageError
			if !errors.As(err, &se) || se.Op != "validate" {
				t.Errorf("error = %v, want validate StageError", err)
			}
			if _, err := os.Stat(filepath.Join(dest, "ok.txt")); !os.IsNotExist(err) {
				t.Error("ok.txt written despite rejected sibling")
			}
		})
	}
	if _, err := os.Stat(filepath.Join(root, "outside.txt")); !os.IsNotExist(err) {
		t.Error("file written outside destination")
	}
}

func TestStage_WriteFailureLeavesNothing(t *testing.T) {
	dest := t.TempDir()
	// A regular file where a directory is needed makes MkdirAll fail.
	if err := os.WriteFile(filepath.Join(dest, "blocked"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "keep.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Stage(dest, []File{
		{Rel: "keep.txt", Data: []byte("new")},
		{Rel: "blocked/inner.txt", Data: []byte("x")},
	})
	if err == nil {
		t.Fatal("Stage succeeded, want write failure")
	}

	data, _ := os.ReadFile(filepath.Join(dest, "keep.txt"))
	if string(data) != "old" {
		t.Errorf("keep.txt = %q, want old content preserved", data)
	}
	entries, _ := os.ReadDir(dest)
	if len(entries) != 2 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("dest entries = %v, want only blocked and keep.txt", names)
	}
}

func TestOptions(t *testing.T) {
	o := Options{
		"quality": int64(80),
		"name":    "main",
		"pretty":  true,
		"list":    []any{"a", "b"},
		"yamlInt": 7,
	}
	if o.Int("quality", 0) != 80 {
		t.Error("Int(int64) failed")
	}
	if o.Int("yamlInt", 0) != 7 {
		t.Error("Int(int) failed")
	}
	if o.Int("missing", 5) != 5 {
		t.Error("Int default failed")
	}
	if o.String("name", "") != "main" || o.String("missing", "d") != "d" {
		t.Error("String failed")
	}
	if !o.Bool("pretty", false) {
		t.Error("Bool failed")
	}
	if got := o.Strings("list", nil); len(got) != 2 || got[1] != "b" {
		t.Errorf("Strings = %v", got)
	}
	var nilOpts Options
	if nilOpts.String("x", "d") != "d" {
		t.Error("nil Options should return defaults")
	}
}
