package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   Level
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"DEBUG", LevelDebug, true},
		{"info", LevelInfo, true},
		{"", LevelInfo, true},
		{"warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"loud", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, Output: &buf, Prefix: "sitesmith"})

	log.Info("hidden")
	log.Warn("shown %d", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message written at warn level: %q", out)
	}
	if !strings.Contains(out, "[WARN] sitesmith: shown 1") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestLogger_FieldsAndSharedLevel(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Level: LevelInfo, Output: &buf})
	child := root.WithComponent("watch").WithField("binding", "styles")

	child.Debug("before")
	root.SetLevel(LevelDebug)
	child.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Errorf("debug written before SetLevel: %q", out)
	}
	if !strings.Contains(out, "after {binding=styles, component=watch}") {
		t.Errorf("fields missing or unsorted: %q", out)
	}
	if !child.Enabled(LevelDebug) {
		t.Error("child does not see the parent's level change")
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("nothing")
	if log.Enabled(LevelError) {
		t.Error("Nop logger reports enabled")
	}
}

func TestOpenFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".sitesmith")
	log, closer, err := OpenFile(dir, "sitesmith.log", LevelInfo)
	if err != nil {
		t.Fatalf("OpenFile error = %v", err)
	}
	log.Info("written to disk")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "sitesmith.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "written to disk") {
		t.Errorf("log file = %q", data)
	}
}
