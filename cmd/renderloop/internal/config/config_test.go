package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-drift/renderloop/pkg/timing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadOptional_Missing(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mount.Name != "" || cfg.Timing.Buffer != 0 {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestLoad_MissingIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOptional_Parse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, `
mount:
  subscribe: false
  immediate: true
  name: dashboard
pipeline:
  optimize_prepare: false
timing:
  app_loop: true
  host_render: true
  buffer: 16
log:
  level: debug
`)

	r, err := Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Subscribe {
		t.Error("subscribe should be false")
	}
	if !r.Immediate {
		t.Error("immediate should be true")
	}
	if r.Name != "dashboard" {
		t.Errorf("name = %q, want dashboard", r.Name)
	}
	if r.OptimizePrepare {
		t.Error("optimize_prepare should be false")
	}
	if r.Buffer != 16 {
		t.Errorf("buffer = %d, want 16", r.Buffer)
	}
	if r.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", r.LogLevel)
	}
	if got := r.TimingFlags(); got != timing.AppLoop|timing.HostRender {
		t.Errorf("timing flags = %b", got)
	}
}

func TestLoadOptional_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "mount: [unclosed")

	if _, err := LoadOptional(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolve_Defaults(t *testing.T) {
	r, err := Resolve(t.TempDir())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !r.Subscribe || !r.OptimizePrepare {
		t.Errorf("subscribe and optimize_prepare default to true, got %+v", r)
	}
	if r.Name != "main" {
		t.Errorf("name = %q, want main", r.Name)
	}
	if r.Buffer != DefaultBufferSize {
		t.Errorf("buffer = %d, want %d", r.Buffer, DefaultBufferSize)
	}
	if r.LogLevel != "warn" {
		t.Errorf("log level = %q, want warn", r.LogLevel)
	}
	if r.TimingFlags() != 0 {
		t.Error("timing is off by default")
	}
}

func TestResolve_NameFromModule(t *testing.T) {
	tests := []struct {
		module string
		want   string
	}{
		{"github.com/acme/dashboard", "dashboard"},
		{"github.com/acme/dashboard/v2", "dashboard"},
		{"example", "example"},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeFile(t, dir, "go.mod", "module "+tt.module+"\n\ngo 1.24\n")
		r, err := Resolve(dir)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tt.module, err)
		}
		if r.Name != tt.want {
			t.Errorf("module %s: name = %q, want %q", tt.module, r.Name, tt.want)
		}
	}
}

func TestResolve_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"negative buffer", "timing:\n  buffer: -1\n", "timing.buffer"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"name with space", "mount:\n  name: \"a b\"\n", "mount.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, FileName, tt.content)
			_, err := Resolve(dir)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolved_Marshal(t *testing.T) {
	r, err := Resolve(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "optimize_prepare: true") {
		t.Errorf("unexpected yaml:\n%s", out)
	}
}
