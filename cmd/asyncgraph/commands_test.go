package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/asyncgraph/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand(newCLI(&out, &errOut))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"samples", []string{"samples"}, []string{"NAME", "countdown", "variantPattern"}},
		{"groups", []string{"groups", "yield"}, []string{"Definition yield:", "function 0:"}},
		{"inspect falls back", []string{"inspect", "asyncCall"}, []string{"Definition caller:", "Definition callee:"}},
		{"run countdown", []string{"run", "countdown"}, []string{"2\n1\n0\n", "tasks:"}},
		{"run constant", []string{"run", "constant"}, []string{"= 5"}},
		{"run arithmetic args", []string{"run", "arithmetic", "-a", "1", "-a", "2"}, []string{"return 0 = 3"}},
		{"run panic", []string{"run", "panic"}, []string{"panicked"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestCommands_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		kind errors.Kind
	}{
		{"unknown sample", []string{"run", "nope"}, errors.KindNotFound},
		{"no entry", []string{"run", "variantPattern"}, errors.KindUnsupported},
		{"bad argument", []string{"run", "arithmetic", "-a", "x"}, errors.KindInvalidInput},
		{"missing config", []string{"-c", "/nonexistent/asyncgraph.hcl", "samples"}, errors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			e, ok := err.(*errors.Error)
			if !ok {
				t.Fatalf("error = %v (%T), want *errors.Error", err, err)
			}
			if e.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", e.Kind, tt.kind)
			}
		})
	}
}

func TestBuild_WritesModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yield.wasm")
	out, err := execute(t, "build", "yield", "-o", path)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	bin, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(bin, []byte("\x00asm")) {
		t.Errorf("missing wasm magic: % x", bin[:min(len(bin), 8)])
	}
	if !strings.Contains(out, "yield (async") {
		t.Errorf("output = %q", out)
	}
}

func TestRun_WithConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asyncgraph.hcl")
	src := `
runtime {
  max_tasks = 100
}

external "triple" {
  inputs  = ["i32"]
  outputs = ["i32"]
}
`
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "--config", path, "run", "yield")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "= 3") {
		t.Errorf("output = %q", out)
	}

	_, err = execute(t, "--config", path, "run", "notifier", "--arg", "1")
	if e, ok := err.(*errors.Error); !ok || e.Kind != errors.KindInvalidInput {
		t.Errorf("extra argument: got %v", err)
	}
}

func TestParseArgs(t *testing.T) {
	got, err := parseArgs([]string{"7", "-1", "0x10"})
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{7, ^uint64(0), 16}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %d, want %d", i, got[i], want[i])
		}
	}
}
