package compiler_test

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/asyncgraph/compiler"
)

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { compiler.SetLogger(nil) })

	core, logs := observer.New(zapcore.DebugLevel)
	compiler.SetLogger(zap.New(core))
	compiler.Logger().Debug("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].LoggerName != "compiler" {
		t.Errorf("logger name = %q, want %q", entries[0].LoggerName, "compiler")
	}

	compiler.SetLogger(nil)
	if compiler.Logger() == nil {
		t.Fatal("Logger() is nil after SetLogger(nil)")
	}
	compiler.Logger().Debug("dropped")
	if n := logs.Len(); n != 1 {
		t.Errorf("observer got %d entries after reset, want 1", n)
	}
}
