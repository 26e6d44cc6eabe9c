package main

import (
	"testing"

	"github.com/modra-dev/modra/engine"
	"github.com/modra-dev/modra/sandbox"
)

func newReplRuntime(t *testing.T) *engine.Runtime {
	t.Helper()
	rt, err := engine.New(sandbox.Default())
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestReplSessionPersistence(t *testing.T) {
	rt := newReplRuntime(t)

	if _, err := evalLine(rt, 1, "let a = 5"); err != nil {
		t.Fatalf("define failed: %v", err)
	}
	v, err := evalLine(rt, 2, "a + 1")
	if err != nil {
		t.Fatalf("use after define failed: %v", err)
	}
	if n, _ := v.Num(); n != 6 {
		t.Errorf("a + 1 = %v, want 6", v)
	}
}

func TestReplFunctionPersistence(t *testing.T) {
	rt := newReplRuntime(t)

	if _, err := evalLine(rt, 1, "function double(n) { return n * 2 }"); err != nil {
		t.Fatalf("define failed: %v", err)
	}
	v, err := evalLine(rt, 2, "double(21)")
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if n, _ := v.Num(); n != 42 {
		t.Errorf("double(21) = %v, want 42", v)
	}
}

func TestReplExpressionResult(t *testing.T) {
	rt := newReplRuntime(t)

	v, err := evalLine(rt, 1, `"hi".toUpperCase()`)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if s, _ := v.Str(); s != "HI" {
		t.Errorf("result = %v, want HI", v)
	}

	// A broken line errors without poisoning the session.
	if _, err := evalLine(rt, 2, "nope()"); err == nil {
		t.Error("call to an undefined function should fail")
	}
	if _, err := evalLine(rt, 3, "1 + 1"); err != nil {
		t.Errorf("session should survive a failed line: %v", err)
	}
}
