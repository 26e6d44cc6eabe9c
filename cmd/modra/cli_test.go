package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/modra-dev/modra/sandbox"
)

func TestParseMount(t *testing.T) {
	m, err := parseMount("/data:/tmp/host:ro")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.VirtualPath != "/data" || m.HostPath != "/tmp/host" || m.Mode != sandbox.MountReadOnly {
		t.Errorf("mount = %+v", m)
	}

	m, err = parseMount("/out:/tmp/out:rwc")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.Mode != sandbox.MountReadWriteCreate {
		t.Errorf("mode = %v, want rwc", m.Mode)
	}
}

func TestParseMountInvalid(t *testing.T) {
	cases := []string{
		"/data:/tmp",          // missing mode
		"/data:/tmp:rw:extra", // too many parts
		"/data:/tmp:banana",   // unknown mode
	}
	for _, spec := range cases {
		if _, err := parseMount(spec); err == nil {
			t.Errorf("%q: expected error", spec)
		}
	}
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs([]string{`5`, `"hello"`, `{"k": true}`, `[1, 2]`, `null`})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(args) != 5 {
		t.Fatalf("got %d args", len(args))
	}
	if n, _ := args[0].Num(); n != 5 {
		t.Errorf("args[0] = %v", args[0])
	}
	if s, _ := args[1].Str(); s != "hello" {
		t.Errorf("args[1] = %v", args[1])
	}
	if m, ok := args[2].Map(); !ok || len(m) != 1 {
		t.Errorf("args[2] = %v", args[2])
	}
	if seq, ok := args[3].Seq(); !ok || len(seq) != 2 {
		t.Errorf("args[3] = %v", args[3])
	}
	if !args[4].IsNull() {
		t.Errorf("args[4] = %v", args[4])
	}
}

func TestParseArgsInvalidJSON(t *testing.T) {
	if _, err := parseArgs([]string{`{not json`}); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	addSessionFlags(cmd)
	return cmd
}

func TestBuildPolicyDefaultDeny(t *testing.T) {
	policy, err := buildPolicy(newTestCommand())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if policy.Filesystem != sandbox.Deny || policy.Network != sandbox.Deny || policy.Timers != sandbox.Deny {
		t.Error("policy without flags must deny everything")
	}
	if err := policy.Validate(); err != nil {
		t.Errorf("default policy should validate: %v", err)
	}
}

func TestBuildPolicyFlags(t *testing.T) {
	cmd := newTestCommand()
	cmd.Flags().Set("mount", "/data:/tmp:ro")
	cmd.Flags().Set("allow-host", "example.com")
	cmd.Flags().Set("allow-timers", "true")

	policy, err := buildPolicy(cmd)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if policy.Filesystem != sandbox.Allow || len(policy.Mounts) != 1 {
		t.Error("mount flag should grant filesystem")
	}
	if policy.Network != sandbox.Allow || len(policy.AllowedHosts) != 1 {
		t.Error("allow-host flag should grant network")
	}
	if policy.Timers != sandbox.Allow {
		t.Error("allow-timers flag should grant timers")
	}
}

func TestBuildPolicyBadMount(t *testing.T) {
	cmd := newTestCommand()
	cmd.Flags().Set("mount", "broken")

	if _, err := buildPolicy(cmd); err == nil {
		t.Error("invalid mount spec should fail")
	}
}
