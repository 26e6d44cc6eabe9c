package sandbox

import "testing"

func TestDefaultDeniesEverything(t *testing.T) {
	p := Default()
	if p.Filesystem != Deny || p.Network != Deny || p.Timers != Deny {
		t.Error("default policy must deny all capabilities")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("default policy should validate: %v", err)
	}
}

func TestZeroGrantDenies(t *testing.T) {
	var g Grant
	if g != Deny {
		t.Error("zero Grant must be Deny")
	}
	if g.String() != "deny" {
		t.Errorf("String() = %q", g.String())
	}
}

func TestValidateGrantWithoutConfig(t *testing.T) {
	p := Default()
	p.Filesystem = Allow
	if err := p.Validate(); err == nil {
		t.Error("filesystem grant without mounts should fail validation")
	}

	p = Default()
	p.Network = Allow
	if err := p.Validate(); err == nil {
		t.Error("network grant without allowed hosts should fail validation")
	}
}

func TestValidateMountPaths(t *testing.T) {
	p := Default()
	p.Filesystem = Allow
	p.Mounts = []Mount{{VirtualPath: "/data", HostPath: ""}}
	if err := p.Validate(); err == nil {
		t.Error("mount with empty host path should fail validation")
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := Policy{
		Filesystem:   Allow,
		Mounts:       []Mount{{VirtualPath: "/data", HostPath: "/tmp/x", Mode: MountReadOnly}},
		Network:      Allow,
		AllowedHosts: []string{"example.com"},
	}
	c := p.Clone()

	p.Mounts[0].Mode = MountReadWriteCreate
	p.AllowedHosts[0] = "evil.com"

	if c.Mounts[0].Mode != MountReadOnly {
		t.Error("clone shares mount backing array with original")
	}
	if c.AllowedHosts[0] != "example.com" {
		t.Error("clone shares allowed hosts backing array with original")
	}
}
