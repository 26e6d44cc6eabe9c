// Package sandbox declares which host capabilities an execution context
// exposes to script code. A Policy is pure configuration: it has no behavior
// of its own and is consumed once, at context construction. The default is
// all-deny: absent an explicit grant, filesystem, network, and timer access
// are unavailable to scripts regardless of engine defaults.
package sandbox

import (
	"errors"
	"fmt"
	"time"
)

// Grant is a single capability decision. The zero value denies.
type Grant int

const (
	Deny Grant = iota
	Allow
)

func (g Grant) String() string {
	if g == Allow {
		return "allow"
	}
	return "deny"
}

// MountMode defines the permission level for a filesystem mount point.
type MountMode int

const (
	// MountReadOnly allows only read operations.
	MountReadOnly MountMode = iota
	// MountReadWrite allows read and write operations on existing files.
	MountReadWrite
	// MountReadWriteCreate additionally allows creating files and directories.
	MountReadWriteCreate
)

// Mount maps a virtual path visible to scripts onto a host path.
type Mount struct {
	VirtualPath string
	HostPath    string
	Mode        MountMode
}

// Limits bounds resource use by granted capabilities. Zero fields fall back
// to the defaults applied by the capability implementations.
type Limits struct {
	MaxFileSize    int64         // largest file read/write through the fs capability
	MaxBodySize    int64         // largest HTTP response body retained
	MaxURLLength   int           // longest accepted request URL
	RequestTimeout time.Duration // per-request HTTP timeout
}

// Policy enumerates the capability grants for one execution context.
//
// Mounts and AllowedHosts refine the filesystem and network grants; they are
// ignored while the corresponding grant is Deny. A Policy is snapshotted
// (deep-copied) when a context is constructed, so later mutation by the host
// has no effect on a running context.
type Policy struct {
	Filesystem Grant
	Network    Grant
	Timers     Grant

	Mounts       []Mount
	AllowedHosts []string
	Limits       Limits
}

// Default returns the all-deny policy.
func Default() Policy { return Policy{} }

// Clone returns a deep copy of the policy.
func (p Policy) Clone() Policy {
	out := p
	if p.Mounts != nil {
		out.Mounts = make([]Mount, len(p.Mounts))
		copy(out.Mounts, p.Mounts)
	}
	if p.AllowedHosts != nil {
		out.AllowedHosts = make([]string, len(p.AllowedHosts))
		copy(out.AllowedHosts, p.AllowedHosts)
	}
	return out
}

// Validate reports configuration mistakes that would otherwise surface as
// confusing runtime denials.
func (p Policy) Validate() error {
	if p.Filesystem == Allow && len(p.Mounts) == 0 {
		return errors.New("filesystem granted but no mounts configured")
	}
	if p.Network == Allow && len(p.AllowedHosts) == 0 {
		return errors.New("network granted but no allowed hosts configured")
	}
	for _, m := range p.Mounts {
		if m.VirtualPath == "" || m.HostPath == "" {
			return fmt.Errorf("mount %q -> %q: both paths required", m.VirtualPath, m.HostPath)
		}
	}
	return nil
}
