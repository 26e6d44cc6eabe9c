// Package modra provides an embeddable, sandboxed JavaScript module runtime
// for Go host applications.
//
// # Overview
//
// modra loads JavaScript (or TypeScript) modules into an isolated engine
// instance and lets the host invoke exported functions and read exported
// bindings as neutral, typed values. Scripts run with zero default
// capabilities: filesystem, network, and timer access must be granted
// explicitly through a sandbox policy.
//
// # Basic Usage
//
//	rt, _ := engine.New(sandbox.Default())
//	defer rt.Close()
//
//	h, _ := rt.LoadModule(registry.File("mod.js"))
//	out, _ := rt.Call(h, "double", codec.Num(5))
//
//	var n int
//	codec.Decode(out, &n) // 10
//
// # Enabling Capabilities
//
//	policy := sandbox.Default()
//	policy.Filesystem = sandbox.Allow
//	policy.Mounts = []sandbox.Mount{{VirtualPath: "/data", HostPath: "./input", Mode: sandbox.MountReadOnly}}
//
//	policy.Network = sandbox.Allow
//	policy.AllowedHosts = []string{"api.example.com"}
//
// See the [engine], [codec], [registry], [sandbox], and [hostcap] packages
// for detailed API documentation.
package modra
