package engine

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/modra-dev/modra/hostcap"
)

// Option configures a Runtime at creation time.
type Option func(*config)

type config struct {
	entryName   string
	callTimeout time.Duration
	logger      *zap.Logger
	hostfuncs   *hostcap.Registry
	consoleW    io.Writer
}

func defaultConfig() config {
	return config{
		entryName:   "default",
		callTimeout: 30 * time.Second,
		logger:      zap.NewNop(),
	}
}

// WithEntrypoint sets the export name resolved as each module's entry point
// at load time. The default is "default" (the ES default export).
func WithEntrypoint(name string) Option {
	return func(c *config) {
		if name != "" {
			c.entryName = name
		}
	}
}

// WithCallTimeout bounds each load or invocation. On expiry the engine is
// interrupted and the context becomes degraded: later calls fail with
// ErrDegraded and the runtime should be replaced. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(c *config) {
		c.callTimeout = d
	}
}

// WithLogger attaches a structured logger. Script console output and
// load/invoke tracing go through it; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHostFuncs exposes a registry of custom host functions to scripts as
// host.<name>(args). The registry is snapshotted at construction; functions
// registered afterwards are not visible.
func WithHostFuncs(r *hostcap.Registry) Option {
	return func(c *config) {
		c.hostfuncs = r
	}
}

// WithConsoleWriter mirrors script console output to w in addition to the
// structured logger. Useful for interactive sessions.
func WithConsoleWriter(w io.Writer) Option {
	return func(c *config) {
		c.consoleW = w
	}
}

// WithHostFunc exposes a single custom host function to scripts.
func WithHostFunc(name string, fn hostcap.Func) Option {
	return func(c *config) {
		if c.hostfuncs == nil {
			c.hostfuncs = hostcap.NewRegistry()
		}
		c.hostfuncs.Register(name, fn)
	}
}
