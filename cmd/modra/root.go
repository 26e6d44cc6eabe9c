package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/modra-dev/modra/codec"
	"github.com/modra-dev/modra/engine"
	"github.com/modra-dev/modra/hostcap"
	"github.com/modra-dev/modra/sandbox"
)

var rootCmd = &cobra.Command{
	Use:   "modra [file]",
	Short: "Sandboxed script module runtime",
	Long: `modra - Load and run untrusted script modules safely.

Run a module from a file, inline source, or stdin. By default, sandboxed
code has no access to filesystem, network, or timers. Enable capabilities
explicitly with flags.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun, // Default to run command behavior
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log module loads and calls")
	addRunFlags(rootCmd)
}

func parseMount(spec string) (sandbox.Mount, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return sandbox.Mount{}, fmt.Errorf("invalid mount spec %q (expected virtual:host:mode)", spec)
	}

	var mode sandbox.MountMode
	switch parts[2] {
	case "ro":
		mode = sandbox.MountReadOnly
	case "rw":
		mode = sandbox.MountReadWrite
	case "rwc":
		mode = sandbox.MountReadWriteCreate
	default:
		return sandbox.Mount{}, fmt.Errorf("invalid mount mode %q (expected ro, rw, or rwc)", parts[2])
	}

	return sandbox.Mount{
		VirtualPath: parts[0],
		HostPath:    parts[1],
		Mode:        mode,
	}, nil
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", 30*time.Second, "Per-call timeout")
	cmd.Flags().Bool("kv", false, "Enable key-value store")
	cmd.Flags().Bool("allow-timers", false, "Allow setTimeout/setInterval")
	cmd.Flags().StringSlice("allow-host", nil, "Allow HTTP to host (repeatable)")
	cmd.Flags().StringSlice("mount", nil, "Mount filesystem virtual:host:mode (repeatable)")
	cmd.Flags().String("entry", "default", "Export name used as the entry point")

	// Security limits
	cmd.Flags().Int("http-max-url", hostcap.DefaultMaxURLLength, "Max HTTP URL length")
	cmd.Flags().Int64("http-max-body", hostcap.DefaultMaxBodySize, "Max HTTP response body size")
	cmd.Flags().Int64("fs-max-file", hostcap.DefaultMaxFileSize, "Max file read/write size")
}

func buildPolicy(cmd *cobra.Command) (sandbox.Policy, error) {
	allowedHosts, _ := cmd.Flags().GetStringSlice("allow-host")
	mounts, _ := cmd.Flags().GetStringSlice("mount")
	allowTimers, _ := cmd.Flags().GetBool("allow-timers")

	httpMaxURL, _ := cmd.Flags().GetInt("http-max-url")
	httpMaxBody, _ := cmd.Flags().GetInt64("http-max-body")
	fsMaxFile, _ := cmd.Flags().GetInt64("fs-max-file")

	policy := sandbox.Default()
	policy.Limits.MaxURLLength = httpMaxURL
	policy.Limits.MaxBodySize = httpMaxBody
	policy.Limits.MaxFileSize = fsMaxFile

	for _, spec := range mounts {
		m, err := parseMount(spec)
		if err != nil {
			return sandbox.Policy{}, err
		}
		policy.Mounts = append(policy.Mounts, m)
	}
	if len(policy.Mounts) > 0 {
		policy.Filesystem = sandbox.Allow
	}
	if len(allowedHosts) > 0 {
		policy.Network = sandbox.Allow
		policy.AllowedHosts = allowedHosts
	}
	if allowTimers {
		policy.Timers = sandbox.Allow
	}
	return policy, nil
}

func buildOptions(cmd *cobra.Command) []engine.Option {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	entry, _ := cmd.Flags().GetString("entry")
	enableKV, _ := cmd.Flags().GetBool("kv")
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	opts := []engine.Option{
		engine.WithCallTimeout(timeout),
		engine.WithEntrypoint(entry),
		engine.WithConsoleWriter(os.Stdout),
	}
	if enableKV {
		funcs := hostcap.NewRegistry()
		hostcap.NewKV(0).Install(funcs)
		opts = append(opts, engine.WithHostFuncs(funcs))
	}
	if verbose {
		if logger, err := zap.NewDevelopment(); err == nil {
			opts = append(opts, engine.WithLogger(logger))
		}
	}
	return opts
}

// parseArgs decodes call arguments given as JSON literals on the command
// line.
func parseArgs(raw []string) ([]codec.Value, error) {
	args := make([]codec.Value, 0, len(raw))
	for _, s := range raw {
		var tree any
		if err := json.Unmarshal([]byte(s), &tree); err != nil {
			return nil, fmt.Errorf("invalid argument %q: %v", s, err)
		}
		v, err := codec.Encode(tree)
		if err != nil {
			return nil, fmt.Errorf("invalid argument %q: %v", s, err)
		}
		args = append(args, v)
	}
	return args, nil
}

func printValue(v codec.Value) {
	if v.IsUndefined() {
		return
	}
	out, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
