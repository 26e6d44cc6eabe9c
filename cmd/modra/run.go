package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/modra-dev/modra/engine"
	"github.com/modra-dev/modra/registry"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Load a module and call its entry point",
	Long: `Load a script module in a sandboxed runtime and call one of its
exported functions.

The module can be provided via:
  - File argument: modra run mod.js
  - Inline flag: modra run -c 'export default (n) => n * 2'
  - Stdin: cat mod.js | modra run

Arguments are JSON literals passed positionally:
  modra run mod.js --arg 5 --arg '"hello"' --arg '{"k": true}'`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Inline module source")
	cmd.Flags().String("fn", "", "Exported function to call (default: entry point)")
	cmd.Flags().StringSlice("arg", nil, "Call argument as a JSON literal (repeatable)")
	addSessionFlags(cmd)
}

func runRun(cmd *cobra.Command, args []string) {
	code, _ := cmd.Flags().GetString("code")
	fnName, _ := cmd.Flags().GetString("fn")
	rawArgs, _ := cmd.Flags().GetStringSlice("arg")

	var src registry.Source
	switch {
	case code != "":
		src = registry.Inline("main.js", code)
	case len(args) > 0:
		src = registry.File(args[0])
	default:
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			cmd.Help()
			return
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(data) == 0 {
			cmd.Help()
			return
		}
		src = registry.Inline("main.js", string(data))
	}

	policy, err := buildPolicy(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rt, err := engine.New(policy, buildOptions(cmd)...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	handle, err := rt.LoadModule(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	callArgs, err := parseArgs(rawArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if fnName != "" {
		v, err := rt.Call(handle, fnName, callArgs...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printValue(v)
		return
	}
	v, err := rt.CallEntrypoint(handle, callArgs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printValue(v)
}
