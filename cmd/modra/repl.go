package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/modra-dev/modra/codec"
	"github.com/modra-dev/modra/engine"
	"github.com/modra-dev/modra/registry"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive REPL with persistent state",
	Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Each input line is evaluated in one shared runtime scope, so variables and
functions defined on earlier lines stay available for the rest of the
session. Top-level let and const behave like var.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Run: runRepl,
}

func init() {
	addSessionFlags(replCmd)
	replCmd.Flags().String("history", "", "History file path (default: ~/.modra_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".modra_history")
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

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Fprintln(os.Stderr, "modra REPL (type 'exit' to quit, Ctrl+D to exit)")

	var multiLine strings.Builder
	inMultiLine := false
	seq := 0

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">>> ")
					continue
				}
				continue
			}
			if err == io.EOF {
				fmt.Println()
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			break
		}

		// Handle multi-line input
		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">>> ")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		seq++
		result, err := evalLine(rt, seq, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		printValue(result)
	}
}

// Top-level let and const are rewritten to var so the binding lands on the
// realm's global scope instead of the eval's own lexical scope.
var replDecl = regexp.MustCompile(`(?m)^\s*(let|const)\s`)

// evalLine evaluates the input in the runtime's shared global scope through
// a throwaway module, so definitions persist across lines. The result is the
// line's completion value.
func evalLine(rt *engine.Runtime, seq int, line string) (codec.Value, error) {
	quoted, err := json.Marshal(replDecl.ReplaceAllString(line, "var "))
	if err != nil {
		return codec.Value{}, err
	}
	name := fmt.Sprintf("repl/%d.js", seq)
	src := fmt.Sprintf("export default function() { return (0, eval)(%s); }", quoted)

	h, err := rt.LoadModule(registry.Inline(name, src))
	if err != nil {
		return codec.Value{}, err
	}
	return rt.CallEntrypoint(h)
}
