package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/jsxpad/compiler"
	"github.com/caffeineduck/jsxpad/executor"
	"github.com/caffeineduck/jsxpad/hostfunc"
	"github.com/caffeineduck/jsxpad/playground"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl [seed-file]",
	Short: "Interactive component editor",
	Long: `Start an interactive editor around a playground source buffer.

Typed lines are appended to the buffer. Commands start with a colon:
  :run          compile and render the buffer
  :show         print the buffer
  :clear        empty the buffer
  :reset        restore the seed and clear the last error
  :html         print the isolated document of the last successful run
  :load <file>  replace the buffer with a file
  :quit         leave (also Ctrl+D)

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.jsxpad_history)")
	addSessionFlags(replCmd)
	rootCmd.AddCommand(replCmd)
}

// repl drives a Playground from editor commands.
type repl struct {
	pg  *playground.Playground
	out io.Writer
	err io.Writer
}

func newRepl(pg *playground.Playground, out, errOut io.Writer) *repl {
	return &repl{pg: pg, out: out, err: errOut}
}

// handle processes one input line. It returns false when the editor
// should exit.
func (r *repl) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case ":quit", ":q", ":exit":
		return false
	case ":run":
		r.run(ctx)
	case ":show":
		r.show()
	case ":clear":
		r.pg.SetSource("")
	case ":reset":
		r.pg.Reset()
		fmt.Fprintln(r.err, "buffer reset to seed")
	case ":html":
		frame := r.pg.Frame()
		if frame.Empty() {
			fmt.Fprintln(r.err, "nothing rendered yet")
			return true
		}
		fmt.Fprintln(r.out, frame.Document.HTML())
	case ":load":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			fmt.Fprintln(r.err, "Error: usage: :load <file>")
			return true
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
			return true
		}
		r.pg.SetSource(string(data))
		fmt.Fprintf(r.err, "loaded %s (%d lines)\n", arg, lineCount(string(data)))
	case ":help":
		fmt.Fprintln(r.err, "commands: :run :show :clear :reset :html :load <file> :quit")
	default:
		if strings.HasPrefix(cmd, ":") {
			fmt.Fprintf(r.err, "Error: unknown command %s (try :help)\n", cmd)
			return true
		}
		src := r.pg.Source()
		if src != "" && !strings.HasSuffix(src, "\n") {
			src += "\n"
		}
		r.pg.SetSource(src + line + "\n")
	}
	return true
}

func (r *repl) run(ctx context.Context) {
	rep, err := r.pg.AutoRun(ctx)
	if err != nil {
		fmt.Fprintf(r.err, "Error: %v\n", err)
		return
	}
	if rep.Err != nil {
		fmt.Fprintf(r.err, "Error: %v\n", rep.Err)
		return
	}
	for _, line := range rep.Render.Console {
		fmt.Fprintln(r.err, line)
	}
	if rep.Render.Markup != "" {
		fmt.Fprintln(r.out, rep.Render.Markup)
	}
	switch {
	case rep.Render.RuntimeError != "":
		fmt.Fprintf(r.err, "Runtime error: %s\n", rep.Render.RuntimeError)
	case rep.Render.Error != nil:
		fmt.Fprintf(r.err, "Error: %v\n", rep.Render.Error)
	}
}

func (r *repl) show() {
	src := r.pg.Source()
	if src == "" {
		fmt.Fprintln(r.err, "(empty buffer)")
		return
	}
	for i, line := range strings.Split(strings.TrimSuffix(src, "\n"), "\n") {
		fmt.Fprintf(r.out, "%3d  %s\n", i+1, line)
	}
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(s, "\n"), "\n") + 1
}

func runRepl(cmd *cobra.Command, args []string) {
	historyFile, _ := cmd.Flags().GetString("history")
	enableStorage, _ := cmd.Flags().GetBool("storage")

	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".jsxpad_history")
	}

	seed := playground.DefaultSeed
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		seed = string(data)
	}

	exec, err := newExecutor(cmd, executor.WithPrecompile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer exec.Close()

	runOpts := buildRunOpts(cmd)
	if enableStorage {
		// one store for the whole editing session
		runOpts = append(runOpts, executor.WithStorageStore(hostfunc.NewStorageStore()))
	}

	svc := compiler.NewService()
	svc.Load(context.Background())

	pg := playground.New(svc,
		playground.WithSeed(seed),
		playground.WithLoader(exec.With(runOpts...)),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "jsx> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         ":quit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Fprintf(os.Stderr, "jsxpad %s editor (%d-line seed loaded, :help for commands, Ctrl+D to exit)\n", exec.Engine(), lineCount(seed))

	r := newRepl(pg, os.Stdout, os.Stderr)
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println()
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			break
		}
		if !r.handle(context.Background(), line) {
			break
		}
	}
}
