package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caffeineduck/jsxpad/compiler"
	"github.com/caffeineduck/jsxpad/executor"
	"github.com/caffeineduck/jsxpad/playground"
	"github.com/spf13/cobra"
)

// Exit codes for run.
const (
	exitOK           = 0
	exitError        = 1
	exitRuntimeError = 2
)

// What run prints.
const (
	emitMarkup = "markup"
	emitHTML   = "html"
	emitJS     = "js"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Compile and render a component once",
	Long: `Compile a JSX component and render it in a fresh isolated document.

Code can be provided via:
  - File argument: jsxpad run App.jsx
  - Inline flag: jsxpad run -c 'function App() { return <h1>Hi</h1>; }'
  - Stdin: cat App.jsx | jsxpad run

The rendered markup is printed to stdout and console output to stderr.
Use --emit html or --emit js to print the isolated document or the compiled
script instead of running it. A compile error exits with status 1, a runtime
error inside the document with status 2.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Component source to run")
	cmd.Flags().String("emit", emitMarkup, "Output: markup, html, js")
	addSessionFlags(cmd)
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", 5*time.Second, "Execution timeout")
	cmd.Flags().Bool("storage", false, "Enable localStorage backed by host storage")
	cmd.Flags().StringSlice("allow-host", nil, "Allow fetch to host (repeatable)")

	// Security limits
	cmd.Flags().Int("http-max-url", 8192, "Max fetch URL length")
	cmd.Flags().Int64("http-max-body", 1024*1024, "Max fetch body size")
	cmd.Flags().Int("storage-max-value", 64*1024, "Max localStorage value size")
}

func buildRunOpts(cmd *cobra.Command) []executor.Option {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	enableStorage, _ := cmd.Flags().GetBool("storage")
	allowedHosts, _ := cmd.Flags().GetStringSlice("allow-host")
	httpMaxURL, _ := cmd.Flags().GetInt("http-max-url")
	httpMaxBody, _ := cmd.Flags().GetInt64("http-max-body")
	storageMaxValue, _ := cmd.Flags().GetInt("storage-max-value")

	var opts []executor.Option
	opts = append(opts, executor.WithTimeout(timeout))

	if enableStorage {
		opts = append(opts, executor.WithStorage())
		opts = append(opts, executor.WithStorageMaxValueSize(storageMaxValue))
	}
	if len(allowedHosts) > 0 {
		opts = append(opts, executor.WithAllowedHosts(allowedHosts))
		opts = append(opts, executor.WithHTTPMaxURLLength(httpMaxURL))
		opts = append(opts, executor.WithHTTPMaxBodySize(httpMaxBody))
	}
	return opts
}

// renderConfig is everything render needs besides the source.
type renderConfig struct {
	emit string
	// exec runs the document. Only required for emitMarkup.
	exec    *executor.Executor
	runOpts []executor.Option
}

// render runs source through the pipeline once and reports the outcome on
// stdout and stderr. It returns the process exit code.
func render(ctx context.Context, svc *compiler.Service, source string, cfg renderConfig, stdout, stderr io.Writer) int {
	var loader playground.Loader = &playground.FrameLoader{}
	if cfg.emit == emitMarkup {
		loader = cfg.exec.With(cfg.runOpts...)
	}

	pg := playground.New(svc, playground.WithSeed(source), playground.WithLoader(loader))
	rep, err := pg.AutoRun(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if rep.Err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", rep.Err)
		return exitError
	}

	switch cfg.emit {
	case emitJS:
		fmt.Fprint(stdout, rep.Compiled)
		return exitOK
	case emitHTML:
		fmt.Fprint(stdout, rep.Document.HTML())
		return exitOK
	}

	for _, line := range rep.Render.Console {
		fmt.Fprintln(stderr, line)
	}
	if rep.Render.Markup != "" {
		fmt.Fprintln(stdout, rep.Render.Markup)
	}
	if rep.Render.Error != nil && rep.Render.RuntimeError == "" {
		fmt.Fprintf(stderr, "Error: %v\n", rep.Render.Error)
		return exitError
	}
	if rep.Render.RuntimeError != "" {
		fmt.Fprintf(stderr, "Runtime error: %s\n", rep.Render.RuntimeError)
		return exitRuntimeError
	}
	return exitOK
}

func runRun(cmd *cobra.Command, args []string) {
	code, _ := cmd.Flags().GetString("code")
	emit, _ := cmd.Flags().GetString("emit")

	switch emit {
	case emitMarkup, emitHTML, emitJS:
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown --emit %q: use markup, html or js\n", emit)
		os.Exit(exitError)
	}

	source, ok, err := readSource(code, args, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
	if !ok {
		// No input, show help
		cmd.Help()
		return
	}

	cfg := renderConfig{emit: emit, runOpts: buildRunOpts(cmd)}
	if emit == emitMarkup {
		exec, err := newExecutor(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitError)
		}
		defer exec.Close()
		cfg.exec = exec
	}

	svc := compiler.NewService()
	if status := render(context.Background(), svc, source, cfg, os.Stdout, os.Stderr); status != exitOK {
		if cfg.exec != nil {
			cfg.exec.Close()
		}
		os.Exit(status)
	}
}
