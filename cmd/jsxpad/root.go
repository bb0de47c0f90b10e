package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caffeineduck/jsxpad/executor"
	"github.com/caffeineduck/jsxpad/hostfunc"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jsxpad [file]",
	Short: "Compile and render JSX components in an isolated context",
	Long: `jsxpad - Write a React component, compile it, and render it in isolation.

Source is rewritten for a module-less context, compiled with esbuild and
loaded into a fresh document with a headless DOM. Run components from files,
inline strings, or stdin, edit them in a REPL, or serve the playground
over HTTP.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun, // Default to run command behavior
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	addEngineFlags(rootCmd)
	addRunFlags(rootCmd)
}

// addEngineFlags registers the flags shared by every command that runs
// components.
func addEngineFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("engine", executor.EngineGoja, "Execution engine: goja, wasm")
	cmd.PersistentFlags().String("wasm-module", "", "QuickJS WASI module for the wasm engine (default: fetched module)")
	cmd.PersistentFlags().String("memory", "256mb", "Memory limit for the wasm engine: 1mb, 16mb, 64mb, 256mb, 1gb")
	cmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "1mb":
		return executor.MemoryLimit1MB
	case "16mb":
		return executor.MemoryLimit16MB
	case "64mb":
		return executor.MemoryLimit64MB
	case "256mb":
		return executor.MemoryLimit256MB
	case "1gb":
		return executor.MemoryLimit1GB
	default:
		return 0 // use default
	}
}

// executorOptions reads the persistent engine flags.
func executorOptions(cmd *cobra.Command) ([]executor.ExecutorOption, error) {
	flags := cmd.Root().PersistentFlags()
	engine, _ := flags.GetString("engine")
	wasmModule, _ := flags.GetString("wasm-module")
	memoryLimit, _ := flags.GetString("memory")
	noCache, _ := flags.GetBool("no-cache")

	switch engine {
	case executor.EngineGoja, executor.EngineWasm:
	default:
		return nil, fmt.Errorf("unknown engine %q: use %s", engine, strings.Join(executor.Engines, " or "))
	}

	opts := []executor.ExecutorOption{executor.WithEngine(engine)}
	if engine == executor.EngineWasm {
		if wasmModule == "" {
			wasmModule = executor.DefaultWasmModulePath()
		}
		opts = append(opts, executor.WithWasmModule(wasmModule))
		if !noCache {
			opts = append(opts, executor.WithDiskCache())
		}
		if pages := parseMemoryLimit(memoryLimit); pages > 0 {
			opts = append(opts, executor.WithMemoryLimit(pages))
		}
	}
	return opts, nil
}

func newExecutor(cmd *cobra.Command, extra ...executor.ExecutorOption) (*executor.Executor, error) {
	opts, err := executorOptions(cmd)
	if err != nil {
		return nil, err
	}
	return executor.New(hostfunc.NewRegistry(), append(opts, extra...)...)
}

// readSource picks the component source from -c, a file argument or
// stdin, in that order. ok is false when there is nothing to read.
func readSource(code string, args []string, stdin *os.File) (source string, ok bool, err error) {
	switch {
	case code != "":
		return code, true, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	default:
		// Check if stdin has data (not a terminal)
		stat, err := stdin.Stat()
		if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
			return "", false, nil
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", false, err
		}
		return string(data), len(data) > 0, nil
	}
}
