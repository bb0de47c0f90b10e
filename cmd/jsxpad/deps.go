package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caffeineduck/jsxpad/executor"
	"github.com/caffeineduck/jsxpad/internal/fetch"
	"github.com/spf13/cobra"
)

// moduleURLEnv names the environment variable deps fetch reads when --url
// is not given.
const moduleURLEnv = "JSXPAD_QJS_URL"

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Manage the QuickJS module for the wasm engine",
	Long: `Install and manage the QuickJS WASI module used by --engine wasm.

The default goja engine needs nothing. The wasm engine loads a QuickJS
build compiled to WASI from the jsxpad cache directory, and keeps wazero's
compiled code next to it.`,
}

var depsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the QuickJS WASI module",
	Long: `Download the QuickJS WASI module into the cache directory.

The source is --url, or $` + moduleURLEnv + ` when the flag is not set. Plain
paths and file:// URLs are copied. An existing module is kept unless
--force is given.`,
	Args: cobra.NoArgs,
	Run:  runDepsFetch,
}

var depsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print where the module and cache live",
	Args:  cobra.NoArgs,
	Run:   runDepsPath,
}

var depsCacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache management commands",
}

var depsCacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the wasm compilation cache",
	Args:  cobra.NoArgs,
	Run:   runDepsCacheClear,
}

var (
	depsCacheDir  string
	depsModuleOut string
)

func init() {
	depsFetchCmd.Flags().String("url", "", "Module URL or path (default: $"+moduleURLEnv+")")
	depsFetchCmd.Flags().StringVar(&depsModuleOut, "out", "", "Output path (default: "+executor.DefaultWasmModulePath()+")")
	depsFetchCmd.Flags().String("sha256", "", "Expected SHA-256 of the module")
	depsFetchCmd.Flags().Bool("force", false, "Download even if the module exists")
	depsFetchCmd.Flags().Duration("timeout", 5*time.Minute, "Download timeout")

	depsCacheClearCmd.Flags().StringVar(&depsCacheDir, "dir", "", "Cache directory (default: "+executor.DefaultCompileCacheDir()+")")

	depsCacheCmd.AddCommand(depsCacheClearCmd)
	depsCmd.AddCommand(depsFetchCmd, depsPathCmd, depsCacheCmd)
	rootCmd.AddCommand(depsCmd)
}

func runDepsFetch(cmd *cobra.Command, args []string) {
	url, _ := cmd.Flags().GetString("url")
	sum, _ := cmd.Flags().GetString("sha256")
	force, _ := cmd.Flags().GetBool("force")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if url == "" {
		url = os.Getenv(moduleURLEnv)
	}
	if url == "" {
		fmt.Fprintf(os.Stderr, "Error: no module source: pass --url or set %s\n", moduleURLEnv)
		os.Exit(1)
	}
	out := depsModuleOut
	if out == "" {
		out = executor.DefaultWasmModulePath()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fmt.Printf("Fetching %s...\n", url)
	res, err := fetch.Module(ctx, fetch.Options{URL: url, Dest: out, SHA256: sum, Force: force})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printFetchResult(os.Stdout, res)
}

func printFetchResult(w io.Writer, res fetch.Result) {
	if res.Skipped {
		fmt.Fprintf(w, "Module already present at %s (use --force to replace).\n", res.Path)
		return
	}
	fmt.Fprintf(w, "  %d bytes, sha256 %s\n", res.Bytes, res.SHA256)
	fmt.Fprintf(w, "Installed %s\n", res.Path)
}

func runDepsPath(cmd *cobra.Command, args []string) {
	printDepsPaths(os.Stdout)
}

func printDepsPaths(w io.Writer) {
	module := executor.DefaultWasmModulePath()
	status := "missing"
	if _, err := os.Stat(module); err == nil {
		status = "present"
	}
	fmt.Fprintf(w, "module: %s (%s)\n", module, status)
	fmt.Fprintf(w, "cache:  %s\n", executor.DefaultCompileCacheDir())
}

func runDepsCacheClear(cmd *cobra.Command, args []string) {
	dir := depsCacheDir
	if dir == "" {
		dir = executor.DefaultCompileCacheDir()
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: failed to clear cache: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Cache cleared.")
}
