// Package jsxpad compiles React components written in JSX and renders them
// in an isolated execution context.
//
// # Overview
//
// A run takes the source buffer through four stages. Module syntax is
// stripped and a render call appended ([transform]). The result is compiled
// to plain script with esbuild ([compiler]). It is wrapped in a fresh
// isolated document ([document]). That document is loaded by a browser
// iframe or by the headless [executor]. Runtime errors stay inside the
// document. Only not-ready and compile errors reach the caller.
//
// # Basic Usage
//
//	svc := compiler.NewService()
//	svc.Load(ctx)
//
//	exec, _ := executor.New(hostfunc.NewRegistry())
//	defer exec.Close()
//
//	pg := playground.New(svc, playground.WithLoader(exec))
//	pg.SetSource(`function App() { return <h1>Hello</h1>; }`)
//	report, _ := pg.AutoRun(ctx)
//	fmt.Println(report.Render.Markup) // <h1>Hello</h1>
//
// # Enabling Capabilities
//
//	// fetch to listed hosts
//	exec.With(executor.WithAllowedHosts([]string{"api.example.com"}))
//
//	// localStorage that survives between runs
//	exec.With(executor.WithStorageStore(hostfunc.NewStorageStore()))
//
// See the [playground], [executor] and [hostfunc] packages for detailed API
// documentation, and cmd/jsxpad for the command-line tool and HTTP server.
package jsxpad
