package executor

import (
	"context"
	"fmt"

	"github.com/caffeineduck/jsxpad/hostfunc"
)

// Engine names.
const (
	EngineGoja = "goja"
	EngineWasm = "wasm"
)

// Engines lists the engine names New accepts.
var Engines = []string{EngineGoja, EngineWasm}

// Engine runs one Program in a brand-new JavaScript context. Nothing may
// survive from one Execute call to the next.
type Engine interface {
	Name() string
	Execute(ctx context.Context, prog *Program, registry *hostfunc.Registry) (*Output, error)
	Close() error
}

func newEngine(cfg executorConfig) (Engine, error) {
	switch cfg.engine {
	case "", EngineGoja:
		return newGojaEngine(cfg), nil
	case EngineWasm:
		return newWasmEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown engine %q (want one of %v)", cfg.engine, Engines)
	}
}
