package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/caffeineduck/jsxpad/hostfunc"
	"github.com/dop251/goja"
)

const gojaPrelude = `var __host = (function (invoke, emit) {
  return {
    call: function (fn, args) {
      var res = JSON.parse(invoke(fn, JSON.stringify(args === undefined ? {} : args)));
      if (res.error) throw new Error(res.error);
      return res.data === undefined ? null : res.data;
    },
    emit: emit
  };
})(__hostInvoke, __hostEmit);
delete globalThis.__hostInvoke;
delete globalThis.__hostEmit;`

var errNoResult = errors.New("document did not report a result")

// gojaEngine runs documents in-process, one goja.Runtime per run.
type gojaEngine struct {
	maxCallStack int
}

func newGojaEngine(cfg executorConfig) *gojaEngine {
	return &gojaEngine{maxCallStack: cfg.maxCallStack}
}

func (g *gojaEngine) Name() string { return EngineGoja }

func (g *gojaEngine) Execute(ctx context.Context, prog *Program, registry *hostfunc.Registry) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vm := goja.New()
	if g.maxCallStack > 0 {
		vm.SetMaxCallStackSize(g.maxCallStack)
	}

	var (
		out     *Output
		emitErr error
	)
	vm.Set("__hostInvoke", func(fn, args string) string {
		req := callRequest{Fn: fn}
		if err := json.Unmarshal([]byte(args), &req.Args); err != nil {
			return encodeResponse(callResponse{Error: "invalid call format"})
		}
		return encodeResponse(dispatch(ctx, registry, req))
	})
	vm.Set("__hostEmit", func(data string) {
		var o Output
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			emitErr = fmt.Errorf("decode result: %w", err)
			return
		}
		out = &o
	})

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	if _, err := vm.RunString(prog.Source(gojaPrelude)); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if emitErr != nil {
		return nil, emitErr
	}
	if out == nil {
		return nil, errNoResult
	}
	return out, nil
}

func (g *gojaEngine) Close() error { return nil }
