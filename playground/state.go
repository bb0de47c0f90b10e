package playground

import (
	"errors"
	"fmt"
	"time"

	"github.com/caffeineduck/jsxpad/compiler"
	"github.com/caffeineduck/jsxpad/document"
	"github.com/caffeineduck/jsxpad/executor"
)

// State is the run lifecycle state.
type State int

const (
	Idle State = iota
	Compiling
	Executing
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Compiling:
		return "compiling"
	case Executing:
		return "executing"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Compiling, Executing, Errored} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Kind classifies what went wrong in a run.
type Kind int

const (
	KindNone Kind = iota
	// KindNotReady: the compiler has not loaded yet. Not a problem with the
	// user's source.
	KindNotReady
	// KindCompile: the source failed to transform or compile.
	KindCompile
	// KindRuntime: the script threw inside the execution document.
	KindRuntime
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotReady:
		return "not_ready"
	case KindCompile:
		return "compile_error"
	case KindRuntime:
		return "runtime_error"
	default:
		return "unknown"
	}
}

// Classify maps an error to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, compiler.ErrNotReady) {
		return KindNotReady
	}
	var cerr *compiler.Error
	if errors.As(err, &cerr) {
		return KindCompile
	}
	return KindRuntime
}

// Report describes one run.
type Report struct {
	State State
	// Err is the run's ErrorState: not-ready or compile errors only.
	// Runtime errors stay inside the document and show up in Render.
	Err         error
	Source      string
	Transformed string
	Compiled    string
	Document    *document.Document
	Render      executor.Result
	Generation  uint64
	Duration    time.Duration
}

// Kind classifies the report, looking at the document's own error surface
// when the run itself succeeded.
func (r Report) Kind() Kind {
	if k := Classify(r.Err); k != KindNone {
		return k
	}
	if r.Render.Failed() {
		return KindRuntime
	}
	return KindNone
}

// Frame is the document currently published by a Playground.
type Frame struct {
	Document   *document.Document
	Render     executor.Result
	Source     string
	Generation uint64
}

// Empty reports whether nothing was published yet.
func (f Frame) Empty() bool {
	return f.Generation == 0
}
