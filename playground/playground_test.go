package playground

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caffeineduck/jsxpad/compiler"
	"github.com/caffeineduck/jsxpad/document"
	"github.com/caffeineduck/jsxpad/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedMarkup = `<div class="counter"><h1>Hello from JSX</h1><p>You clicked 0 times.</p><button>Click me</button></div>`

func loadedService(t *testing.T) *compiler.Service {
	t.Helper()
	svc := compiler.NewService()
	_, err := svc.EnsureLoaded(context.Background())
	require.NoError(t, err)
	return svc
}

// countingLoader records every document it is handed.
type countingLoader struct {
	mu   sync.Mutex
	docs []*document.Document
}

func (c *countingLoader) Load(ctx context.Context, doc *document.Document) executor.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, doc)
	return executor.Result{Markup: "<p>loaded</p>"}
}

func (c *countingLoader) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

func TestNewUsesDefaultSeed(t *testing.T) {
	p := New(loadedService(t))
	assert.Equal(t, DefaultSeed, p.Source())
	assert.Equal(t, DefaultSeed, p.Seed())
	assert.Equal(t, Idle, p.State())
	assert.NoError(t, p.Err())
	assert.True(t, p.Frame().Empty())
}

func TestRunValidSource(t *testing.T) {
	loader := &countingLoader{}
	p := New(loadedService(t), WithLoader(loader))

	rep := p.Run(context.Background())

	require.NoError(t, rep.Err)
	assert.Equal(t, Idle, rep.State)
	assert.Equal(t, KindNone, rep.Kind())
	assert.Contains(t, rep.Transformed, "React.useState")
	assert.NotContains(t, rep.Transformed, "import ")
	assert.Contains(t, rep.Transformed, `ReactDOM.createRoot(document.getElementById("root")).render(<Counter />);`)
	assert.Contains(t, rep.Compiled, "React.createElement")
	require.NotNil(t, rep.Document)
	assert.Contains(t, rep.Document.Inline, rep.Compiled)
	assert.Equal(t, 1, loader.count())
	assert.Same(t, rep.Document, loader.docs[0])

	frame := p.Frame()
	assert.Equal(t, uint64(1), frame.Generation)
	assert.Same(t, rep.Document, frame.Document)
	assert.Equal(t, "<p>loaded</p>", frame.Render.Markup)
}

func TestRunRendersSeedHeadless(t *testing.T) {
	exec, err := executor.New(nil)
	require.NoError(t, err)
	defer exec.Close()

	p := New(loadedService(t), WithLoader(exec))
	rep := p.Run(context.Background())

	require.NoError(t, rep.Err)
	require.NoError(t, rep.Render.Error)
	assert.Empty(t, rep.Render.RuntimeError)
	assert.Equal(t, seedMarkup, rep.Render.Markup)
}

func TestRunDoesNotMutateSource(t *testing.T) {
	p := New(loadedService(t), WithLoader(&countingLoader{}))
	before := p.Source()

	p.Run(context.Background())
	assert.Equal(t, before, p.Source())
}

func TestRunNotReady(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	svc := compiler.NewService(compiler.WithLoader(func(ctx context.Context) (*compiler.Handle, error) {
		<-block
		return compiler.NewHandle(compiler.DefaultConfig()), nil
	}))
	svc.Load(context.Background())

	loader := &countingLoader{}
	p := New(svc, WithLoader(loader))
	rep := p.Run(context.Background())

	assert.ErrorIs(t, rep.Err, compiler.ErrNotReady)
	assert.Equal(t, KindNotReady, rep.Kind())
	assert.Equal(t, Errored, p.State())
	assert.Equal(t, 0, loader.count())
}

func TestRunCompileErrorSkipsLoader(t *testing.T) {
	loader := &countingLoader{}
	p := New(loadedService(t), WithLoader(loader))
	p.SetSource("function App() {\n  return <div>;\n")

	rep := p.Run(context.Background())

	require.Error(t, rep.Err)
	var cerr *compiler.Error
	assert.True(t, errors.As(rep.Err, &cerr))
	assert.Equal(t, KindCompile, rep.Kind())
	assert.Equal(t, Errored, rep.State)
	assert.Equal(t, Errored, p.State())
	assert.Equal(t, rep.Err, p.Err())
	assert.Nil(t, rep.Document)
	assert.Equal(t, 0, loader.count())
	assert.True(t, p.Frame().Empty())

	// the source is kept so the user can fix it
	assert.Equal(t, "function App() {\n  return <div>;\n", p.Source())
}

func TestRunRuntimeErrorStaysInDocument(t *testing.T) {
	exec, err := executor.New(nil)
	require.NoError(t, err)
	defer exec.Close()

	p := New(loadedService(t), WithLoader(exec))
	p.SetSource(`function App() {
  return <p>{missingFunction()}</p>;
}
`)

	rep := p.Run(context.Background())

	assert.NoError(t, rep.Err)
	assert.NoError(t, p.Err())
	assert.Equal(t, Idle, p.State())
	assert.Equal(t, KindRuntime, rep.Kind())
	assert.Contains(t, rep.Render.RuntimeError, "missingFunction")
	assert.True(t, strings.HasPrefix(rep.Render.Markup, `<pre class="runtime-error">Error: `))
}

func TestErrorClearedOnNextRun(t *testing.T) {
	p := New(loadedService(t), WithLoader(&countingLoader{}))
	p.SetSource("const = ;")
	require.Error(t, p.Run(context.Background()).Err)

	p.SetSource("function App() { return <b>ok</b>; }")
	rep := p.Run(context.Background())
	assert.NoError(t, rep.Err)
	assert.NoError(t, p.Err())
	assert.Equal(t, Idle, p.State())
}

func TestResetRestoresSeedAndClearsError(t *testing.T) {
	loader := &countingLoader{}
	p := New(loadedService(t), WithLoader(loader), WithSeed("function A() { return null; }"))
	p.SetSource("function (")
	p.Run(context.Background())
	require.Equal(t, Errored, p.State())
	runs := loader.count()

	p.Reset()

	assert.Equal(t, "function A() { return null; }", p.Source())
	assert.NoError(t, p.Err())
	assert.Equal(t, Idle, p.State())
	assert.Equal(t, runs, loader.count(), "reset must not execute")

	// from a clean state as well
	p.Reset()
	assert.Equal(t, p.Seed(), p.Source())
}

func TestLatestSourceWins(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	var calls atomic.Int32
	loader := LoaderFunc(func(ctx context.Context, doc *document.Document) executor.Result {
		if calls.Add(1) == 1 {
			entered <- struct{}{}
			<-release
		}
		return executor.Result{}
	})

	p := New(loadedService(t), WithLoader(loader), WithSeed("function First() { return <i>1</i>; }"))

	first := make(chan Report, 1)
	go func() { first <- p.Run(context.Background()) }()
	<-entered

	p.SetSource("function Second() { return <i>2</i>; }")
	second := make(chan Report, 1)
	go func() { second <- p.Run(context.Background()) }()

	close(release)
	r1 := <-first
	r2 := <-second

	assert.Contains(t, r1.Compiled, "First")
	assert.NotContains(t, r1.Compiled, "Second")
	assert.Contains(t, r2.Compiled, "Second")
	assert.NotContains(t, r2.Compiled, "First")
	assert.Greater(t, r2.Generation, r1.Generation)

	frame := p.Frame()
	assert.Equal(t, r2.Generation, frame.Generation)
	assert.Equal(t, "function Second() { return <i>2</i>; }", frame.Source)
}

func TestGenerationMonotonic(t *testing.T) {
	p := New(loadedService(t), WithLoader(&countingLoader{}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8), p.Generation())
	assert.Equal(t, uint64(8), p.Frame().Generation)
}

func TestFailedRunKeepsPreviousFrame(t *testing.T) {
	p := New(loadedService(t), WithLoader(&countingLoader{}))
	ok := p.Run(context.Background())
	require.NoError(t, ok.Err)

	p.SetSource("<<<")
	require.Error(t, p.Run(context.Background()).Err)

	assert.Equal(t, ok.Generation, p.Frame().Generation)
}

func TestAutoRunWaitsForCompiler(t *testing.T) {
	release := make(chan struct{})
	svc := compiler.NewService(compiler.WithLoader(func(ctx context.Context) (*compiler.Handle, error) {
		<-release
		return compiler.NewHandle(compiler.DefaultConfig()), nil
	}))

	loader := &countingLoader{}
	p := New(svc, WithLoader(loader))
	ch := p.Start(context.Background())

	select {
	case <-ch:
		t.Fatal("auto run must wait for the compiler")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	rep, ok := <-ch
	require.True(t, ok)
	assert.NoError(t, rep.Err)
	assert.Equal(t, 1, loader.count())
}

func TestAutoRunLoadFailure(t *testing.T) {
	svc := compiler.NewService(compiler.WithLoader(func(ctx context.Context) (*compiler.Handle, error) {
		return nil, errors.New("offline")
	}))
	p := New(svc, WithLoader(&countingLoader{}))

	_, err := p.AutoRun(context.Background())
	assert.ErrorContains(t, err, "offline")

	_, ok := <-p.Start(context.Background())
	assert.False(t, ok)
}

func TestHooks(t *testing.T) {
	var (
		mu      sync.Mutex
		started []uint64
		compile []error
		kinds   []Kind
	)
	hooks := Hooks{
		OnRunStart: func(ctx context.Context, gen uint64) {
			mu.Lock()
			defer mu.Unlock()
			started = append(started, gen)
		},
		OnCompile: func(ctx context.Context, d time.Duration, err error) {
			mu.Lock()
			defer mu.Unlock()
			compile = append(compile, err)
		},
		OnRunDone: func(ctx context.Context, r Report) {
			mu.Lock()
			defer mu.Unlock()
			kinds = append(kinds, r.Kind())
		},
	}
	p := New(loadedService(t), WithLoader(&countingLoader{}), WithHooks(hooks))

	p.Run(context.Background())
	p.SetSource("}")
	p.Run(context.Background())

	assert.Equal(t, []uint64{1, 2}, started)
	require.Len(t, compile, 2)
	assert.NoError(t, compile[0])
	assert.Error(t, compile[1])
	assert.Equal(t, []Kind{KindNone, KindCompile}, kinds)
}

func TestCustomMountID(t *testing.T) {
	p := New(loadedService(t), WithLoader(&countingLoader{}), WithMountID("app"))
	rep := p.Run(context.Background())

	require.NoError(t, rep.Err)
	assert.Equal(t, "app", rep.Document.MountID)
	assert.Contains(t, rep.Transformed, `document.getElementById("app")`)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindNone, Classify(nil))
	assert.Equal(t, KindNotReady, Classify(compiler.ErrNotReady))
	assert.Equal(t, KindCompile, Classify(&compiler.Error{}))
	assert.Equal(t, KindRuntime, Classify(errors.New("boom")))
}

func TestFrameLoader(t *testing.T) {
	f := &FrameLoader{}
	assert.Nil(t, f.Document())

	doc := document.New("x()", nil)
	r := f.Load(context.Background(), doc)
	assert.NoError(t, r.Error)
	assert.Same(t, doc, f.Document())
	assert.Equal(t, 1, f.Loads())
}

func TestLoadersFanOut(t *testing.T) {
	frames := &FrameLoader{}
	first := LoaderFunc(func(ctx context.Context, doc *document.Document) executor.Result {
		return executor.Result{Markup: "<p>first</p>"}
	})
	broken := LoaderFunc(func(ctx context.Context, doc *document.Document) executor.Result {
		return executor.Result{Error: errors.New("broken")}
	})

	r := Loaders(first, frames, broken).Load(context.Background(), document.New("", nil))

	assert.Equal(t, "<p>first</p>", r.Markup)
	assert.ErrorContains(t, r.Error, "broken")
	assert.Equal(t, 1, frames.Loads())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "errored", Errored.String())
	b, err := Executing.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "executing", string(b))

	var st State
	require.NoError(t, st.UnmarshalText([]byte("compiling")))
	assert.Equal(t, Compiling, st)
	assert.Error(t, st.UnmarshalText([]byte("bogus")))
	assert.Equal(t, "compile_error", KindCompile.String())
}
