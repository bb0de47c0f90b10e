package compiler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileJSX(t *testing.T) {
	out, err := Compile(`function App() { return <div className="x">hi {1 + 1}</div>; }`, DefaultConfig())
	require.NoError(t, err)
	assert.Contains(t, out, "React.createElement")
	assert.Contains(t, out, `"div"`)
	assert.NotContains(t, out, "<div")
}

func TestCompileFragment(t *testing.T) {
	out, err := Compile(`const F = () => <><i/></>;`, DefaultConfig())
	require.NoError(t, err)
	assert.Contains(t, out, "React.Fragment")
}

func TestCompileWrapsInIIFE(t *testing.T) {
	out, err := Compile(`const a = 1;`, DefaultConfig())
	require.NoError(t, err)
	assert.Contains(t, out, "(() => {")
}

func TestCompileDownlevelsSyntax(t *testing.T) {
	out, err := Compile(`const o = { ...a, b: a?.c ?? 1 };`, DefaultConfig())
	require.NoError(t, err)
	assert.NotContains(t, out, "?.")
	assert.NotContains(t, out, "??")
}

func TestCompileSyntaxError(t *testing.T) {
	_, err := Compile("function App() {\n  return <div>;\n", DefaultConfig())
	require.Error(t, err)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	require.NotEmpty(t, cerr.Messages)
	assert.Greater(t, cerr.Messages[0].Line, 0)
	assert.Contains(t, err.Error(), "syntax error at line")
	assert.Contains(t, err.Error(), cerr.Messages[0].Text)
}

func TestCompileUnmatchedBrace(t *testing.T) {
	_, err := Compile("function App() { return <p/>;", DefaultConfig())
	var cerr *Error
	assert.True(t, errors.As(err, &cerr))
}

func TestErrorWithoutMessages(t *testing.T) {
	assert.Equal(t, "syntax error", (&Error{}).Error())
	assert.Equal(t, "boom", Message{Text: "boom"}.String())
}

func TestServiceNotReadyBeforeLoad(t *testing.T) {
	svc := NewService()
	_, err := svc.Handle()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, svc.Loaded())
}

func TestServiceEnsureLoaded(t *testing.T) {
	svc := NewService()
	h, err := svc.EnsureLoaded(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h)

	again, err := svc.Handle()
	require.NoError(t, err)
	assert.Same(t, h, again)

	select {
	case <-svc.Ready():
	default:
		t.Fatal("ready channel should be closed")
	}
}

func TestServiceLoadsOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	svc := NewService(WithLoader(func(ctx context.Context) (*Handle, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return NewHandle(DefaultConfig()), nil
	}))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.EnsureLoaded(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestServiceNotReadyWhileLoading(t *testing.T) {
	release := make(chan struct{})
	svc := NewService(WithLoader(func(ctx context.Context) (*Handle, error) {
		<-release
		return NewHandle(DefaultConfig()), nil
	}))

	svc.Load(context.Background())
	_, err := svc.Handle()
	assert.ErrorIs(t, err, ErrNotReady)

	close(release)
	select {
	case <-svc.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("service did not become ready")
	}
	_, err = svc.Handle()
	assert.NoError(t, err)
}

func TestServiceEnsureLoadedHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	svc := NewService(WithLoader(func(ctx context.Context) (*Handle, error) {
		<-release
		return NewHandle(DefaultConfig()), nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.EnsureLoaded(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServiceRetriesFailedLoad(t *testing.T) {
	fail := true
	svc := NewService(WithLoader(func(ctx context.Context) (*Handle, error) {
		if fail {
			fail = false
			return nil, errors.New("fetch failed")
		}
		return NewHandle(DefaultConfig()), nil
	}))

	_, err := svc.EnsureLoaded(context.Background())
	require.Error(t, err)

	_, err = svc.Handle()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Contains(t, err.Error(), "fetch failed")

	h, err := svc.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, h)
}

func TestHandleCompileUsesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JSXFactory = "h"
	out, err := NewHandle(cfg).Compile(`<p/>`)
	require.NoError(t, err)
	assert.Contains(t, out, "h(")
	assert.Equal(t, "h", NewHandle(cfg).Config().JSXFactory)
}
