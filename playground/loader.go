package playground

import (
	"context"
	"errors"
	"sync"

	"github.com/caffeineduck/jsxpad/document"
	"github.com/caffeineduck/jsxpad/executor"
)

// Loader replaces the isolated execution context with doc in one step.
// Runtime errors are reported inside the result, never as a Go error.
type Loader interface {
	Load(ctx context.Context, doc *document.Document) executor.Result
}

// LoaderFunc adapts a function to a Loader.
type LoaderFunc func(ctx context.Context, doc *document.Document) executor.Result

func (f LoaderFunc) Load(ctx context.Context, doc *document.Document) executor.Result {
	return f(ctx, doc)
}

// FrameLoader keeps the last loaded document for serving to a browser,
// which runs it itself.
type FrameLoader struct {
	mu    sync.RWMutex
	doc   *document.Document
	loads int
}

// Load swaps in doc. It never renders.
func (f *FrameLoader) Load(ctx context.Context, doc *document.Document) executor.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc = doc
	f.loads++
	return executor.Result{}
}

// Document returns the last loaded document, or nil.
func (f *FrameLoader) Document() *document.Document {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.doc
}

// Loads returns how many documents were loaded.
func (f *FrameLoader) Loads() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loads
}

// Loaders fans doc out to every loader in order. The result is the first
// loader's; infrastructure errors from all of them are joined.
func Loaders(loaders ...Loader) Loader {
	return LoaderFunc(func(ctx context.Context, doc *document.Document) executor.Result {
		var (
			first executor.Result
			errs  []error
		)
		for i, l := range loaders {
			r := l.Load(ctx, doc)
			if i == 0 {
				first = r
			}
			if r.Error != nil {
				errs = append(errs, r.Error)
			}
		}
		first.Error = errors.Join(errs...)
		return first
	})
}
