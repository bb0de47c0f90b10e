// Package transform rewrites user-authored component source so it can run
// as a standalone script, without a module system.
//
// The passes are textual heuristics, not a parser. They can miss unusual
// import forms and can rewrite text inside string literals and comments.
// Callers only depend on the [Rewriter] interface, so a parse-based pass can
// replace any of them without changing the pipeline.
package transform

import "strings"

// DefaultMountID is the id of the element the appended render call targets.
const DefaultMountID = "root"

// Rewriter is a single source-to-source pass. Rewrite never fails; a pass
// that has nothing to do returns its input unchanged.
type Rewriter interface {
	Name() string
	Rewrite(text string) string
}

// Func adapts a plain function to a Rewriter.
type Func struct {
	Label string
	Fn    func(string) string
}

func (f Func) Name() string { return f.Label }

func (f Func) Rewrite(text string) string { return f.Fn(text) }

// Pipeline applies rewriters in order.
type Pipeline []Rewriter

// Default returns the pipeline used for every run: strip module syntax,
// append a render call, then qualify hook names.
func Default(mountID string) Pipeline {
	if mountID == "" {
		mountID = DefaultMountID
	}
	return Pipeline{
		Func{Label: "strip-module-syntax", Fn: StripModuleSyntax},
		Func{Label: "ensure-render-call", Fn: func(s string) string { return EnsureRenderCall(s, mountID) }},
		Func{Label: "qualify-hook-names", Fn: QualifyHookNames},
	}
}

// Apply runs every pass and returns the final text.
func (p Pipeline) Apply(text string) string {
	for _, r := range p {
		text = r.Rewrite(text)
	}
	return text
}

// Names lists the passes in order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, r := range p {
		names[i] = r.Name()
	}
	return names
}

// splitLines splits text into lines that keep their terminators, so that
// joining the result reproduces the input exactly.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
