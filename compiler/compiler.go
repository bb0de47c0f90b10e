// Package compiler turns transformed component source (JSX and modern
// syntax) into plain script text using esbuild.
//
// The configuration is fixed: JSX is lowered to React.createElement calls
// and everything else is down-levelled to ES2015, wrapped in an IIFE so no
// module syntax reaches the execution context.
package compiler

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Config is the preset pair handed to esbuild.
type Config struct {
	// JSX preset.
	JSXFactory  string
	JSXFragment string

	// Syntax preset.
	Target api.Target
	Format api.Format

	// Sourcefile names the input in error messages.
	Sourcefile string
}

// DefaultConfig returns the configuration every pipeline run uses.
func DefaultConfig() Config {
	return Config{
		JSXFactory:  "React.createElement",
		JSXFragment: "React.Fragment",
		Target:      api.ES2015,
		Format:      api.FormatIIFE,
		Sourcefile:  "component.jsx",
	}
}

// Message is a single compiler diagnostic. Line and Column are 1-based.
type Message struct {
	Text     string `json:"text"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	LineText string `json:"line_text,omitempty"`
}

func (m Message) String() string {
	if m.Line == 0 {
		return m.Text
	}
	return fmt.Sprintf("line %d, column %d: %s", m.Line, m.Column, m.Text)
}

// Error is returned when the source does not compile. The first message is
// the one shown to users.
type Error struct {
	Messages []Message
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return "syntax error"
	}
	return "syntax error at " + e.Messages[0].String()
}

// Compile transforms text with cfg.
func Compile(text string, cfg Config) (string, error) {
	result := api.Transform(text, api.TransformOptions{
		Loader:            api.LoaderJSX,
		JSX:               api.JSXTransform,
		JSXFactory:        cfg.JSXFactory,
		JSXFragment:       cfg.JSXFragment,
		Target:            cfg.Target,
		Format:            cfg.Format,
		Sourcefile:        cfg.Sourcefile,
		MinifySyntax:      false,
		MinifyWhitespace:  false,
		MinifyIdentifiers: false,
	})

	if len(result.Errors) > 0 {
		return "", newError(result.Errors)
	}
	return string(result.Code), nil
}

func newError(msgs []api.Message) *Error {
	e := &Error{Messages: make([]Message, 0, len(msgs))}
	for _, msg := range msgs {
		m := Message{Text: strings.TrimSpace(msg.Text)}
		if msg.Location != nil {
			m.Line = msg.Location.Line
			m.Column = msg.Location.Column + 1
			m.LineText = msg.Location.LineText
		}
		e.Messages = append(e.Messages, m)
	}
	return e
}
