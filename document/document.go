// Package document builds the isolated execution document that a compiled
// component runs in.
//
// A Document is a plain value: head metadata, runtime library references,
// a stylesheet, body markup holding exactly one mount element, and the
// guarded inline script. It is rendered to HTML in one piece and handed to a
// loader as a single atomic replacement, never patched in place.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"regexp"
	"strings"
)

var scriptBreakout = regexp.MustCompile(`(?i)</script|<!--`)

// Runtime library pins.
const (
	ReactVersion    = "18.2.0"
	ReactDOMVersion = "18.2.0"

	ReactURL    = "https://unpkg.com/react@" + ReactVersion + "/umd/react.development.js"
	ReactDOMURL = "https://unpkg.com/react-dom@" + ReactDOMVersion + "/umd/react-dom.development.js"
)

// DefaultTitle is the title of every generated document.
const DefaultTitle = "Preview"

// DefaultStyles is the minimal stylesheet injected into every document.
const DefaultStyles = `body { margin: 0; padding: 16px; font-family: system-ui, -apple-system, sans-serif; }
.runtime-error { color: #b91c1c; background: #fef2f2; padding: 12px; border-radius: 4px; white-space: pre-wrap; }`

// Meta is a single head meta element.
type Meta struct {
	Charset string `json:"charset,omitempty"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`
}

// ScriptRef references an external runtime library.
type ScriptRef struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	URL         string `json:"url"`
	CrossOrigin bool   `json:"crossorigin,omitempty"`
}

// Libraries are the runtime references injected into a document.
type Libraries []ScriptRef

// DefaultLibraries returns React and ReactDOM UMD builds.
func DefaultLibraries() Libraries {
	return Libraries{
		{Name: "react", Version: ReactVersion, URL: ReactURL, CrossOrigin: true},
		{Name: "react-dom", Version: ReactDOMVersion, URL: ReactDOMURL, CrossOrigin: true},
	}
}

// Document is the full isolated-document payload.
type Document struct {
	Title   string      `json:"title"`
	Meta    []Meta      `json:"meta"`
	Styles  string      `json:"styles"`
	Scripts []ScriptRef `json:"scripts"`
	MountID string      `json:"mount_id"`
	Body    string      `json:"body"`
	// Inline is the guarded script body, not yet escaped for embedding.
	Inline string `json:"inline"`
}

// Option adjusts a Document built by New.
type Option func(*Document)

// WithMountID sets the mount element id. The default is "root".
func WithMountID(id string) Option {
	return func(d *Document) {
		if id != "" {
			d.MountID = id
		}
	}
}

// WithTitle sets the document title.
func WithTitle(title string) Option {
	return func(d *Document) {
		d.Title = title
	}
}

// WithStyles replaces the default stylesheet.
func WithStyles(css string) Option {
	return func(d *Document) {
		d.Styles = css
	}
}

// New builds a document that runs script, guarded, against libs. A nil libs
// uses DefaultLibraries.
func New(script string, libs Libraries, opts ...Option) *Document {
	if libs == nil {
		libs = DefaultLibraries()
	}
	d := &Document{
		Title: DefaultTitle,
		Meta: []Meta{
			{Charset: "utf-8"},
			{Name: "viewport", Content: "width=device-width, initial-scale=1"},
		},
		Styles:  DefaultStyles,
		Scripts: append([]ScriptRef(nil), libs...),
		MountID: "root",
	}
	for _, opt := range opts {
		opt(d)
	}
	d.Body = MountElement(d.MountID)
	d.Inline = Guard(d.MountID, script)
	return d
}

// MountElement returns the markup of the mount element.
func MountElement(id string) string {
	return `<div id="` + html.EscapeString(id) + `"></div>`
}

// Guard wraps script in a try/catch that writes any thrown error into the
// mount element and records it on window.__runtimeError. Errors raised
// later from callbacks are routed the same way by an error listener.
func Guard(mountID, script string) string {
	id := jsString(mountID)
	var b strings.Builder
	b.WriteString("(function () {\n")
	b.WriteString("  var mountId = " + id + ";\n")
	b.WriteString(`  function showError(err) {
    var message = (err && err.message) ? err.message : String(err);
    window.__runtimeError = message;
    var mount = document.getElementById(mountId);
    if (!mount) return;
    var pre = document.createElement("pre");
    pre.className = "runtime-error";
    pre.textContent = "Error: " + message;
    mount.innerHTML = "";
    mount.appendChild(pre);
  }
  window.addEventListener("error", function (event) {
    showError(event.error || event.message);
  });
  try {
`)
	b.WriteString(script)
	if !strings.HasSuffix(script, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("  } catch (err) {\n    showError(err);\n  }\n})();\n")
	return b.String()
}

// ErrorMarkup is the mount content the guard produces for message.
func ErrorMarkup(message string) string {
	return `<pre class="runtime-error">Error: ` + textEscaper.Replace(message) + `</pre>`
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// HTML renders the complete, self-contained document.
func (d *Document) HTML() string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	for _, m := range d.Meta {
		switch {
		case m.Charset != "":
			fmt.Fprintf(&b, "<meta charset=\"%s\">\n", html.EscapeString(m.Charset))
		default:
			fmt.Fprintf(&b, "<meta name=\"%s\" content=\"%s\">\n", html.EscapeString(m.Name), html.EscapeString(m.Content))
		}
	}
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(d.Title))
	if d.Styles != "" {
		b.WriteString("<style>\n")
		b.WriteString(strings.ReplaceAll(d.Styles, "</style", `<\/style`))
		b.WriteString("\n</style>\n")
	}
	for _, s := range d.Scripts {
		b.WriteString(`<script src="` + html.EscapeString(s.URL) + `"`)
		if s.CrossOrigin {
			b.WriteString(" crossorigin")
		}
		b.WriteString("></script>\n")
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString(d.Body)
	b.WriteString("\n<script>\n")
	b.WriteString(EscapeScript(d.Inline))
	b.WriteString("</script>\n</body>\n</html>\n")
	return b.String()
}

// Digest returns a stable content hash of the rendered document.
func (d *Document) Digest() string {
	sum := sha256.Sum256([]byte(d.HTML()))
	return hex.EncodeToString(sum[:])
}

// EscapeScript makes text safe to place inside an inline script element.
// Closing tags and comment openers get a backslash, which JavaScript string
// literals ignore.
func EscapeScript(text string) string {
	return scriptBreakout.ReplaceAllStringFunc(text, func(m string) string {
		return m[:1] + `\` + m[1:]
	})
}

func jsString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "<", `\u003c`)
	return `"` + r.Replace(s) + `"`
}
