package executor

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/caffeineduck/jsxpad/document"
)

//go:embed runtime.js
var runtimeJS string

// Program is a document prepared for headless execution. Source assembles
// engine prelude, runtime, mount setup, guarded script and settle epilogue
// into one script.
type Program struct {
	MountID string
	Inline  string

	// Storage routes localStorage through the storage_* host functions.
	Storage bool
	// HTTP routes fetch through http_request.
	HTTP bool

	MaxSteps     int
	MaxVirtualMS int
}

// Output is what the runtime emits once the document settles.
type Output struct {
	Markup        string   `json:"markup"`
	Error         string   `json:"error"`
	Console       []string `json:"console"`
	PendingTimers int      `json:"pending_timers"`
	VirtualMS     float64  `json:"virtual_ms"`
}

// NewProgram prepares doc for execution.
func NewProgram(doc *document.Document) *Program {
	mountID := doc.MountID
	if mountID == "" {
		mountID = "root"
	}
	return &Program{
		MountID:      mountID,
		Inline:       doc.Inline,
		MaxSteps:     2000,
		MaxVirtualMS: 30000,
	}
}

type bootOptions struct {
	MountID      string `json:"mountId"`
	Storage      bool   `json:"storage"`
	HTTP         bool   `json:"http"`
	MaxSteps     int    `json:"maxSteps,omitempty"`
	MaxVirtualMS int    `json:"maxVirtualMs,omitempty"`
}

// Source returns the complete script with prelude in front.
func (p *Program) Source(prelude string) string {
	boot, _ := json.Marshal(bootOptions{
		MountID:      p.MountID,
		Storage:      p.Storage,
		HTTP:         p.HTTP,
		MaxSteps:     p.MaxSteps,
		MaxVirtualMS: p.MaxVirtualMS,
	})

	var b strings.Builder
	b.Grow(len(prelude) + len(runtimeJS) + len(p.Inline) + 256)
	b.WriteString(prelude)
	b.WriteString("\n")
	b.WriteString(runtimeJS)
	b.WriteString("\n__jsxpad.boot(")
	b.Write(boot)
	b.WriteString(");\n")
	b.WriteString(p.Inline)
	b.WriteString("\n__jsxpad.settle();\n")
	return b.String()
}
