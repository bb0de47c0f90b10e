package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/jsxpad/hostfunc"
)

// Protocol framing between the wasm engine's prelude and the host.
// Calls:   \x00JSXPAD:{json}\x00, answered with one JSON line on stdin.
// Result:  \x00JSXPAD_RESULT:{json}\x00, sent once when the document settles.
const (
	protocolPrefix       = "\x00JSXPAD:"
	protocolResultPrefix = "\x00JSXPAD_RESULT:"
	protocolSuffix       = "\x00"
)

type messageType int

const (
	messageNone messageType = iota
	messageCall
	messageResult
)

type callRequest struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// dispatch runs one host call against registry. Both engines go through it.
func dispatch(ctx context.Context, registry *hostfunc.Registry, req callRequest) callResponse {
	fn, ok := registry.Get(req.Fn)
	if !ok {
		return callResponse{Error: "unknown function: " + req.Fn}
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}

	result, err := fn(ctx, req.Args)
	if err != nil {
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: result}
}

// dispatchJSON decodes a raw request, runs it and encodes the response.
func dispatchJSON(ctx context.Context, registry *hostfunc.Registry, raw string) string {
	var req callRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return encodeResponse(callResponse{Error: "invalid call format"})
	}
	return encodeResponse(dispatch(ctx, registry, req))
}

func encodeResponse(resp callResponse) string {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(callResponse{Error: "unencodable result: " + err.Error()})
	}
	return string(data)
}

// findNextMessage returns the index and kind of the first framed message in
// content, or -1 and messageNone.
func findNextMessage(content string) (int, messageType) {
	idx := strings.Index(content, "\x00JSXPAD")
	for idx != -1 {
		rest := content[idx:]
		switch {
		case strings.HasPrefix(rest, protocolPrefix):
			return idx, messageCall
		case strings.HasPrefix(rest, protocolResultPrefix):
			return idx, messageResult
		case strings.HasPrefix(protocolResultPrefix, rest) || strings.HasPrefix(protocolPrefix, rest):
			// header split across writes
			return idx, messageNone
		}
		next := strings.Index(content[idx+1:], "\x00JSXPAD")
		if next == -1 {
			break
		}
		idx += 1 + next
	}
	return -1, messageNone
}

// partialHeader returns where a header cut off at the end of content
// starts, or len(content) when there is none.
func partialHeader(content string) int {
	const header = "\x00JSXPAD"
	for n := min(len(header)-1, len(content)); n > 0; n-- {
		if strings.HasSuffix(content, header[:n]) {
			return len(content) - n
		}
	}
	return len(content)
}

// extractMessage splits off the payload of the message at idx. ok is false
// while the terminator has not arrived yet.
func extractMessage(content string, idx int, prefix string) (payload, remaining string, ok bool) {
	start := idx + len(prefix)
	end := strings.Index(content[start:], protocolSuffix)
	if end == -1 {
		return "", content[idx:], false
	}
	return content[start : start+end], content[start+end+len(protocolSuffix):], true
}

// protocolHandler sits on the module's stderr. Plain output passes through;
// framed calls are dispatched and the result message is captured.
type protocolHandler struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter *io.PipeWriter
	realStderr  bytes.Buffer
	buf         bytes.Buffer
	result      string
	hasResult   bool
	mu          sync.Mutex
}

func newProtocolHandler(ctx context.Context, registry *hostfunc.Registry, stdinWriter *io.PipeWriter) *protocolHandler {
	return &protocolHandler{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
	}
}

func (p *protocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)
	content := p.buf.String()

	for {
		idx, kind := findNextMessage(content)
		if idx == -1 {
			keep := partialHeader(content)
			p.realStderr.WriteString(content[:keep])
			content = content[keep:]
			break
		}
		p.realStderr.WriteString(content[:idx])

		if kind == messageNone {
			content = content[idx:]
			break
		}

		prefix := protocolPrefix
		if kind == messageResult {
			prefix = protocolResultPrefix
		}
		payload, remaining, ok := extractMessage(content, idx, prefix)
		if !ok {
			content = remaining
			break
		}
		content = remaining

		if kind == messageResult {
			p.result = payload
			p.hasResult = true
			continue
		}
		p.respond(dispatchJSON(p.ctx, p.registry, payload))
	}

	p.buf.Reset()
	p.buf.WriteString(content)
	return len(data), nil
}

func (p *protocolHandler) respond(line string) {
	go p.stdinWriter.Write([]byte(line + "\n"))
}

// Result returns the captured result payload, if the module sent one.
func (p *protocolHandler) Result() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.hasResult
}

func (p *protocolHandler) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}
