package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/caffeineduck/jsxpad/compiler"
	"github.com/caffeineduck/jsxpad/document"
	"github.com/caffeineduck/jsxpad/executor"
	"github.com/caffeineduck/jsxpad/internal/metrics"
	"github.com/caffeineduck/jsxpad/playground"
	"github.com/caffeineduck/jsxpad/transform"
	"github.com/go-chi/chi/v5"
)

type codeRequest struct {
	Code    string `json:"code"`
	Timeout string `json:"timeout,omitempty"`
}

type compileResponse struct {
	Code string `json:"code"`
}

type errorResponse struct {
	Error    string             `json:"error"`
	Kind     string             `json:"kind,omitempty"`
	Messages []compiler.Message `json:"messages,omitempty"`
}

type executeResponse struct {
	Markup       string   `json:"markup"`
	RuntimeError string   `json:"runtime_error,omitempty"`
	Error        string   `json:"error,omitempty"`
	Console      []string `json:"console"`
	DurationMs   int64    `json:"duration_ms"`
}

type createSessionRequest struct {
	Seed string `json:"seed,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type sessionResponse struct {
	SessionID  string           `json:"session_id"`
	Source     string           `json:"source"`
	State      playground.State `json:"state"`
	Error      string           `json:"error,omitempty"`
	Generation uint64           `json:"generation"`
}

type runResponse struct {
	State        playground.State   `json:"state"`
	Kind         string             `json:"kind"`
	Error        string             `json:"error,omitempty"`
	Messages     []compiler.Message `json:"messages,omitempty"`
	Markup       string             `json:"markup"`
	RuntimeError string             `json:"runtime_error,omitempty"`
	Console      []string           `json:"console"`
	Generation   uint64             `json:"generation"`
	Digest       string             `json:"digest,omitempty"`
	DurationMs   int64              `json:"duration_ms"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writePipelineError maps a not-ready or compile error to its response.
func writePipelineError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Kind: playground.Classify(err).String()}
	var cerr *compiler.Error
	switch {
	case errors.Is(err, compiler.ErrNotReady):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, resp)
	case errors.As(err, &cerr):
		resp.Messages = cerr.Messages
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	default:
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

func decodeCode(w http.ResponseWriter, r *http.Request) (codeRequest, bool) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return req, false
	}
	if req.Code == "" {
		http.Error(w, "code required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// runTimeout parses a client timeout. The configured timeout is both the
// default and the upper bound.
func (s *Server) runTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return s.cfg.Timeout, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid timeout %q: want a positive duration", raw)
	}
	return min(d, s.cfg.Timeout), nil
}

// compile runs the transform passes and the compiler on code.
func (s *Server) compile(code string) (string, error) {
	handle, err := s.cfg.Compiler.Handle()
	if err != nil {
		return "", err
	}
	start := time.Now()
	out, err := handle.Compile(transform.Default(s.cfg.MountID).Apply(code))
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveCompile(time.Since(start), err)
	}
	return out, err
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCode(w, r)
	if !ok {
		return
	}
	out, err := s.compile(req.Code)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, compileResponse{Code: out})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCode(w, r)
	if !ok {
		return
	}
	if s.cfg.Executor == nil {
		http.Error(w, "headless execution not configured", http.StatusNotImplemented)
		return
	}

	timeout, err := s.runTimeout(req.Timeout)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	out, err := s.compile(req.Code)
	if err != nil {
		s.observeRun(playground.Report{Err: err, Duration: time.Since(start)})
		writePipelineError(w, err)
		return
	}

	doc := document.New(out, nil, document.WithMountID(s.cfg.MountID))
	result := s.loader(timeout).Load(r.Context(), doc)
	s.observeRun(playground.Report{Render: result, Duration: time.Since(start)})

	writeJSON(w, http.StatusOK, executeBody(result))
}

func (s *Server) observeRun(rep playground.Report) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveRun(metrics.Outcome(rep), rep.Duration)
	}
}

func executeBody(result executor.Result) executeResponse {
	resp := executeResponse{
		Markup:       result.Markup,
		RuntimeError: result.RuntimeError,
		Console:      result.Console,
		DurationMs:   result.Duration.Milliseconds(),
	}
	if resp.Console == nil {
		resp.Console = []string{}
	}
	if result.Error != nil {
		resp.Error = result.Error.Error()
	}
	return resp
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	id, pg, err := s.sessions.create(r.Context(), req.Seed)
	if err != nil {
		http.Error(w, "failed to create session: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// automatic first run, once the compiler is available
	pg.Start(context.WithoutCancel(r.Context()))

	writeJSON(w, http.StatusOK, createSessionResponse{SessionID: id})
}

// session resolves the {id} URL parameter, writing the error response
// itself when it fails.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *playground.Playground, bool) {
	id := chi.URLParam(r, "id")
	pg, err := s.sessions.get(r.Context(), id)
	if err != nil {
		if errors.Is(err, errSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
		} else {
			http.Error(w, "failed to load session: "+err.Error(), http.StatusInternalServerError)
		}
		return id, nil, false
	}
	return id, pg, true
}

func sessionBody(id string, pg *playground.Playground) sessionResponse {
	resp := sessionResponse{
		SessionID:  id,
		Source:     pg.Source(),
		State:      pg.State(),
		Generation: pg.Frame().Generation,
	}
	if err := pg.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, pg, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionBody(id, pg))
}

func (s *Server) handleSetSource(w http.ResponseWriter, r *http.Request) {
	id, pg, ok := s.session(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	pg.SetSource(req.Code)
	if err := s.sessions.save(r.Context(), id, pg); err != nil {
		s.logger.Warn("failed to persist draft", "session_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	_, pg, ok := s.session(w, r)
	if !ok {
		return
	}

	rep := pg.Run(r.Context())

	resp := runResponse{
		State:        rep.State,
		Kind:         rep.Kind().String(),
		Markup:       rep.Render.Markup,
		RuntimeError: rep.Render.RuntimeError,
		Console:      rep.Render.Console,
		Generation:   rep.Generation,
		DurationMs:   rep.Duration.Milliseconds(),
	}
	if resp.Console == nil {
		resp.Console = []string{}
	}
	if rep.Err != nil {
		resp.Error = rep.Err.Error()
		var cerr *compiler.Error
		if errors.As(rep.Err, &cerr) {
			resp.Messages = cerr.Messages
		}
	} else if rep.Render.Error != nil {
		resp.Error = rep.Render.Error.Error()
	}
	if rep.Document != nil {
		resp.Digest = rep.Document.Digest()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, pg, ok := s.session(w, r)
	if !ok {
		return
	}
	pg.Reset()
	if err := s.sessions.save(r.Context(), id, pg); err != nil {
		s.logger.Warn("failed to persist draft", "session_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, sessionBody(id, pg))
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	_, pg, ok := s.session(w, r)
	if !ok {
		return
	}
	frame := pg.Frame()
	if frame.Empty() {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}

	etag := `"` + frame.Document.Digest() + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Security-Policy", FrameCSP)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, frame.Document.HTML())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions.close(r.Context(), chi.URLParam(r, "id")) {
		w.WriteHeader(http.StatusNoContent)
	} else {
		http.Error(w, "session not found", http.StatusNotFound)
	}
}
