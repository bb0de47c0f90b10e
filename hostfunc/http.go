package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 30 * time.Second
)

// HTTPConfig controls the outbound requests sandboxed fetch may make.
type HTTPConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
}

// HTTP backs the sandbox's fetch. Responses are returned whole and the
// runtime wraps them in a resolved Response.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Register adds http_request to r.
func (h *HTTP) Register(r *Registry) {
	r.Register("http_request", h.Request)
}

// fetchRequest is the init object fetch hands to the host.
type fetchRequest struct {
	method  string
	url     string
	body    string
	headers map[string]string
}

var fetchMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true, http.MethodDelete: true,
	http.MethodPatch: true, http.MethodHead: true, http.MethodOptions: true,
}

func parseFetchRequest(args map[string]any) (fetchRequest, error) {
	req := fetchRequest{method: http.MethodGet, headers: map[string]string{}}
	if m, _ := args["method"].(string); m != "" {
		req.method = strings.ToUpper(m)
	}
	if !fetchMethods[req.method] {
		return req, fmt.Errorf("unsupported method: %s", req.method)
	}

	req.url, _ = args["url"].(string)
	if req.url == "" {
		return req, errors.New("url required")
	}
	req.body, _ = args["body"].(string)

	if hs, ok := args["headers"].(map[string]any); ok {
		for k, v := range hs {
			if s, ok := v.(string); ok {
				req.headers[k] = s
			}
		}
	}
	return req, nil
}

// permit applies the size limits and the host allowlist.
func (h *HTTP) permit(req fetchRequest) error {
	if len(req.url) > h.cfg.MaxURLLength {
		return errors.New("url exceeds max length")
	}
	u, err := url.Parse(req.url)
	if err != nil {
		return errors.New("invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if len(h.cfg.AllowedHosts) == 0 {
		return errors.New("http not enabled")
	}
	if host := u.Hostname(); !hostAllowed(h.cfg.AllowedHosts, host) {
		return fmt.Errorf("host not allowed: %s", host)
	}
	if int64(len(req.body)) > h.cfg.MaxBodySize {
		return errors.New("request body exceeds max size")
	}
	return nil
}

// Request performs one fetch and returns the fields the runtime's Response
// needs.
func (h *HTTP) Request(ctx context.Context, args map[string]any) (any, error) {
	req, err := parseFetchRequest(args)
	if err != nil {
		return nil, err
	}
	if err := h.permit(req); err != nil {
		return nil, err
	}

	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return fetchResponse(req.url, resp, b), nil
}

// fetchResponse shapes resp like a browser Response. Header names are
// lower-cased and repeated values joined.
func fetchResponse(rawURL string, resp *http.Response, body []byte) map[string]any {
	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = strings.Join(v, ", ")
		}
	}
	return map[string]any{
		"status":     resp.StatusCode,
		"statusText": http.StatusText(resp.StatusCode),
		"ok":         resp.StatusCode >= 200 && resp.StatusCode < 300,
		"url":        rawURL,
		"body":       string(body),
		"headers":    headers,
	}
}

// hostAllowed matches domain names exactly or by subdomain. IP addresses
// only match an allowed IP, compared in normalised form.
func hostAllowed(allowed []string, host string) bool {
	ip := net.ParseIP(host)
	for _, a := range allowed {
		aip := net.ParseIP(a)
		switch {
		case ip != nil:
			if aip != nil && aip.Equal(ip) {
				return true
			}
		case aip == nil:
			if strings.EqualFold(host, a) || strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(a)) {
				return true
			}
		}
	}
	return false
}
