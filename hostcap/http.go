package hostcap

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/modra-dev/modra/sandbox"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 30 * time.Second
)

// HTTP provides outbound requests restricted to an allow-list of hosts.
// A request is permitted when its hostname equals an allowed host or is a
// subdomain of one.
type HTTP struct {
	allowedHosts []string
	maxBody      int64
	maxURL       int
	client       *http.Client
}

// NewHTTP returns an HTTP capability limited to the given hosts.
func NewHTTP(allowedHosts []string, limits sandbox.Limits) *HTTP {
	maxBody := limits.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	maxURL := limits.MaxURLLength
	if maxURL <= 0 {
		maxURL = DefaultMaxURLLength
	}
	timeout := limits.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	h := &HTTP{
		allowedHosts: allowedHosts,
		maxBody:      maxBody,
		maxURL:       maxURL,
	}
	// Redirects re-validate against the allow-list: an allowed server must
	// not be able to bounce a request to a host the policy never granted.
	h.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect scheme must be http or https")
			}
			if host := req.URL.Hostname(); !h.hostAllowed(host) {
				return fmt.Errorf("redirect to disallowed host: %s", host)
			}
			return nil
		},
	}
	return h
}

// Request performs an HTTP request on behalf of a script.
func (h *HTTP) Request(req Request) (Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
		http.MethodPatch, http.MethodHead, http.MethodOptions:
	default:
		return Response{}, fmt.Errorf("unsupported method: %s", method)
	}

	if req.URL == "" {
		return Response{}, fmt.Errorf("url required")
	}
	if len(req.URL) > h.maxURL {
		return Response{}, fmt.Errorf("url exceeds max length (%d)", h.maxURL)
	}
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return Response{}, fmt.Errorf("invalid url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Response{}, fmt.Errorf("scheme must be http or https")
	}
	host := parsed.Hostname()
	if !h.hostAllowed(host) {
		return Response{}, fmt.Errorf("host not allowed: %s", host)
	}

	var body io.Reader
	if req.Body != "" {
		if int64(len(req.Body)) > h.maxBody {
			return Response{}, fmt.Errorf("request body exceeds max size (%d)", h.maxBody)
		}
		body = bytes.NewBufferString(req.Body)
	}

	httpReq, err := http.NewRequest(method, req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBody))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return Response{
		Status:  resp.StatusCode,
		Body:    string(respBody),
		Headers: headers,
	}, nil
}

// Get performs a GET request.
func (h *HTTP) Get(rawURL string) (Response, error) {
	return h.Request(Request{Method: http.MethodGet, URL: rawURL})
}

func (h *HTTP) hostAllowed(host string) bool {
	for _, allowed := range h.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
