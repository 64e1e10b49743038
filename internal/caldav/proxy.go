// Package caldav publishes prayer times and tasks to a CalDAV calendar.
package caldav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrNotConnected is returned when a user has no usable CalDAV account.
	ErrNotConnected = errors.New("caldav: not connected")
	// ErrUnauthorized is returned when the server rejects the credentials.
	ErrUnauthorized = errors.New("caldav: unauthorized")
)

// Request is one authenticated WebDAV call.
type Request struct {
	Method   string
	URL      string
	Username string
	Password string
	Headers  map[string]string
	Body     []byte
}

type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Proxy performs WebDAV requests on the client's behalf.
type Proxy interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// HTTPProxy sends requests directly with basic auth.
type HTTPProxy struct {
	client *http.Client
}

func NewHTTPProxy(timeout time.Duration) *HTTPProxy {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProxy{client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProxy) Invoke(ctx context.Context, r Request) (*Response, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", r.Method, err)
	}
	if r.Username != "" || r.Password != "" {
		req.SetBasicAuth(r.Username, r.Password)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.URL, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", r.Method, err)
	}
	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}
