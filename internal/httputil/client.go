// Package httputil carries the HTTP plumbing shared by the monitor API
// and the deploy tooling: JSON response helpers on the server side, and
// a client seam with a scriptable mock for code that calls the API.
package httputil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPClient is the client seam. Production code wraps *http.Client via
// NewStandardClient; tests hand in a MockHTTPClient.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
	Get(url string) (*http.Response, error)
	Post(url, contentType string, body io.Reader) (*http.Response, error)
}

// StandardClient adapts *http.Client to HTTPClient.
type StandardClient struct {
	c *http.Client
}

// NewStandardClient wraps c, or http.DefaultClient when c is nil.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{c: c}
}

func (s *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return s.c.Do(req)
}

func (s *StandardClient) Get(url string) (*http.Response, error) {
	return s.c.Get(url)
}

func (s *StandardClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	return s.c.Post(url, contentType, body)
}

// canned is one scripted result in a MockHTTPClient's queue.
type canned struct {
	status int
	body   string
	err    error
}

// MockHTTPClient implements HTTPClient for tests. Every request is
// recorded in Requests. Results come from the DoFunc hook when set,
// otherwise from the queued responses in order, otherwise an empty 200.
// Safe for concurrent use.
type MockHTTPClient struct {
	mu       sync.Mutex
	Requests []*http.Request

	// DoFunc, when set, handles every request and bypasses the queue.
	DoFunc func(req *http.Request) (*http.Response, error)

	queue []canned
	next  int
}

// NewMockHTTPClient creates an empty mock client.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a response for the next unscripted request.
// Returns the client so setup can chain.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, canned{status: status, body: body})
	return m
}

// AddErrorResponse queues a transport-level failure.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, canned{err: err})
	return m
}

// Do records the request and returns the next scripted result.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if m.DoFunc != nil {
		return m.DoFunc(req)
	}

	if m.next < len(m.queue) {
		resp := m.queue[m.next]
		m.next++
		if resp.err != nil {
			return nil, resp.err
		}
		return makeResponse(req, resp.status, resp.body), nil
	}

	return makeResponse(req, http.StatusOK, ""), nil
}

func (m *MockHTTPClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return m.Do(req)
}

func (m *MockHTTPClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return m.Do(req)
}

// LastRequest returns the most recently recorded request, or nil.
func (m *MockHTTPClient) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil
	}
	return m.Requests[len(m.Requests)-1]
}

// RequestCount returns how many requests the mock has seen.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Reset clears recorded requests and scripted responses.
func (m *MockHTTPClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = nil
	m.queue = nil
	m.next = 0
	m.DoFunc = nil
}

func makeResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
		Request:    req,
	}
}
