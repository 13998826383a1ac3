// Package testutil provides testing utilities for resource loaders.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines a fixed response for a mock origin path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// document is a versioned resource served with validators.
type document struct {
	body         string
	etag         string
	lastModified time.Time
}

// MockOrigin is a configurable HTTP origin that honours conditional requests.
type MockOrigin struct {
	server    *httptest.Server
	mu        sync.RWMutex
	handlers  map[string]func(w http.ResponseWriter, r *http.Request)
	documents map[string]*document
	failures  map[string]int
	revision  int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	NotModifiedCount  int
	PathCount         map[string]int
	LastRequestHeader http.Header
}

// NewMockOrigin creates and starts a mock origin.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		documents: make(map[string]*document),
		failures:  make(map[string]int),
		PathCount: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

func (m *MockOrigin) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.PathCount[r.URL.Path]++
	m.LastRequestHeader = r.Header.Clone()
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.ConditionalCount++
	}

	// Injected failures are served before anything else
	if n := m.failures[r.URL.Path]; n > 0 {
		m.failures[r.URL.Path] = n - 1
		m.mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("injected failure"))
		return
	}

	handler, hasHandler := m.handlers[r.URL.Path]
	var doc document
	d, hasDoc := m.documents[r.URL.Path]
	if hasDoc {
		doc = *d
	}
	m.mu.Unlock()

	if hasHandler {
		handler(w, r)
		return
	}
	if !hasDoc {
		http.NotFound(w, r)
		return
	}

	if doc.etag != "" {
		w.Header().Set("ETag", doc.etag)
	}
	if !doc.lastModified.IsZero() {
		w.Header().Set("Last-Modified", doc.lastModified.UTC().Format(http.TimeFormat))
	}

	if notModified(r, doc) {
		m.mu.Lock()
		m.NotModifiedCount++
		m.mu.Unlock()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc.body))
}

func notModified(r *http.Request, doc document) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		return doc.etag != "" && inm == doc.etag
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" && !doc.lastModified.IsZero() {
		since, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		return !doc.lastModified.Truncate(time.Second).After(since)
	}
	return false
}

// URL returns the mock server URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Client returns an HTTP client configured for the mock server.
func (m *MockOrigin) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.NotModifiedCount = 0
	m.PathCount = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetDocument publishes body at path with a fresh ETag and Last-Modified.
// It returns the ETag.
func (m *MockOrigin) SetDocument(path, body string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revision++
	etag := fmt.Sprintf(`"rev-%d"`, m.revision)
	m.documents[path] = &document{
		body:         body,
		etag:         etag,
		lastModified: time.Now().Add(time.Duration(m.revision) * time.Second),
	}
	return etag
}

// SetDocumentLastModified publishes body at path validated by Last-Modified only.
func (m *MockOrigin) SetDocumentLastModified(path, body string, lastModified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[path] = &document{body: body, lastModified: lastModified}
}

// DeleteDocument removes path; subsequent requests get 404.
func (m *MockOrigin) DeleteDocument(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, path)
}

// FailNext makes the next n requests to path answer 500.
func (m *MockOrigin) FailNext(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = n
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOrigin) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockOrigin) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockOrigin) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCount[path]
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockOrigin) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetNotModifiedCount returns the number of 304 responses served.
func (m *MockOrigin) GetNotModifiedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.NotModifiedCount
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "internal server error",
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       "rate limit exceeded",
		Headers:    map[string]string{"Retry-After": retryAfter},
	}
}
