package loader

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Mux dispatches to other loaders by identifier scheme. Identifiers without
// a scheme go to the loader registered for "".
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Loader
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Loader)}
}

// Handle registers l for scheme, replacing any existing loader.
func (m *Mux) Handle(scheme string, l Loader) {
	if l == nil {
		panic("mux: nil loader for scheme " + scheme)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[strings.ToLower(scheme)] = l
}

// HandleIfAbsent registers l for scheme only when no loader is installed for
// it yet. It reports whether l was installed.
func (m *Mux) HandleIfAbsent(scheme string, l Loader) bool {
	if l == nil {
		panic("mux: nil loader for scheme " + scheme)
	}
	scheme = strings.ToLower(scheme)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[scheme]; ok {
		return false
	}
	m.handlers[scheme] = l
	return true
}

// Handler returns the loader installed for scheme.
func (m *Mux) Handler(scheme string) (Loader, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.handlers[strings.ToLower(scheme)]
	return l, ok
}

// Schemes lists the installed schemes in sorted order.
func (m *Mux) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	schemes := make([]string, 0, len(m.handlers))
	for s := range m.handlers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Load dispatches to the loader for id's scheme.
func (m *Mux) Load(ctx context.Context, id ID) (*Resource, error) {
	l, err := m.route(id)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, id)
}

// IsFresh dispatches to the loader for id's scheme.
func (m *Mux) IsFresh(ctx context.Context, id ID, token Token) (bool, error) {
	l, err := m.route(id)
	if err != nil {
		return false, err
	}
	return l.IsFresh(ctx, id, token)
}

func (m *Mux) route(id ID) (Loader, error) {
	scheme := id.Scheme()
	if l, ok := m.Handler(scheme); ok {
		return l, nil
	}
	return nil, notFound("route", id, fmt.Errorf("no loader for scheme %q", scheme))
}

var (
	defaultMux     = NewMux()
	defaultMuxOnce sync.Once
)

// Default returns the process-wide Mux. On first use it installs a root-less
// FileLoader for "file" and "" and a URLLoader for "http" and "https", unless
// a loader was already registered for those schemes through DefaultMux.
func Default() *Mux {
	defaultMuxOnce.Do(installDefaults)
	return defaultMux
}

// DefaultMux returns the process-wide Mux without installing the built-in
// loaders, so callers can claim schemes before Default runs.
func DefaultMux() *Mux {
	return defaultMux
}

func installDefaults() {
	files := NewFileLoader("")
	defaultMux.HandleIfAbsent("file", files)
	defaultMux.HandleIfAbsent("", files)

	// An empty base url always parses.
	web, _ := NewURLLoader(DefaultURLConfig(""))
	defaultMux.HandleIfAbsent("http", web)
	defaultMux.HandleIfAbsent("https", web)
}
