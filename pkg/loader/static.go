package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"
)

// staticVersion marks tokens issued by a StaticLoader.
const staticVersion = "static"

// StaticLoader serves a fixed, in-memory set of resources. Its content never
// changes at runtime, so every token it issues stays fresh.
type StaticLoader struct {
	resources map[ID][]byte
	loadedAt  time.Time
}

// NewStaticLoader creates a static loader from string contents.
func NewStaticLoader(resources map[string]string) *StaticLoader {
	s := &StaticLoader{
		resources: make(map[ID][]byte, len(resources)),
		loadedAt:  time.Now(),
	}
	for id, content := range resources {
		s.resources[ID(id)] = []byte(content)
	}
	return s
}

// NewStaticLoaderBytes creates a static loader from byte contents. The map and
// its values are copied.
func NewStaticLoaderBytes(resources map[string][]byte) *StaticLoader {
	s := &StaticLoader{
		resources: make(map[ID][]byte, len(resources)),
		loadedAt:  time.Now(),
	}
	for id, content := range resources {
		s.resources[ID(id)] = append([]byte(nil), content...)
	}
	return s
}

// NewStaticLoaderFromYAML reads a flat YAML mapping of identifier to content.
//
//	greeting: hello
//	templates/page.html: |
//	  <html>...</html>
func NewStaticLoaderFromYAML(r io.Reader) (*StaticLoader, error) {
	resources := map[string]string{}
	if err := yaml.NewDecoder(r).Decode(&resources); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode static resources: %w", err)
	}
	return NewStaticLoader(resources), nil
}

// Load returns the content registered for id.
func (s *StaticLoader) Load(ctx context.Context, id ID) (*Resource, error) {
	content, ok := s.resources[id]
	if !ok {
		err := notFound("load", id, nil)
		recordError("static", err)
		return nil, err
	}
	return &Resource{
		ID:      id,
		Content: content,
		Token: Token{
			Size:    int64(len(content)),
			Hash:    xxh3.Hash(content),
			Version: staticVersion,
		},
		LoadedAt: s.loadedAt,
	}, nil
}

// IsFresh always reports true.
func (s *StaticLoader) IsFresh(ctx context.Context, id ID, token Token) (bool, error) {
	return true, nil
}

// IDs returns the registered identifiers in sorted order.
func (s *StaticLoader) IDs() []ID {
	ids := make([]ID, 0, len(s.resources))
	for id := range s.resources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
