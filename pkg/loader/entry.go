package loader

import (
	"time"
)

// Entry is a cached resource: the content plus the token it was captured
// with. Entries are replaced wholesale on refresh, never mutated in place.
type Entry struct {
	// Content is the loaded payload
	Content []byte `json:"content"`

	// Token is the freshness token returned by the wrapped loader
	Token Token `json:"token"`

	// LoadedAt is when the wrapped loader produced the content
	LoadedAt time.Time `json:"loaded_at"`

	// CachedAt is when the entry was stored
	CachedAt time.Time `json:"cached_at"`
}

// Age returns how long the entry has been cached as of now.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.CachedAt)
	if age < 0 {
		return 0
	}
	return age
}

func (e *Entry) resource(id ID) *Resource {
	return &Resource{
		ID:       id,
		Content:  e.Content,
		Token:    e.Token,
		LoadedAt: e.LoadedAt,
	}
}
