package loader

import (
	"context"
	"time"
)

// Loader is the capability shared by every resource-loading strategy.
type Loader interface {
	// Load fetches the content and freshness token of a resource.
	Load(ctx context.Context, id ID) (*Resource, error)

	// IsFresh reports whether a token obtained from an earlier Load is still
	// valid for id. It has no side effects.
	IsFresh(ctx context.Context, id ID, token Token) (bool, error)
}

// Resource is the result of a successful Load.
type Resource struct {
	ID ID

	// Content is shared with any cache holding it and must not be modified.
	Content []byte

	Token Token

	// LoadedAt is when the content was obtained from the underlying source.
	LoadedAt time.Time
}

// Token is a freshness marker captured alongside loaded content. Each loader
// fills the fields it can validate later; callers treat it as opaque.
type Token struct {
	// ETag from an HTTP origin (If-None-Match)
	ETag string `json:"etag,omitempty"`

	// LastModified is the file mtime or the HTTP Last-Modified header
	LastModified time.Time `json:"last_modified,omitempty"`

	// Size of the content in bytes, where the source reports it
	Size int64 `json:"size,omitempty"`

	// Hash is the xxh3 digest of the content
	Hash uint64 `json:"hash,omitempty"`

	// Version is a source-assigned revision label
	Version string `json:"version,omitempty"`
}

// IsZero reports whether the token carries no validation data at all.
func (t Token) IsZero() bool {
	return t.ETag == "" && t.LastModified.IsZero() && t.Size == 0 && t.Hash == 0 && t.Version == ""
}

// Conditional reports whether the token can be validated with an HTTP
// conditional request.
func (t Token) Conditional() bool {
	return t.ETag != "" || !t.LastModified.IsZero()
}
