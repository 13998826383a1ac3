package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
)

// FileLoader loads resources from the local filesystem.
//
// Tokens carry the file's modification time, size and xxh3 content hash.
type FileLoader struct {
	root        string
	contentHash bool
	logger      zerolog.Logger
}

// FileOption configures a FileLoader.
type FileOption func(*FileLoader)

// WithContentHash makes IsFresh confirm a modification time or size change by
// hashing the current content. A file touched without changes stays fresh.
func WithContentHash() FileOption {
	return func(f *FileLoader) {
		f.contentHash = true
	}
}

// WithFileLogger sets the file loader's logger.
func WithFileLogger(logger zerolog.Logger) FileOption {
	return func(f *FileLoader) {
		f.logger = logger
	}
}

// NewFileLoader creates a file loader. When root is non-empty, identifiers are
// resolved relative to it and may not escape it; otherwise identifiers are
// used as paths directly.
func NewFileLoader(root string, opts ...FileOption) *FileLoader {
	f := &FileLoader{
		logger: zerolog.Nop(),
	}
	if root != "" {
		f.root = filepath.Clean(root)
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Root returns the directory identifiers are resolved against.
func (f *FileLoader) Root() string {
	return f.root
}

// Load reads the file named by id.
func (f *FileLoader) Load(ctx context.Context, id ID) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, ioError("load", id, err)
	}

	path, err := f.resolve(id)
	if err != nil {
		recordError("file", err)
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		err = f.classify("load", id, err)
		recordError("file", err)
		return nil, err
	}
	if info.IsDir() {
		err = ioError("load", id, fmt.Errorf("%s is a directory", path))
		recordError("file", err)
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		err = f.classify("load", id, err)
		recordError("file", err)
		return nil, err
	}

	f.logger.Debug().
		Str("id", string(id)).
		Str("path", path).
		Int("size", len(content)).
		Msg("File loaded")

	return &Resource{
		ID:      id,
		Content: content,
		Token: Token{
			LastModified: info.ModTime(),
			Size:         info.Size(),
			Hash:         xxh3.Hash(content),
		},
		LoadedAt: time.Now(),
	}, nil
}

// IsFresh reports whether the file still has the modification time and size
// recorded in token. With WithContentHash a mismatch is re-checked against the
// content hash.
func (f *FileLoader) IsFresh(ctx context.Context, id ID, token Token) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, stalenessError(id, err)
	}

	path, err := f.resolve(id)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, f.classify("is_fresh", id, err)
	}
	if info.IsDir() {
		return false, ioError("is_fresh", id, fmt.Errorf("%s is a directory", path))
	}

	if info.ModTime().Equal(token.LastModified) && info.Size() == token.Size {
		return true, nil
	}
	if !f.contentHash || token.Hash == 0 || info.Size() != token.Size {
		return false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return false, f.classify("is_fresh", id, err)
	}
	return xxh3.Hash(content) == token.Hash, nil
}

// resolve maps id to a filesystem path.
func (f *FileLoader) resolve(id ID) (string, error) {
	p := id.Path()
	if p == "" {
		return "", notFound("load", id, errors.New("empty path"))
	}
	if f.root == "" {
		return filepath.FromSlash(p), nil
	}

	rel := filepath.FromSlash(strings.TrimPrefix(p, "/"))
	path := filepath.Join(f.root, rel)
	within, err := filepath.Rel(f.root, path)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", notFound("load", id, fmt.Errorf("path escapes root %s", f.root))
	}
	return path, nil
}

func (f *FileLoader) classify(op string, id ID, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(op, id, err)
	}
	return ioError(op, id, err)
}
