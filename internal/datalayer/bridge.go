package datalayer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/pkg/ignore"
	"github.com/fulmenhq/contentaudit/pkg/logger"
	"github.com/fulmenhq/contentaudit/pkg/safeio"
	"github.com/fulmenhq/contentaudit/pkg/schema"
)

// ErrNotFound is returned when a document does not exist in the store.
var ErrNotFound = errors.New("document not found")

// Bridge moves raw document bytes between the store and its backing medium.
// Paths are slash-separated and relative to the content root.
type Bridge interface {
	Glob(ctx context.Context, dir string) ([]string, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
}

// FilesystemBridge reads and writes documents under a content root.
type FilesystemBridge struct {
	root    string
	matcher *ignore.Matcher
}

// NewFilesystemBridge roots a bridge at root. matcher may be nil.
func NewFilesystemBridge(root string, matcher *ignore.Matcher) (*FilesystemBridge, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve content root %s", root)
	}
	return &FilesystemBridge{root: abs, matcher: matcher}, nil
}

// Root returns the absolute content root.
func (b *FilesystemBridge) Root() string {
	return b.root
}

// Glob lists content files under dir, skipping ignored paths and unknown extensions.
func (b *FilesystemBridge) Glob(ctx context.Context, dir string) ([]string, error) {
	base, err := safeio.Contain(b.root, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "glob %s", dir)
	}
	if _, err := os.Stat(base); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	var out []string
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != base && b.matcher.IsIgnoredDir(p) {
				return fs.SkipDir
			}
			return nil
		}
		if b.matcher.IsIgnored(p) || !isContentExtension(filepath.Ext(p)) {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", dir)
	}
	sort.Strings(out)
	return out, nil
}

// Get reads a document's raw bytes.
func (b *FilesystemBridge) Get(_ context.Context, path string) ([]byte, error) {
	data, err := safeio.ReadFileContained(b.root, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrNotFound, "%s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}

// Put writes a document, creating parent directories as needed.
func (b *FilesystemBridge) Put(_ context.Context, path string, data []byte) error {
	if err := safeio.WriteFileContained(b.root, path, data); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// Exists reports whether a document file is present.
func (b *FilesystemBridge) Exists(_ context.Context, path string) (bool, error) {
	abs, err := safeio.Contain(b.root, path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", path)
	}
	return true, nil
}

type writeDiscarder interface {
	DiscardsWrites() bool
}

// AuditFilesystemBridge reads like FilesystemBridge but discards writes, so a
// document can be resubmitted through the write path without touching content.
type AuditFilesystemBridge struct {
	*FilesystemBridge

	mu        sync.Mutex
	discarded []string
}

// NewAuditFilesystemBridge wraps a filesystem bridge in read-only audit mode.
func NewAuditFilesystemBridge(fsb *FilesystemBridge) *AuditFilesystemBridge {
	return &AuditFilesystemBridge{FilesystemBridge: fsb}
}

// Put records and discards the write.
func (b *AuditFilesystemBridge) Put(_ context.Context, path string, data []byte) error {
	b.mu.Lock()
	b.discarded = append(b.discarded, path)
	b.mu.Unlock()
	logger.Trace("Audit mode: write discarded", logger.String("path", path), logger.Int("bytes", len(data)))
	return nil
}

// DiscardsWrites reports that Put never reaches storage.
func (b *AuditFilesystemBridge) DiscardsWrites() bool { return true }

// Discarded lists paths whose writes were dropped.
func (b *AuditFilesystemBridge) Discarded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.discarded))
	copy(out, b.discarded)
	return out
}

func isContentExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range schema.ContentExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
