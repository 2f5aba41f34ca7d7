// Package engine orchestrates push, pull and list against a metadata
// store and a remote blob store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/walsync/walsync/internal/archive"
	"github.com/walsync/walsync/internal/compress"
	"github.com/walsync/walsync/internal/hasher"
	"github.com/walsync/walsync/internal/metadata"
	"github.com/walsync/walsync/internal/storage"
)

// ErrInvalidPath reports a push or pull target that does not exist or
// is not a directory.
var ErrInvalidPath = errors.New("not a directory")

// Engine runs synchronization operations. It is synchronous: every
// operation runs to completion on the calling goroutine.
type Engine struct {
	meta        *metadata.Store
	blobs       storage.BlobStore
	compression compress.Type
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Engine)

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCompression sets the codec used when encoding archives. Pull
// auto-detects, so changing this never strands old blobs.
func WithCompression(t compress.Type) Option {
	return func(e *Engine) { e.compression = t }
}

// WithClock overrides the time source recorded in pushed_at.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(meta *metadata.Store, blobs storage.BlobStore, opts ...Option) *Engine {
	e := &Engine{
		meta:        meta,
		blobs:       blobs,
		compression: compress.Gzip,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type PushResult struct {
	Path      string
	BlobID    string
	Digest    digest.Digest
	Unchanged bool
}

type PullResult struct {
	Path   string
	BlobID string
}

// Push fingerprints dir and, when the content changed since the last
// recorded push, uploads a fresh archive and commits the new
// fingerprint and blob id together. The metadata store is only touched
// after the remote store confirms the upload.
func (e *Engine) Push(ctx context.Context, dir string) (PushResult, error) {
	path, err := normalizeDir(dir)
	if err != nil {
		return PushResult{}, err
	}

	dgst, err := hasher.Fingerprint(path)
	if err != nil {
		return PushResult{}, err
	}
	rec, ok, err := e.meta.Get(path)
	if err != nil {
		return PushResult{}, err
	}
	if ok && rec.Hash == dgst.String() {
		e.logger.Info("no changes detected", "path", path)
		return PushResult{Path: path, BlobID: rec.BlobID, Digest: dgst, Unchanged: true}, nil
	}

	e.logger.Info("content changed, archiving", "path", path, "digest", dgst)
	id, err := e.uploadArchive(ctx, path)
	if err != nil {
		return PushResult{}, fmt.Errorf("push %s: %w", path, err)
	}

	if err := e.meta.Upsert(metadata.Record{
		Path:          path,
		BlobID:        id,
		Hash:          dgst.String(),
		PushedAt:      e.now().UTC(),
		DirectoryName: filepath.Base(path),
	}); err != nil {
		return PushResult{}, fmt.Errorf("push %s: blob %s stored but metadata commit failed: %w", path, id, err)
	}
	e.logger.Info("pushed", "path", path, "blob", id)
	return PushResult{Path: path, BlobID: id, Digest: dgst}, nil
}

// uploadArchive encodes path into a scoped temporary file and streams
// it to the blob store. The temp file is removed on every exit path.
func (e *Engine) uploadArchive(ctx context.Context, path string) (_ string, retErr error) {
	tmp, err := os.CreateTemp("", "walsync-archive-*")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	defer func() {
		if cerr := tmp.Close(); cerr != nil && retErr == nil {
			retErr = cerr
		}
		_ = os.Remove(tmp.Name())
	}()

	if err := archive.Encode(tmp, path, e.compression); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return e.blobs.Store(ctx, tmp)
}

// Pull restores dir from its last pushed archive. A path with no
// record fails with storage.ErrNotFound before any filesystem write.
// Metadata is never mutated.
func (e *Engine) Pull(ctx context.Context, dir string) (PullResult, error) {
	path, err := normalizePath(dir)
	if err != nil {
		return PullResult{}, err
	}

	rec, ok, err := e.meta.Get(path)
	if err != nil {
		return PullResult{}, err
	}
	if !ok {
		return PullResult{}, fmt.Errorf("%w: no record for %s", storage.ErrNotFound, path)
	}

	e.logger.Info("retrieving", "path", path, "blob", rec.BlobID)
	rc, err := e.blobs.Retrieve(ctx, rec.BlobID)
	if err != nil {
		return PullResult{}, fmt.Errorf("pull %s: %w", path, err)
	}
	defer rc.Close() //nolint:errcheck

	if err := os.MkdirAll(path, 0o755); err != nil {
		return PullResult{}, fmt.Errorf("pull %s: %w", path, err)
	}
	if err := archive.Decode(rc, path); err != nil {
		return PullResult{}, fmt.Errorf("pull %s: %w", path, err)
	}
	e.logger.Info("pulled", "path", path, "blob", rec.BlobID)
	return PullResult{Path: path, BlobID: rec.BlobID}, nil
}

// List returns every tracked record. Pure read.
func (e *Engine) List(_ context.Context) ([]metadata.Record, error) {
	return e.meta.All()
}

// normalizeDir resolves dir to an absolute, symlink-free path and
// requires it to be an existing directory.
func normalizeDir(dir string) (string, error) {
	path, err := normalizePath(dir)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, dir)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, dir)
	}
	return path, nil
}

// normalizePath resolves dir without requiring it to exist, so pull
// can target a directory that will be created by decode.
func normalizePath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, dir)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}
