// Package walrus stores blobs through the Walrus CLI. The remote
// protocol is whatever the binary speaks; this adapter only spawns
// `walrus store` and `walrus read` and parses the blob id from the
// command output.
package walrus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/walsync/walsync/internal/storage"
)

const defaultEpochs = 5

type Store struct {
	bin    string
	epochs int
}

// New builds a Walrus-CLI-backed blob store. The binary path defaults
// to "walrus" and can be overridden with WALSYNC_WALRUS_BIN; the
// storage duration comes from WALSYNC_WALRUS_EPOCHS.
func New() *Store {
	s := &Store{bin: "walrus", epochs: defaultEpochs}
	if v := strings.TrimSpace(os.Getenv("WALSYNC_WALRUS_BIN")); v != "" {
		s.bin = v
	}
	if v := strings.TrimSpace(os.Getenv("WALSYNC_WALRUS_EPOCHS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.epochs = n
		}
	}
	return s
}

// Store spools the blob to a temporary file and hands it to
// `walrus store`. The CLI only accepts file paths.
func (s *Store) Store(ctx context.Context, blob io.Reader) (_ string, retErr error) {
	tmp, err := os.CreateTemp("", "walsync-blob-*")
	if err != nil {
		return "", fmt.Errorf("spool blob: %w", err)
	}
	defer func() {
		if cerr := os.Remove(tmp.Name()); cerr != nil && retErr == nil {
			retErr = cerr
		}
	}()
	_, err = io.Copy(tmp, blob)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("spool blob: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.bin, "store", "--epochs", strconv.Itoa(s.epochs), tmp.Name())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s store: %v: %s", storage.ErrUnavailable, s.bin, err, firstLine(stderr.String()))
	}
	id, ok := ParseBlobID(stdout.String())
	if !ok {
		return "", fmt.Errorf("%w: no blob id in %s store output", storage.ErrUnavailable, s.bin)
	}
	return id, nil
}

func (s *Store) Retrieve(ctx context.Context, id string) (io.ReadCloser, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.bin, "read", id)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if isNotFound(stderr.String()) {
			return nil, fmt.Errorf("%w: blob %s", storage.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %s read %s: %v: %s", storage.ErrUnavailable, s.bin, id, err, firstLine(stderr.String()))
	}
	return io.NopCloser(bytes.NewReader(stdout.Bytes())), nil
}

// ParseBlobID extracts the blob identifier from `walrus store` output,
// which reports it as a "Blob ID: <id>" line.
func ParseBlobID(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		idx := strings.Index(lower, "blob id:")
		if idx < 0 {
			idx = strings.Index(lower, "blob_id:")
		}
		if idx < 0 {
			continue
		}
		id := strings.TrimSpace(line[idx+len("blob id:"):])
		if i := strings.IndexByte(id, ' '); i > 0 {
			id = id[:i]
		}
		if id != "" {
			return id, true
		}
	}
	return "", false
}

func isNotFound(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist") ||
		strings.Contains(lower, "expired")
}

func firstLine(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, '\n'); i >= 0 {
		v = v[:i]
	}
	return v
}
