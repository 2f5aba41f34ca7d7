// Package hasher computes deterministic content fingerprints of
// directory trees for change detection.
package hasher

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	"github.com/walsync/walsync/internal/metadata"
)

// Fingerprint digests every file under root, excluding the reserved
// metadata subdirectory. WalkDir visits entries in lexical order, so
// the result does not depend on filesystem enumeration order. Each
// regular file contributes its slash-separated relative path and its
// content bytes; symlinks contribute their relative path and target.
// An empty tree yields the digest of empty input.
func Fingerprint(root string) (digest.Digest, error) {
	digester := digest.Canonical.Digester()
	hash := digester.Hash()

	err := filepath.WalkDir(root, func(current string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if d.Name() == metadata.ReservedDir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(current)
			if err != nil {
				return err
			}
			_, _ = hash.Write([]byte(rel))
			_, _ = hash.Write([]byte(target))
		case d.Type().IsRegular():
			f, err := os.Open(current)
			if err != nil {
				return err
			}
			_, _ = hash.Write([]byte(rel))
			_, cpErr := io.Copy(hash, f)
			if cerr := f.Close(); cpErr == nil {
				cpErr = cerr
			}
			if cpErr != nil {
				return fmt.Errorf("read %s: %w", current, cpErr)
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", root, err)
	}
	return digester.Digest(), nil
}
