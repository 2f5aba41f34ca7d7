// Package archive serializes a directory tree into a single compressed
// tar stream and reverses the operation.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/walsync/walsync/internal/compress"
	"github.com/walsync/walsync/internal/metadata"
)

// ErrCorrupt reports that archive bytes do not decode.
var ErrCorrupt = errors.New("corrupt archive")

// Encode writes a compressed tar of every entry under root to dst,
// excluding the reserved metadata subdirectory. Entry names are
// slash-separated paths relative to root.
func Encode(dst io.Writer, root string, comp compress.Type) (retErr error) {
	cw, err := compress.NewWriter(nopWriteCloser{dst}, comp)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)
	defer func() {
		if cerr := tw.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing tar writer: %w", cerr)
		}
		if cerr := cw.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing archive: %w", cerr)
		}
	}()

	return filepath.WalkDir(root, func(current string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == metadata.ReservedDir {
			return filepath.SkipDir
		}

		st, err := os.Lstat(current)
		if err != nil {
			return err
		}
		linkname := ""
		if st.Mode()&os.ModeSymlink != 0 {
			if linkname, err = os.Readlink(current); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(st, linkname)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Format = tar.FormatPAX

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !st.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(current)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("archive %s: %w", current, err)
		}
		return nil
	})
}

// Decode recreates the archived tree under dest, creating intermediate
// directories as needed. Colliding regular files are overwritten;
// files at dest absent from the archive are left untouched. Entry
// names and symlink targets that escape dest are rejected.
func Decode(src io.Reader, dest string) error {
	cr, _, err := compress.NewReader(io.NopCloser(src), compress.Auto)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer cr.Close() //nolint:errcheck

	tr := tar.NewReader(cr)
	for {
		hdr, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if err := extractEntry(dest, hdr, tr); err != nil {
			return err
		}
	}
}

func extractEntry(base string, hdr *tar.Header, tr *tar.Reader) error {
	target, err := safeJoin(base, hdr.Name)
	if err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, fs.FileMode(hdr.Mode).Perm()); err != nil {
			return err
		}
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(hdr.Mode).Perm())
		if err != nil {
			return err
		}
		n, err := io.Copy(f, io.LimitReader(tr, hdr.Size))
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			// Write-side failures carry a path; anything else means the
			// stream itself did not decode.
			var pathErr *fs.PathError
			if errors.As(err, &pathErr) {
				return fmt.Errorf("extract %s: %w", target, err)
			}
			return fmt.Errorf("%w: %s: %v", ErrCorrupt, hdr.Name, err)
		}
		if n != hdr.Size {
			return fmt.Errorf("%w: %s truncated at %d of %d bytes", ErrCorrupt, hdr.Name, n, hdr.Size)
		}
	case tar.TypeSymlink:
		if err := safeSymlinkTarget(base, target, hdr.Linkname); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return err
		}
	default:
		if _, err := io.Copy(io.Discard, io.LimitReader(tr, hdr.Size)); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return nil
	}

	if !hdr.ModTime.IsZero() && hdr.Typeflag != tar.TypeSymlink {
		_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)
	}
	return nil
}

func safeJoin(base, member string) (string, error) {
	base = filepath.Clean(base)
	member = strings.TrimPrefix(member, "/")
	candidate := filepath.Clean(filepath.Join(base, filepath.FromSlash(member)))
	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing to write outside target directory: %s", member)
	}
	return candidate, nil
}

// safeSymlinkTarget validates that a symlink's target does not escape
// the extraction base directory.
func safeSymlinkTarget(base, symlinkPath, linkname string) error {
	if linkname == "" {
		return fmt.Errorf("symlink target is empty")
	}
	base = filepath.Clean(base)

	var resolved string
	if filepath.IsAbs(linkname) {
		resolved = filepath.Join(base, filepath.FromSlash(linkname))
	} else {
		resolved = filepath.Join(filepath.Dir(symlinkPath), filepath.FromSlash(linkname))
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(base, resolved)
	if err != nil {
		return fmt.Errorf("refusing symlink: cannot compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing symlink %q -> %q: target escapes extraction directory", symlinkPath, linkname)
	}
	return nil
}

type nopWriteCloser struct{ w io.Writer }

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }
