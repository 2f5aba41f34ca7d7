// Package compress wraps archive streams with a selectable compression
// codec. Readers auto-detect the codec from magic bytes so a pulled
// blob never needs a stored compression hint.
package compress

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	gzip "github.com/klauspost/pgzip"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

type Type string

const (
	Auto  Type = "auto"
	None  Type = "none"
	Gzip  Type = "gzip"
	Bzip2 Type = "bzip2"
	Xz    Type = "xz"
	Zstd  Type = "zstd"
	Lz4   Type = "lz4"
)

func FromString(v string) Type {
	switch strings.ToLower(v) {
	case "none":
		return None
	case "gzip":
		return Gzip
	case "bzip2":
		return Bzip2
	case "xz":
		return Xz
	case "zstd":
		return Zstd
	case "lz4":
		return Lz4
	default:
		return Auto
	}
}

// NewWriter stacks a compressing writer on dst. Closing the returned
// writer also closes dst.
func NewWriter(dst io.WriteCloser, t Type) (io.WriteCloser, error) {
	switch t {
	case Auto, None:
		return dst, nil
	case Gzip:
		return &stackedWriteCloser{writer: gzip.NewWriter(dst), dst: dst}, nil
	case Bzip2:
		zw, err := bzip2.NewWriter(dst, &bzip2.WriterConfig{Level: bzip2.BestSpeed})
		if err != nil {
			return nil, err
		}
		return &stackedWriteCloser{writer: zw, dst: dst}, nil
	case Xz:
		zw, err := xz.NewWriter(dst)
		if err != nil {
			return nil, err
		}
		return &stackedWriteCloser{writer: zw, dst: dst}, nil
	case Zstd:
		zw, err := zstd.NewWriter(dst)
		if err != nil {
			return nil, err
		}
		return &stackedWriteCloser{writer: zw, dst: dst}, nil
	case Lz4:
		return &stackedWriteCloser{writer: lz4.NewWriter(dst), dst: dst}, nil
	default:
		return nil, fmt.Errorf("unsupported compression type %q", t)
	}
}

// NewReader wraps src with the decompressor for t. With Auto the codec
// is detected from the stream's magic bytes and falls back to None.
func NewReader(src io.ReadCloser, t Type) (io.ReadCloser, Type, error) {
	br := bufio.NewReader(src)
	if t == Auto {
		magic, _ := br.Peek(8)
		t = detectByMagic(magic)
	}
	wrapped, err := wrapReader(br, src, t)
	return wrapped, t, err
}

func wrapReader(reader io.Reader, src io.Closer, t Type) (io.ReadCloser, error) {
	switch t {
	case None:
		return &readCloser{reader: reader, closer: src}, nil
	case Gzip:
		zr, err := gzip.NewReader(reader)
		if err != nil {
			return nil, err
		}
		return &multiReadCloser{reader: zr, closers: []io.Closer{zr, src}}, nil
	case Bzip2:
		zr, err := bzip2.NewReader(reader, nil)
		if err != nil {
			return nil, err
		}
		return &readCloser{reader: zr, closer: src}, nil
	case Xz:
		zr, err := xz.NewReader(reader)
		if err != nil {
			return nil, err
		}
		return &readCloser{reader: zr, closer: src}, nil
	case Zstd:
		zr, err := zstd.NewReader(reader)
		if err != nil {
			return nil, err
		}
		return &multiReadCloser{reader: zr, closers: []io.Closer{zr.IOReadCloser(), src}}, nil
	case Lz4:
		return &readCloser{reader: lz4.NewReader(reader), closer: src}, nil
	default:
		return nil, fmt.Errorf("unsupported compression type %q", t)
	}
}

func detectByMagic(magic []byte) Type {
	switch {
	case len(magic) >= 2 && bytes.Equal(magic[:2], []byte{0x1f, 0x8b}):
		return Gzip
	case len(magic) >= 3 && bytes.Equal(magic[:3], []byte{'B', 'Z', 'h'}):
		return Bzip2
	case len(magic) >= 6 && bytes.Equal(magic[:6], []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return Xz
	case len(magic) >= 4 && bytes.Equal(magic[:4], []byte{0x28, 0xb5, 0x2f, 0xfd}):
		return Zstd
	case len(magic) >= 4 && bytes.Equal(magic[:4], []byte{0x04, 0x22, 0x4d, 0x18}):
		return Lz4
	default:
		return None
	}
}

type readCloser struct {
	reader io.Reader
	closer io.Closer
}

func (r *readCloser) Read(p []byte) (int, error) { return r.reader.Read(p) }
func (r *readCloser) Close() error               { return r.closer.Close() }

type multiReadCloser struct {
	reader  io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Read(p []byte) (int, error) { return m.reader.Read(p) }

func (m *multiReadCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type stackedWriteCloser struct {
	writer io.WriteCloser
	dst    io.Closer
}

func (w *stackedWriteCloser) Write(p []byte) (int, error) { return w.writer.Write(p) }

func (w *stackedWriteCloser) Close() error {
	var first error
	if err := w.writer.Close(); err != nil {
		first = err
	}
	if err := w.dst.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
