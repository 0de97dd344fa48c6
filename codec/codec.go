// Package codec selects a decompressor from an object's file extension.
// Selection never looks at the table's declared data-file type.
package codec

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	ksnappy "github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec identifies a compression format.
type Codec string

const (
	None   Codec = ""
	Bzip2  Codec = "bzip2"
	Gzip   Codec = "gzip"
	XZ     Codec = "xz"
	LZ4    Codec = "lz4"
	Snappy Codec = "snappy"
	// SnappyFramed is the snappy framing format.
	SnappyFramed Codec = "snappy-framed"
	Zstd         Codec = "zstd"
)

var byExtension = map[string]Codec{
	".bz2":    Bzip2,
	".gz":     Gzip,
	".xz":     XZ,
	".lz4":    LZ4,
	".snappy": Snappy,
	".sz":     SnappyFramed,
	".zst":    Zstd,
}

// ForPath returns the codec implied by the extension of p.
func ForPath(p string) Codec {
	return byExtension[strings.ToLower(path.Ext(p))]
}

// IsCompressed reports whether p names a compressed object.
func IsCompressed(p string) bool {
	return ForPath(p) != None
}

// StripExtension removes a recognised compression extension, so that
// "a.json.gz" yields "a.json".
func StripExtension(p string) string {
	if !IsCompressed(p) {
		return p
	}
	return strings.TrimSuffix(p, path.Ext(p))
}

// NewReader wraps r with the decompressor for p. The returned closer
// releases decoder resources only; the caller still owns r.
func NewReader(p string, r io.Reader) (io.ReadCloser, error) {
	switch c := ForPath(p); c {
	case None:
		return io.NopCloser(r), nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return zr, nil
	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening xz stream: %w", err)
		}
		return io.NopCloser(xr), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Snappy:
		// A raw snappy block has no framing, so it can only be decoded whole.
		compressed, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading snappy block: %w", err)
		}
		decoded, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, fmt.Errorf("decoding snappy block: %w", err)
		}
		return io.NopCloser(bytes.NewReader(decoded)), nil
	case SnappyFramed:
		return io.NopCloser(ksnappy.NewReader(r)), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported codec %q", c)
	}
}
