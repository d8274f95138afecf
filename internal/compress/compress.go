// Package compress provides the snapshot compression collaborator. Every
// codec is a closed variant chosen by name at construction time.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/SlimBron57/bitacora-sub000/internal/errs"
)

// Algorithm names a codec.
type Algorithm string

const (
	None Algorithm = "none"
	Gzip Algorithm = "gzip"
	Zstd Algorithm = "zstd"
)

// DefaultLevel matches a balanced gzip level.
const DefaultLevel = 6

// Codec compresses and decompresses opaque byte slices.
type Codec interface {
	Algorithm() Algorithm
	Level() int
	// Compress returns the compressed bytes and the time spent producing
	// them.
	Compress(src []byte) ([]byte, time.Duration, error)
	Decompress(src []byte) ([]byte, error)
}

// ParseAlgorithm accepts the algorithm names case-insensitively.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case None, Gzip, Zstd:
		return a, nil
	}
	return "", fmt.Errorf("unknown compression algorithm %q", s)
}

// New builds the codec for alg. level is interpreted per algorithm: gzip
// uses 1-9, zstd maps it onto its speed presets.
func New(alg Algorithm, level int) (Codec, error) {
	switch alg {
	case None:
		return noneCodec{}, nil
	case Gzip:
		if level < gzip.HuffmanOnly || level > gzip.BestCompression {
			return nil, fmt.Errorf("gzip level %d out of range", level)
		}
		return gzipCodec{level: level}, nil
	case Zstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return &zstdCodec{level: level, enc: enc, dec: dec}, nil
	}
	return nil, fmt.Errorf("unknown compression algorithm %q", alg)
}

type noneCodec struct{}

func (noneCodec) Algorithm() Algorithm { return None }
func (noneCodec) Level() int           { return 0 }

func (noneCodec) Compress(src []byte) ([]byte, time.Duration, error) {
	return append([]byte(nil), src...), 0, nil
}

func (noneCodec) Decompress(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

type gzipCodec struct {
	level int
}

func (gzipCodec) Algorithm() Algorithm { return Gzip }
func (c gzipCodec) Level() int         { return c.level }

func (c gzipCodec) Compress(src []byte) ([]byte, time.Duration, error) {
	start := time.Now()
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrCompression, err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrCompression, err)
	}
	if err := w.Close(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrCompression, err)
	}
	return buf.Bytes(), time.Since(start), nil
}

func (gzipCodec) Decompress(src []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCompression, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCompression, err)
	}
	return out, nil
}

// zstdCodec shares one encoder and decoder; EncodeAll and DecodeAll are
// safe for concurrent use.
type zstdCodec struct {
	level int
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func (*zstdCodec) Algorithm() Algorithm { return Zstd }
func (c *zstdCodec) Level() int         { return c.level }

func (c *zstdCodec) Compress(src []byte) ([]byte, time.Duration, error) {
	start := time.Now()
	out := c.enc.EncodeAll(src, nil)
	return out, time.Since(start), nil
}

func (c *zstdCodec) Decompress(src []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCompression, err)
	}
	return out, nil
}
