package dump

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec selects the compression applied to a dump's record stream.
type Codec byte

const (
	// CodecNone stores records uncompressed
	CodecNone Codec = iota
	// CodecSnappy trades ratio for speed
	CodecSnappy
	// CodecZstd trades speed for ratio
	CodecZstd
)

var (
	// ErrUnknownCodec is returned when an unsupported compression codec is specified
	ErrUnknownCodec = errors.New("unknown compression codec")
)

// ParseCodec maps a codec name to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "snappy":
		return CodecSnappy, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// String returns the codec's name.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", byte(c))
	}
}

// newCompressWriter returns a writer that compresses data using the
// specified codec.
func newCompressWriter(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case CodecNone:
		return nopCloser{w}, nil

	case CodecZstd:
		return zstd.NewWriter(w)

	case CodecSnappy:
		return snappy.NewBufferedWriter(w), nil

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

// newCompressReader returns a reader that decompresses data using the
// specified codec.
func newCompressReader(r io.Reader, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case CodecNone:
		return io.NopCloser(r), nil

	case CodecZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return &zstdReadCloser{decoder}, nil

	case CodecSnappy:
		return &snappyReadCloser{snappy.NewReader(r)}, nil

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

// nopCloser is an io.WriteCloser with a no-op Close method
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// zstdReadCloser wraps a zstd.Decoder to implement io.ReadCloser
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// snappyReadCloser wraps a snappy.Reader to implement io.ReadCloser
type snappyReadCloser struct {
	*snappy.Reader
}

func (s *snappyReadCloser) Close() error {
	// The snappy Reader doesn't have a Close method, so this is a no-op
	return nil
}
