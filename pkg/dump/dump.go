// Package dump reads and writes portable snapshots of a single collection.
//
// A dump starts with an uncompressed header (magic, format version,
// compression codec, collection name), followed by the record stream in the
// chosen codec: an entry count, then length-prefixed key and value bytes
// per entry, then an xxhash64 checksum of the uncompressed stream that is
// verified on load.
package dump

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/kvscope/kvscope/pkg/registry"
	"github.com/kvscope/kvscope/pkg/store"
)

var magic = []byte("KVSD")

const formatVersion = 1

var (
	// ErrBadMagic is returned when the input does not look like a dump
	ErrBadMagic = errors.New("not a kvscope dump")

	// ErrBadVersion is returned for a dump written by an unknown format version
	ErrBadVersion = errors.New("unsupported dump format version")

	// ErrChecksum is returned when the record stream does not match its checksum
	ErrChecksum = errors.New("dump checksum mismatch")

	// ErrTruncated is returned when the record stream ends early
	ErrTruncated = errors.New("truncated dump")
)

// Write exports every entry of coll visible to txn into w using the given
// compression codec. It returns the number of entries written.
func Write(w io.Writer, txn store.Txn, coll registry.Collection, codec Codec) (int, error) {
	cur, ok := coll.Cursor(txn)
	if !ok {
		return 0, registry.ErrCollectionMissing
	}
	count := coll.Count(txn)

	if err := writeHeader(w, codec, coll.Name()); err != nil {
		return 0, err
	}

	cw, err := newCompressWriter(w, codec)
	if err != nil {
		return 0, err
	}

	// The checksum covers the uncompressed record stream, count included.
	digest := xxhash.New()
	body := io.MultiWriter(cw, digest)

	if err := writeUvarint(body, uint64(count)); err != nil {
		return 0, err
	}

	written := 0
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		if err := writeUvarint(body, uint64(len(k))); err != nil {
			return written, err
		}
		if _, err := body.Write(k); err != nil {
			return written, err
		}
		if err := writeUvarint(body, uint64(len(v))); err != nil {
			return written, err
		}
		if _, err := body.Write(v); err != nil {
			return written, err
		}
		written++
	}

	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], digest.Sum64())
	if _, err := cw.Write(sum[:]); err != nil {
		return written, err
	}

	if err := cw.Close(); err != nil {
		return written, fmt.Errorf("failed to finish compressed stream: %w", err)
	}
	return written, nil
}

// Read imports a dump from r into the collection named in its header,
// creating the collection if absent. txn must be writable. Existing keys
// are overwritten; keys not present in the dump are left alone. It returns
// the target collection name and the number of entries loaded.
func Read(r io.Reader, txn store.Txn) (string, int, error) {
	br := bufio.NewReader(r)

	codec, name, err := readHeader(br)
	if err != nil {
		return "", 0, err
	}

	coll, err := registry.OpenOrCreate(txn, name)
	if err != nil {
		return name, 0, err
	}

	cr, err := newCompressReader(br, codec)
	if err != nil {
		return name, 0, err
	}
	defer cr.Close()

	digest := xxhash.New()
	body := &hashingReader{r: bufio.NewReader(cr), digest: digest}

	count, err := body.readUvarint()
	if err != nil {
		return name, 0, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	loaded := 0
	for i := uint64(0); i < count; i++ {
		key, err := body.readBlob()
		if err != nil {
			return name, loaded, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		value, err := body.readBlob()
		if err != nil {
			return name, loaded, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		if err := coll.Put(txn, key, value); err != nil {
			return name, loaded, err
		}
		loaded++
	}

	// The trailing checksum is outside the hashed region.
	var sum [8]byte
	if _, err := io.ReadFull(body.r, sum[:]); err != nil {
		return name, loaded, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if binary.BigEndian.Uint64(sum[:]) != digest.Sum64() {
		return name, loaded, ErrChecksum
	}

	return name, loaded, nil
}

func writeHeader(w io.Writer, codec Codec, name string) error {
	if _, err := w.Write(magic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{formatVersion, byte(codec)}); err != nil {
		return err
	}
	if err := writeUvarint(w, uint64(len(name))); err != nil {
		return err
	}
	_, err := io.WriteString(w, name)
	return err
}

func readHeader(br *bufio.Reader) (Codec, string, error) {
	head := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(br, head); err != nil {
		return 0, "", ErrBadMagic
	}
	if string(head[:len(magic)]) != string(magic) {
		return 0, "", ErrBadMagic
	}
	if head[len(magic)] != formatVersion {
		return 0, "", fmt.Errorf("%w: %d", ErrBadVersion, head[len(magic)])
	}
	codec := Codec(head[len(magic)+1])
	if codec > CodecZstd {
		return 0, "", fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}

	nameLen, err := binary.ReadUvarint(br)
	if err != nil {
		return 0, "", ErrBadMagic
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(br, name); err != nil {
		return 0, "", ErrBadMagic
	}
	return codec, string(name), nil
}

func writeUvarint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

// hashingReader feeds every byte it reads into the checksum digest.
type hashingReader struct {
	r      *bufio.Reader
	digest *xxhash.Digest
}

func (h *hashingReader) ReadByte() (byte, error) {
	b, err := h.r.ReadByte()
	if err != nil {
		return 0, err
	}
	h.digest.Write([]byte{b})
	return b, nil
}

func (h *hashingReader) readUvarint() (uint64, error) {
	return binary.ReadUvarint(h)
}

func (h *hashingReader) readBlob() ([]byte, error) {
	n, err := h.readUvarint()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(h.r, buf); err != nil {
		return nil, err
	}
	h.digest.Write(buf)
	return buf, nil
}
