package editbuf

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kvscope/kvscope/pkg/codec"
)

func TestStageAndDecode(t *testing.T) {
	var b Buffer

	if b.Staged() {
		t.Errorf("Expected zero-value buffer to be empty")
	}

	b.Stage(`user\x00id`, `héllo\n`)
	if !b.Staged() {
		t.Errorf("Expected buffer to be staged")
	}

	key, err := b.DecodedKey()
	if err != nil {
		t.Fatalf("DecodedKey failed: %v", err)
	}
	if !bytes.Equal(key, []byte("user\x00id")) {
		t.Errorf("Expected decoded key %q, got %q", "user\x00id", key)
	}

	value, err := b.DecodedValue()
	if err != nil {
		t.Fatalf("DecodedValue failed: %v", err)
	}
	if !bytes.Equal(value, []byte("héllo\n")) {
		t.Errorf("Expected decoded value %q, got %q", "héllo\n", value)
	}
}

func TestStageOverwrites(t *testing.T) {
	var b Buffer
	b.Stage("first", "1")
	b.Stage("second", "2")

	if b.KeyText() != "second" || b.ValueText() != "2" {
		t.Errorf("Expected staging to overwrite, got %q/%q", b.KeyText(), b.ValueText())
	}
}

func TestDecodeFailureLeavesBufferIntact(t *testing.T) {
	var b Buffer
	b.Stage(`bad\xZZ`, "value")

	_, err := b.DecodedKey()
	var decErr *codec.DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("Expected *codec.DecodeError, got %v", err)
	}

	// The malformed text must still be there for the user to fix.
	if !b.Staged() || b.KeyText() != `bad\xZZ` || b.ValueText() != "value" {
		t.Errorf("Expected buffer intact after decode failure, got %q/%q staged=%v",
			b.KeyText(), b.ValueText(), b.Staged())
	}
}

func TestClear(t *testing.T) {
	var b Buffer
	b.Stage("k", "v")
	b.Clear()

	if b.Staged() || b.KeyText() != "" || b.ValueText() != "" {
		t.Errorf("Expected cleared buffer to be empty")
	}
}
