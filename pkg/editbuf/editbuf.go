// Package editbuf holds the single pending entry being composed for an
// insert, update, or delete. Key and value are kept in their escaped text
// form and only decoded when a mutation asks for the raw bytes, so invalid
// text can sit in the buffer while the user corrects it.
package editbuf

import "github.com/kvscope/kvscope/pkg/codec"

// Buffer is the pending entry. The zero value is an empty buffer.
type Buffer struct {
	key    string
	value  string
	staged bool
}

// Stage overwrites the buffer with a new pending entry, typically when the
// user selects an existing row to modify.
func (b *Buffer) Stage(keyText, valueText string) {
	b.key = keyText
	b.value = valueText
	b.staged = true
}

// Clear empties the buffer. Called after a successful mutation.
func (b *Buffer) Clear() {
	b.key = ""
	b.value = ""
	b.staged = false
}

// Staged reports whether the buffer holds a pending entry.
func (b *Buffer) Staged() bool {
	return b.staged
}

// KeyText returns the pending key in escaped text form.
func (b *Buffer) KeyText() string {
	return b.key
}

// ValueText returns the pending value in escaped text form.
func (b *Buffer) ValueText() string {
	return b.value
}

// DecodedKey decodes the pending key. A *codec.DecodeError leaves the
// buffer intact for correction.
func (b *Buffer) DecodedKey() ([]byte, error) {
	return codec.Decode(b.key)
}

// DecodedValue decodes the pending value. A *codec.DecodeError leaves the
// buffer intact for correction.
func (b *Buffer) DecodedValue() ([]byte, error) {
	return codec.Decode(b.value)
}
