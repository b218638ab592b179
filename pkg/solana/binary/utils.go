// Package binary provides offset-tracking helpers for encoding fixed-layout
// little-endian account and instruction data.
package binary

import (
	"crypto/ed25519"
	"encoding/binary"
)

// Writer appends fields into a preallocated buffer.
type Writer struct {
	buf    []byte
	offset int
}

// NewWriter returns a Writer over dst.
func NewWriter(dst []byte) *Writer {
	return &Writer{buf: dst}
}

// Offset is the number of bytes written so far.
func (w *Writer) Offset() int {
	return w.offset
}

func (w *Writer) PutUint8(v uint8) {
	w.buf[w.offset] = v
	w.offset++
}

func (w *Writer) PutBool(v bool) {
	if v {
		w.PutUint8(1)
	} else {
		w.PutUint8(0)
	}
}

func (w *Writer) PutUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.offset:], v)
	w.offset += 4
}

func (w *Writer) PutUint64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.offset:], v)
	w.offset += 8
}

// PutKey32 writes a 32 byte key. A nil key is written as zeros.
func (w *Writer) PutKey32(key ed25519.PublicKey) {
	copy(w.buf[w.offset:w.offset+ed25519.PublicKeySize], key)
	w.offset += ed25519.PublicKeySize
}

// PutOptionalKey32 writes a key prefixed by an option tag of optionSize bytes.
func (w *Writer) PutOptionalKey32(key ed25519.PublicKey, optionSize int) {
	if len(key) > 0 {
		w.buf[w.offset] = 1
		copy(w.buf[w.offset+optionSize:], key)
	}
	w.offset += optionSize + ed25519.PublicKeySize
}

// PutOptionalUint64 writes a value prefixed by an option tag of optionSize bytes.
func (w *Writer) PutOptionalUint64(v *uint64, optionSize int) {
	if v != nil {
		w.buf[w.offset] = 1
		binary.LittleEndian.PutUint64(w.buf[w.offset+optionSize:], *v)
	}
	w.offset += optionSize + 8
}

// Reader consumes fields from a buffer.
type Reader struct {
	buf    []byte
	offset int
}

// NewReader returns a Reader over src.
func NewReader(src []byte) *Reader {
	return &Reader{buf: src}
}

// Offset is the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.offset
}

func (r *Reader) Uint8() uint8 {
	v := r.buf[r.offset]
	r.offset++
	return v
}

// Bool reads a single byte flag. Any nonzero value is true.
func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}

func (r *Reader) Uint32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.offset:])
	r.offset += 4
	return v
}

func (r *Reader) Uint64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.offset:])
	r.offset += 8
	return v
}

// Key32 reads a 32 byte key into a newly allocated slice.
func (r *Reader) Key32() ed25519.PublicKey {
	key := make([]byte, ed25519.PublicKeySize)
	copy(key, r.buf[r.offset:r.offset+ed25519.PublicKeySize])
	r.offset += ed25519.PublicKeySize
	return key
}

// OptionalKey32 reads a key prefixed by an option tag of optionSize bytes,
// returning nil when the tag is unset.
func (r *Reader) OptionalKey32(optionSize int) ed25519.PublicKey {
	var key ed25519.PublicKey
	if r.buf[r.offset] == 1 {
		key = make([]byte, ed25519.PublicKeySize)
		copy(key, r.buf[r.offset+optionSize:])
	}
	r.offset += optionSize + ed25519.PublicKeySize
	return key
}

// OptionalUint64 reads a value prefixed by an option tag of optionSize bytes,
// returning nil when the tag is unset.
func (r *Reader) OptionalUint64(optionSize int) *uint64 {
	var v *uint64
	if r.buf[r.offset] == 1 {
		val := binary.LittleEndian.Uint64(r.buf[r.offset+optionSize:])
		v = &val
	}
	r.offset += optionSize + 8
	return v
}
