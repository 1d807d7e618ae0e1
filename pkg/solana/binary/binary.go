// Package binary encodes the little-endian field layouts used by on-chain
// programs for instruction data and account state.
package binary

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned when decoding runs past the end of the input.
var ErrShortBuffer = errors.New("binary: buffer too short")

// Writer appends fields to a byte slice.
type Writer struct {
	b []byte
}

// NewWriter returns a writer with capacity for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{b: make([]byte, 0, size)}
}

func (w *Writer) Uint8(v uint8) *Writer {
	w.b = append(w.b, v)
	return w
}

func (w *Writer) Uint16(v uint16) *Writer {
	w.b = binary.LittleEndian.AppendUint16(w.b, v)
	return w
}

func (w *Writer) Uint32(v uint32) *Writer {
	w.b = binary.LittleEndian.AppendUint32(w.b, v)
	return w
}

func (w *Writer) Uint64(v uint64) *Writer {
	w.b = binary.LittleEndian.AppendUint64(w.b, v)
	return w
}

// Key writes a 32 byte address. Short keys are zero padded.
func (w *Writer) Key(k ed25519.PublicKey) *Writer {
	var buf [ed25519.PublicKeySize]byte
	copy(buf[:], k)
	w.b = append(w.b, buf[:]...)
	return w
}

// Raw writes b without a length prefix.
func (w *Writer) Raw(b []byte) *Writer {
	w.b = append(w.b, b...)
	return w
}

func (w *Writer) Bytes() []byte {
	return w.b
}

// Reader consumes fields from a byte slice. The first failure is sticky:
// later reads return zero values and Err reports the failure.
type Reader struct {
	b      []byte
	offset int
	err    error
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b)-r.offset < n {
		r.err = errors.Wrapf(ErrShortBuffer, "need %d bytes at offset %d, have %d", n, r.offset, len(r.b)-r.offset)
		return nil
	}

	b := r.b[r.offset : r.offset+n]
	r.offset += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Uint16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) Uint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) Uint64() uint64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Key reads a 32 byte address into a new slice.
func (r *Reader) Key() ed25519.PublicKey {
	b := r.next(ed25519.PublicKeySize)
	if b == nil {
		return nil
	}

	k := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(k, b)
	return k
}

// Raw reads the next n bytes into a new slice.
func (r *Reader) Raw(n int) []byte {
	b := r.next(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.b) - r.offset
}

func (r *Reader) Err() error {
	return r.err
}
