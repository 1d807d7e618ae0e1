// Package shortvec implements the compact-u16 length prefix used by every
// sequence in the Solana wire format: 7 bits per byte, with the high bit set
// on every byte except the last.
package shortvec

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

// MaxEncodedLen is the largest number of bytes a length prefix can occupy.
const MaxEncodedLen = 3

var (
	ErrLenTooLarge      = errors.Errorf("len exceeds %d", math.MaxUint16)
	ErrInvalidEncoding  = errors.New("invalid shortvec encoding")
	ErrNonCanonicalByte = errors.New("non-canonical shortvec encoding")
)

// EncodeLen encodes the specified len into the writer, returning the number
// of bytes written.
//
// If len > math.MaxUint16, ErrLenTooLarge is returned.
func EncodeLen(w io.Writer, len int) (n int, err error) {
	if len < 0 || len > math.MaxUint16 {
		return 0, ErrLenTooLarge
	}

	var buf [MaxEncodedLen]byte
	size := 0
	for {
		buf[size] = byte(len & 0x7f)
		len >>= 7
		if len == 0 {
			size++
			break
		}

		buf[size] |= 0x80
		size++
	}

	return w.Write(buf[:size])
}

// EncodedSize returns the number of bytes EncodeLen would write for len.
func EncodedSize(len int) int {
	switch {
	case len < 1<<7:
		return 1
	case len < 1<<14:
		return 2
	default:
		return 3
	}
}

// DecodeLen decodes a shortvec encoded len from the reader.
func DecodeLen(r io.Reader) (val int, err error) {
	var b [1]byte
	for offset := 0; offset < MaxEncodedLen; offset++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}

		// A zero continuation byte is an alias of a shorter encoding.
		if offset > 0 && b[0] == 0 {
			return 0, ErrNonCanonicalByte
		}

		val |= int(b[0]&0x7f) << (offset * 7)
		if b[0]&0x80 == 0 {
			if val > math.MaxUint16 {
				return 0, ErrLenTooLarge
			}
			return val, nil
		}
	}

	return 0, errors.Wrapf(ErrInvalidEncoding, "exceeds %d bytes", MaxEncodedLen)
}
