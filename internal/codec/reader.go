package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortRead is recorded when a read runs past the end of the data.
var ErrShortRead = errors.New("short read")

// Reader reads fields written by Writer. The first failed read is sticky:
// every later read returns a zero value and Err reports the failure.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) need(n int, what string) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("read %s at offset %d (want %d, have %d): %w",
			what, r.off, n, len(r.data)-r.off, ErrShortRead)
		r.off = len(r.data)
		return false
	}
	return true
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	if !r.need(1, "byte") {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadBool reads a single-byte bool.
func (r *Reader) ReadBool() bool {
	return r.ReadC() != 0
}

// ReadH reads 2 bytes as little-endian uint16.
func (r *Reader) ReadH() uint16 {
	if !r.need(2, "uint16") {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadD reads 4 bytes as little-endian int32.
func (r *Reader) ReadD() int32 {
	if !r.need(4, "int32") {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v
}

// ReadQ reads 8 bytes as little-endian int64.
func (r *Reader) ReadQ() int64 {
	return int64(r.ReadQU())
}

// ReadQU reads 8 bytes as little-endian uint64.
func (r *Reader) ReadQU() uint64 {
	if !r.need(8, "int64") {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// ReadF reads a float64 written by WriteF.
func (r *Reader) ReadF() float64 {
	return math.Float64frombits(r.ReadQU())
}

// ReadS reads a null-terminated string. A missing terminator is a short read.
func (r *Reader) ReadS() string {
	if r.err != nil {
		return ""
	}
	start := r.off
	for i := r.off; i < len(r.data); i++ {
		if r.data[i] == 0 {
			r.off = i + 1
			return string(r.data[start:i])
		}
	}
	r.err = fmt.Errorf("read string at offset %d: missing terminator: %w", start, ErrShortRead)
	r.off = len(r.data)
	return ""
}

// ReadBlob reads a length-prefixed byte slice written by WriteBlob.
func (r *Reader) ReadBlob() []byte {
	n := r.ReadD()
	if r.err != nil {
		return nil
	}
	if n < 0 {
		r.err = fmt.Errorf("read blob: negative length %d: %w", n, ErrShortRead)
		r.off = len(r.data)
		return nil
	}
	return r.ReadBytes(int(n))
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if !r.need(n, "bytes") {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns the first read failure, if any.
func (r *Reader) Err() error {
	return r.err
}
