// Package bcs implements the Binary Canonical Serialization used for Move call
// arguments, transaction data and signatures.
//
// Integers are little-endian, sequence lengths and enum variant indexes are
// ULEB128 encoded, and options are a one-byte tag followed by the value.
package bcs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnexpectedEOF = errors.New("bcs: unexpected end of input")
	ErrOverflow      = errors.New("bcs: uleb128 overflow")
	ErrInvalidBool   = errors.New("bcs: invalid bool")
)

// Encoder appends BCS values to an internal buffer.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded output.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *Encoder) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *Encoder) WriteULEB128(v uint64) {
	for v >= 0x80 {
		e.buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	e.buf.WriteByte(byte(v))
}

// WriteBytes writes a length-prefixed byte vector.
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteULEB128(uint64(len(b)))
	e.buf.Write(b)
}

// WriteFixed writes raw bytes without a length prefix.
func (e *Encoder) WriteFixed(b []byte) {
	e.buf.Write(b)
}

func (e *Encoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

// WriteOption writes the option tag; the caller writes the value when present.
func (e *Encoder) WriteOption(present bool) {
	e.WriteBool(present)
}

// Decoder reads BCS values. The first error is sticky and returned by Err;
// reads after an error return zero values.
type Decoder struct {
	data []byte
	pos  int
	err  error
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Err returns the first decoding error.
func (d *Decoder) Err() error {
	return d.err
}

// Remaining reports the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.Remaining() < n {
		d.fail(ErrUnexpectedEOF)
		return nil
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out
}

func (d *Decoder) ReadU8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) ReadU16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *Decoder) ReadU32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) ReadU64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) ReadBool() bool {
	switch d.ReadU8() {
	case 0:
		return false
	case 1:
		return true
	default:
		d.fail(ErrInvalidBool)
		return false
	}
}

func (d *Decoder) ReadULEB128() uint64 {
	var v uint64
	for shift := uint(0); ; shift += 7 {
		if shift > 63 {
			d.fail(ErrOverflow)
			return 0
		}
		b := d.take(1)
		if b == nil {
			return 0
		}
		v |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return v
		}
	}
}

// ReadLength reads a sequence length and checks it against the remaining input.
func (d *Decoder) ReadLength() int {
	n := d.ReadULEB128()
	if d.err != nil {
		return 0
	}
	if n > math.MaxInt32 || int(n) > d.Remaining() {
		d.fail(fmt.Errorf("%w: length %d exceeds input", ErrUnexpectedEOF, n))
		return 0
	}
	return int(n)
}

// ReadBytes reads a length-prefixed byte vector.
func (d *Decoder) ReadBytes() []byte {
	n := d.ReadLength()
	b := d.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// ReadFixed reads n raw bytes.
func (d *Decoder) ReadFixed(n int) []byte {
	b := d.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (d *Decoder) ReadString() string {
	return string(d.ReadBytes())
}

// ReadOption reads an option tag.
func (d *Decoder) ReadOption() bool {
	return d.ReadBool()
}

// EncodeU8 returns the encoding of a single u8 value.
func EncodeU8(v uint8) []byte {
	return []byte{v}
}

// EncodeU64 returns the encoding of a single u64 value.
func EncodeU64(v uint64) []byte {
	e := NewEncoder()
	e.WriteU64(v)
	return e.Bytes()
}

// EncodeBytes returns the encoding of a vector<u8>.
func EncodeBytes(b []byte) []byte {
	e := NewEncoder()
	e.WriteBytes(b)
	return e.Bytes()
}

// EncodeString returns the encoding of a UTF-8 string.
func EncodeString(s string) []byte {
	return EncodeBytes([]byte(s))
}

// EncodeBool returns the encoding of a bool.
func EncodeBool(v bool) []byte {
	e := NewEncoder()
	e.WriteBool(v)
	return e.Bytes()
}
