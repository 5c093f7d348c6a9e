package wasm

import (
	"bytes"
	"errors"
	"io"
)

// ErrOverflow is returned when a LEB128 value exceeds its bit width.
var ErrOverflow = errors.New("leb128: overflow")

// AppendULEB128 appends the unsigned LEB128 encoding of v to dst.
func AppendULEB128(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// AppendSLEB128 appends the signed LEB128 encoding of v to dst. 32-bit
// immediates use it too; the encoding is the same for the narrower range.
func AppendSLEB128(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if done {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

func WriteLEB128u(w *bytes.Buffer, v uint32) {
	var scratch [5]byte
	w.Write(AppendULEB128(scratch[:0], v))
}

func WriteLEB128s(w *bytes.Buffer, v int32) {
	WriteLEB128s64(w, int64(v))
}

func WriteLEB128s64(w *bytes.Buffer, v int64) {
	var scratch [10]byte
	w.Write(AppendSLEB128(scratch[:0], v))
}

// EncodeLEB128s64 returns the signed LEB128 encoding of v.
func EncodeLEB128s64(v int64) []byte {
	return AppendSLEB128(nil, v)
}

// ReadLEB128u reads an unsigned 32-bit LEB128 value.
func ReadLEB128u(r io.ByteReader) (uint32, error) {
	var v uint32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, ErrOverflow
}

// ReadLEB128s64 reads a signed LEB128 value of up to 64 bits.
func ReadLEB128s64(r io.ByteReader) (int64, error) {
	var v int64
	for shift := uint(0); shift < 70; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= int64(b&0x7f) << shift
		if b&0x80 != 0 {
			continue
		}
		if next := shift + 7; next < 64 && b&0x40 != 0 {
			v |= ^int64(0) << next
		}
		return v, nil
	}
	return 0, ErrOverflow
}
