// Copyright (C) 2024 Gergely Benson
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package i8x

import "encoding/binary"

// ByteOrder selects whether multi-byte reads from a ReadBuf are swapped
// relative to the host's native order.
type ByteOrder int

const (
	NativeOrder ByteOrder = iota
	ReversedOrder
)

// ReadBuf is a bounds-checked cursor over a note's byte slice. It never
// panics: every read that would run past limit returns ErrCorrupt, and
// every LEB128 read whose value does not fit the running word size
// returns ErrUnhandled.
//
// A ReadBuf does not own the bytes it reads; the owning Note keeps them
// alive for as long as any Chunk or Code built from it is reachable.
type ReadBuf struct {
	buf       []byte
	pos       int
	byteOrder ByteOrder
	note      *Note // for diagnostics; may be nil
}

// NewReadBuf wraps buf for sequential reads. note, if non-nil, is used to
// attribute errors to a source location.
func NewReadBuf(buf []byte, order ByteOrder, note *Note) *ReadBuf {
	return &ReadBuf{buf: buf, byteOrder: order, note: note}
}

// BytesLeft returns the number of unread bytes.
func (r *ReadBuf) BytesLeft() int { return len(r.buf) - r.pos }

// CurrentOffset returns the cursor's offset from the start of buf.
func (r *ReadBuf) CurrentOffset() int { return r.pos }

func (r *ReadBuf) err(code ErrorCode) *Error {
	return errAt(code, r.note, r.pos)
}

func (r *ReadBuf) take(n int) ([]byte, *Error) {
	if r.BytesLeft() < n {
		return nil, r.err(ErrCorrupt)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadBytes reads and returns n raw bytes.
func (r *ReadBuf) ReadBytes(n int) ([]byte, *Error) {
	return r.take(n)
}

func (r *ReadBuf) swap(b []byte) {
	if r.byteOrder != ReversedOrder {
		return
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// ReadU8, ReadU16, ReadU32, ReadU64 read a fixed-width unsigned integer,
// swapping bytes first if the buffer's ByteOrder is ReversedOrder.

func (r *ReadBuf) ReadU8() (uint8, *Error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *ReadBuf) ReadU16() (uint16, *Error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	tmp := [2]byte{b[0], b[1]}
	r.swap(tmp[:])
	return binary.LittleEndian.Uint16(tmp[:]), nil
}

func (r *ReadBuf) ReadU32() (uint32, *Error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	tmp := [4]byte{b[0], b[1], b[2], b[3]}
	r.swap(tmp[:])
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func (r *ReadBuf) ReadU64() (uint64, *Error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	var tmp [8]byte
	copy(tmp[:], b)
	r.swap(tmp[:])
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func (r *ReadBuf) ReadI8() (int8, *Error) {
	u, err := r.ReadU8()
	return int8(u), err
}

func (r *ReadBuf) ReadI16() (int16, *Error) {
	u, err := r.ReadU16()
	return int16(u), err
}

func (r *ReadBuf) ReadI32() (int32, *Error) {
	u, err := r.ReadU32()
	return int32(u), err
}

func (r *ReadBuf) ReadI64() (int64, *Error) {
	u, err := r.ReadU64()
	return int64(u), err
}

// ReadNative16 reads a 16-bit integer that is always in the host's
// native byte order regardless of r's configured ByteOrder, used for the
// architecture specifier embedded in a CodeInfo chunk.
func (r *ReadBuf) ReadNative16() (uint16, *Error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadULEB128 reads an unsigned LEB128 value, failing with ErrCorrupt on a
// truncated encoding and ErrUnhandled if the value overflows a uint64.
func (r *ReadBuf) ReadULEB128() (uint64, *Error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadU8()
		if err != nil {
			return 0, err
		}
		if shift >= 64 || (shift == 63 && b&0x7f > 1) {
			return 0, r.err(ErrUnhandled)
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadSLEB128 reads a signed LEB128 value with the same overflow rules as
// ReadULEB128.
func (r *ReadBuf) ReadSLEB128() (int64, *Error) {
	var result int64
	var shift uint
	var b byte
	for {
		var err *Error
		b, err = r.ReadU8()
		if err != nil {
			return 0, err
		}
		if shift >= 64 || (shift == 63 && b&0x7f != 0 && b&0x7f != 0x7f) {
			return 0, r.err(ErrUnhandled)
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

// ReadStrOff reads an unsigned LEB128 offset into the parent Note's string
// table and resolves it to a NUL-terminated string. ReadStrOff fails with
// ErrCorrupt if r has no parent Note or the offset runs off the end of the
// string table.
func (r *ReadBuf) ReadStrOff() (string, *Error) {
	off, err := r.ReadULEB128()
	if err != nil {
		return "", err
	}
	if r.note == nil {
		return "", r.err(ErrCorrupt)
	}
	return r.note.stringAt(int(off))
}
