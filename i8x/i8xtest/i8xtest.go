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

// Package i8xtest builds raw Infinity Note bytes for tests, centralizing
// bytecode fixtures the way a shared test-fixture package does. Nothing
// here is exported by the i8x package itself; it exists only to keep
// _test.go files free of hand-assembled byte literals.
package i8xtest

import (
	"bytes"
	"encoding/binary"

	"github.com/gbenson/i8x-go/i8x"
)

// Asm accumulates bytecode bytes for one function body.
type Asm struct {
	buf bytes.Buffer
}

func New() *Asm { return &Asm{} }

func (a *Asm) byte(b byte) *Asm { a.buf.WriteByte(b); return a }

func (a *Asm) uleb(v uint64) *Asm {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		a.buf.WriteByte(b)
		if v == 0 {
			return a
		}
	}
}

func (a *Asm) sleb(v int64) *Asm {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		a.buf.WriteByte(b)
	}
	return a
}

func (a *Asm) i16(v int16) *Asm {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(v))
	a.buf.Write(b[:])
	return a
}

func (a *Asm) wide(op uint64) *Asm { return a.byte(0xfa).uleb(op) }

// Plain DWARF opcodes used by tests.
func (a *Asm) Lit(n int) *Asm      { return a.byte(0x30 + byte(n)) }
func (a *Asm) Dup() *Asm          { return a.byte(0x12) }
func (a *Asm) Drop() *Asm         { return a.byte(0x13) }
func (a *Asm) Swap() *Asm         { return a.byte(0x16) }
func (a *Asm) Over() *Asm         { return a.byte(0x14) }
func (a *Asm) Rot() *Asm          { return a.byte(0x17) }
func (a *Asm) And() *Asm          { return a.byte(0x1a) }
func (a *Asm) Div() *Asm          { return a.byte(0x1b) }
func (a *Asm) Minus() *Asm        { return a.byte(0x1c) }
func (a *Asm) Mul() *Asm          { return a.byte(0x1e) }
func (a *Asm) Eq() *Asm           { return a.byte(0x29) }
func (a *Asm) Ge() *Asm           { return a.byte(0x2a) }
func (a *Asm) Gt() *Asm           { return a.byte(0x2b) }
func (a *Asm) Le() *Asm           { return a.byte(0x2c) }
func (a *Asm) Lt() *Asm           { return a.byte(0x2d) }
func (a *Asm) Ne() *Asm           { return a.byte(0x2e) }
func (a *Asm) Deref() *Asm       { return a.byte(0x06) }
func (a *Asm) PlusUconst(v uint64) *Asm { return a.byte(0x23).uleb(v) }
func (a *Asm) Constu(v uint64) *Asm     { return a.byte(0x10).uleb(v) }
func (a *Asm) Consts(v int64) *Asm      { return a.byte(0x11).sleb(v) }
func (a *Asm) Nop() *Asm                { return a.byte(0x96) }

// Skip emits DW_OP_skip with delta measured from the byte after the
// 2-byte operand, matching the wire format's relative addressing.
func (a *Asm) Skip(delta int16) *Asm { return a.byte(0x2f).i16(delta) }

// Bra emits DW_OP_bra, same addressing convention as Skip.
func (a *Asm) Bra(delta int16) *Asm { return a.byte(0x28).i16(delta) }

// Infinity extension opcodes.
func (a *Asm) Call() *Asm                  { return a.wide(0) }
func (a *Asm) LoadExternal(idx uint64) *Asm { return a.wide(1).uleb(idx) }
func (a *Asm) DerefInt(size int64) *Asm     { return a.wide(2).sleb(size) }
func (a *Asm) CastInt2Ptr() *Asm            { return a.wide(3) }
func (a *Asm) CastPtr2Int() *Asm            { return a.wide(4) }

// Bytes returns the assembled bytecode.
func (a *Asm) Bytes() []byte { return append([]byte(nil), a.buf.Bytes()...) }

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func appendChunk(w *bytes.Buffer, typ i8x.ChunkType, version uint64, payload []byte) {
	w.Write(uleb(uint64(typ)))
	w.Write(uleb(version))
	w.Write(uleb(uint64(len(payload))))
	w.Write(payload)
}

// Note assembles a complete raw note: signature, optional externals,
// CodeInfo (native byte order, the given wordsize) and the assembled
// bytecode body.
func Note(signature string, externals []string, wordsize int, maxStack uint64, body *Asm) []byte {
	var w bytes.Buffer
	appendChunk(&w, i8x.ChunkSignature, 1, append([]byte(signature), 0))

	if len(externals) > 0 {
		var ext bytes.Buffer
		for _, e := range externals {
			ext.WriteString(e)
			ext.WriteByte(0)
		}
		appendChunk(&w, i8x.ChunkExternals, 1, ext.Bytes())
	}

	var ci bytes.Buffer
	ci.WriteByte('i' ^ byte(wordsize))
	ci.WriteByte('8' ^ byte(wordsize))
	ci.Write(uleb(maxStack))
	appendChunk(&w, i8x.ChunkCodeInfo, 1, ci.Bytes())

	appendChunk(&w, i8x.ChunkBytecode, 3, body.Bytes())

	return w.Bytes()
}

// SignatureOnlyNote assembles a note with no Bytecode chunk: a pure
// declaration, resolvable only as a native implementation's signature.
func SignatureOnlyNote(signature string) []byte {
	var w bytes.Buffer
	appendChunk(&w, i8x.ChunkSignature, 1, append([]byte(signature), 0))
	return w.Bytes()
}
