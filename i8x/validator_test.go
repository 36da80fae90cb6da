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

import (
	"errors"
	"testing"
)

// TestValidateMismatchedMergeFails builds a tiny control-flow graph by
// hand: a branch whose two arms leave different types on the stack
// before rejoining at a shared instruction. The worklist validator must
// catch the mismatch on the second arrival rather than silently
// accepting whichever arm happened to reach the join first.
func TestValidateMismatchedMergeFails(t *testing.T) {
	c := &Code{maxStack: 8}
	c.itable = make([]Instruction, 4)
	for i := range c.itable {
		c.itable[i].offset = i
	}
	c.itable[0] = Instruction{offset: 0, Opcode: opBra, FallThrough: &c.itable[1], BranchNext: &c.itable[2]}
	c.itable[1] = Instruction{offset: 1, Opcode: opConstInternal, FallThrough: &c.itable[3]}
	c.itable[2] = Instruction{offset: 2, Opcode: opAddr, FallThrough: &c.itable[3]}
	c.itable[3] = Instruction{offset: 3, Opcode: opReturn}
	c.entryPoint = &c.itable[0]

	err := validate(c, nil, []Type{IntegerType}, nil)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("validate() = %v, want ErrInvalid", err)
	}
}

func TestValidateConsistentMergeSucceeds(t *testing.T) {
	c := &Code{maxStack: 8}
	c.itable = make([]Instruction, 4)
	for i := range c.itable {
		c.itable[i].offset = i
	}
	c.itable[0] = Instruction{offset: 0, Opcode: opBra, FallThrough: &c.itable[1], BranchNext: &c.itable[2]}
	c.itable[1] = Instruction{offset: 1, Opcode: opConstInternal, FallThrough: &c.itable[3]}
	c.itable[2] = Instruction{offset: 2, Opcode: opConstInternal, FallThrough: &c.itable[3]}
	c.itable[3] = Instruction{offset: 3, Opcode: opReturn}
	c.entryPoint = &c.itable[0]

	if err := validate(c, nil, []Type{IntegerType}, []Type{IntegerType}); err != nil {
		t.Fatalf("validate() = %v, want nil", err)
	}
	if !c.itable[3].EntryStack[0].Equal(IntegerType) {
		t.Errorf("join EntryStack = %v", c.itable[3].EntryStack)
	}
}

// TestValidateDerefRejectsInteger checks that dereferencing a value the
// validator only knows to be an Integer is rejected: DW_OP_deref and
// I8_OP_deref_int both require their operand to be a Pointer.
func TestValidateDerefRejectsInteger(t *testing.T) {
	for _, op := range []Opcode{opDeref, opDerefInt} {
		c := &Code{maxStack: 8}
		c.itable = []Instruction{
			{offset: 0, Opcode: opConstInternal},
			{offset: 1, Opcode: op},
			{offset: 2, Opcode: opReturn},
		}
		c.itable[0].FallThrough = &c.itable[1]
		c.itable[1].FallThrough = &c.itable[2]
		c.entryPoint = &c.itable[0]

		if err := validate(c, nil, nil, nil); !errors.Is(err, ErrInvalid) {
			t.Fatalf("validate() with Opcode=%v on an Integer = %v, want ErrInvalid", op, err)
		}
	}
}

func TestDecodeCodeInfoSwappedByteOrder(t *testing.T) {
	spec := archSpecBytes(32, true)
	chunk := Chunk{Type: ChunkCodeInfo, Version: 1, Payload: append([]byte{spec[0], spec[1]}, uleb(16)...)}
	note := &Note{chunks: []Chunk{chunk}}

	wordsize, order, maxStack, err := decodeCodeInfo(note, 1)
	if err != nil {
		t.Fatalf("decodeCodeInfo: %v", err)
	}
	if wordsize != 32 {
		t.Errorf("wordsize = %d, want 32", wordsize)
	}
	if order != ReversedOrder {
		t.Errorf("order = %v, want ReversedOrder", order)
	}
	if maxStack != 16 {
		t.Errorf("maxStack = %d, want 16", maxStack)
	}
}

func TestRewriteDerefsSignedWidthFromNegativeSize(t *testing.T) {
	c := &Code{wordsize: 64, byteOrder: ReversedOrder}
	c.itable = []Instruction{{Opcode: opDerefInt, Arg1: IntValue(-32)}}

	if err := rewriteDerefs(c, nil); err != nil {
		t.Fatalf("rewriteDerefs: %v", err)
	}
	inst := c.itable[0]
	if inst.Opcode != opDerefI {
		t.Fatalf("Opcode = %v, want opDerefI", inst.Opcode)
	}
	if inst.Arg1.Uint() != 4 {
		t.Errorf("Arg1 (byte width) = %d, want 4", inst.Arg1.Uint())
	}
	if inst.Arg2.Uint() != 1 {
		t.Errorf("Arg2 (swap) = %d, want 1", inst.Arg2.Uint())
	}
}

func TestRewriteDerefsRejectsBadWidth(t *testing.T) {
	c := &Code{wordsize: 64}
	c.itable = []Instruction{{Opcode: opDerefInt, Arg1: IntValue(3)}}
	if err := rewriteDerefs(c, nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("rewriteDerefs(bits=3) = %v, want ErrInvalid", err)
	}
}

func TestRewriteDerefsRejectsWidthAboveWordsize(t *testing.T) {
	c := &Code{wordsize: 32}
	c.itable = []Instruction{{Opcode: opDerefInt, Arg1: IntValue(64)}}
	if err := rewriteDerefs(c, nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("rewriteDerefs(bits=64, wordsize=32) = %v, want ErrInvalid", err)
	}
}
