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

// opHandler executes one instruction and returns the instruction to run
// next: inst.FallThrough, inst.BranchNext, a callee's entry point, a
// caller's resume point after a return, or nil to signal that the
// outermost frame has returned.
type opHandler func(xc *ExecutionContext, inst *Instruction) (*Instruction, error)

// Instruction is one decoded bytecode operation. Slots of an itable that
// are not the start of an instruction, or that decoding/validation erased
// as dead or rewritten away, hold the zero value (Opcode == EmptySlot).
type Instruction struct {
	Opcode Opcode
	Arg1   Value
	Arg2   Value
	Addr1  *Reloc
	Ext1   *FuncRef

	FallThrough *Instruction
	BranchNext  *Instruction // only set when Opcode == opBra

	ImplStd opHandler
	ImplDbg opHandler

	// Validator scratch; meaningless once validation has completed.
	IsVisited  bool
	EntryStack []Type

	offset int // index into the itable / byte offset in the original bytecode
}

// Code is the unpacked bytecode of one Function.
type Code struct {
	fn *Function

	wordsize  int // 0, 32 or 64
	byteOrder ByteOrder
	maxStack  int

	itable     []Instruction
	entryPoint *Instruction

	relocs []*Reloc
}

// Function returns the Function this Code belongs to.
func (c *Code) Function() *Function { return c.fn }

// Wordsize, ByteOrder and MaxStack expose the architecture the Code's
// note declared, per the CodeInfo chunk.
func (c *Code) Wordsize() int        { return c.wordsize }
func (c *Code) ByteOrder() ByteOrder { return c.byteOrder }
func (c *Code) MaxStack() int        { return c.maxStack }

// EntryPoint returns the instruction execution begins at, or nil for a
// Code with no executable body (no Bytecode chunk).
func (c *Code) EntryPoint() *Instruction { return c.entryPoint }

// archSpecBytes computes the 2-byte architecture specifier for a given
// wordsize and swap bit, per spec.md §6.
func archSpecBytes(wordsize int, swapped bool) [2]byte {
	w := byte(wordsize)
	if !swapped {
		return [2]byte{'i' ^ w, '8' ^ w}
	}
	return [2]byte{'8' ^ w, 'i' ^ w}
}

// decodeCodeInfo implements spec.md §4.4 phase 1. An absent CodeInfo
// chunk means wordsize=0, maxStack=numParams and no executable body.
func decodeCodeInfo(note *Note, numParams int) (wordsize int, order ByteOrder, maxStack int, err error) {
	chunk, ok, e := note.uniqueChunk(ChunkCodeInfo, false)
	if e != nil {
		return 0, NativeOrder, 0, e
	}
	if !ok {
		return 0, NativeOrder, numParams, nil
	}
	if chunk.Version != 1 {
		return 0, NativeOrder, 0, errAt(ErrUnhandled, note, chunk.Offset)
	}
	r := NewReadBuf(chunk.Payload, NativeOrder, note)
	specLo, rerr := r.ReadU8()
	if rerr != nil {
		return 0, NativeOrder, 0, rerr
	}
	specHi, rerr := r.ReadU8()
	if rerr != nil {
		return 0, NativeOrder, 0, rerr
	}
	spec := [2]byte{specLo, specHi}

	found := false
	for _, w := range []int{32, 64} {
		for _, swapped := range []bool{false, true} {
			if archSpecBytes(w, swapped) == spec {
				wordsize = w
				found = true
				if swapped {
					order = ReversedOrder
				} else {
					order = NativeOrder
				}
			}
		}
	}
	if !found {
		return 0, NativeOrder, 0, errAt(ErrUnhandled, note, chunk.Offset)
	}
	ms, rerr := r.ReadULEB128()
	if rerr != nil {
		return 0, NativeOrder, 0, rerr
	}
	if ms > 1<<31 {
		return 0, NativeOrder, 0, errAt(ErrUnhandled, note, chunk.Offset)
	}
	maxStack = int(ms)
	return wordsize, order, maxStack, nil
}

// decodeCode runs the full decoding pipeline of spec.md §4.4 over note,
// producing the Code for fn. externals is fn's own external FuncRef list,
// used by phase 4 to resolve I8_OP_load_external.
func decodeCode(ctx *Context, fn *Function, note *Note, numParams int, externals []*FuncRef, rtypes, ptypes []Type) (*Code, error) {
	wordsize, order, maxStack, err := decodeCodeInfo(note, numParams)
	if err != nil {
		return nil, err
	}
	if maxStack < numParams {
		return nil, errAt(ErrInvalid, note, 0)
	}
	c := &Code{fn: fn, wordsize: wordsize, byteOrder: order, maxStack: maxStack}

	bcChunk, ok, err := note.uniqueChunk(ChunkBytecode, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		// no executable body
		return c, nil
	}
	if bcChunk.Version != 3 {
		return nil, errAt(ErrUnhandled, note, bcChunk.Offset)
	}
	if wordsize == 0 {
		return nil, errAt(ErrInvalid, note, bcChunk.Offset)
	}

	if err := decodeBytecode(c, note, bcChunk); err != nil {
		return nil, err
	}
	if err := analyzeFlow(c, note); err != nil {
		return nil, err
	}
	if err := preValidateRewrite(ctx, c, note, externals); err != nil {
		return nil, err
	}
	if err := validate(c, note, ptypes, rtypes); err != nil {
		return nil, err
	}
	if err := rewriteDerefs(c, note); err != nil {
		return nil, err
	}
	eraseCasts(c)
	wireDispatch(ctx, c)
	return c, nil
}

// decodeBytecode implements spec.md §4.4 phase 2: allocate itable[size+1]
// and decode every instruction in sequence into the slot at its starting
// byte offset.
func decodeBytecode(c *Code, note *Note, chunk Chunk) error {
	code := chunk.Payload
	c.itable = make([]Instruction, len(code)+1)
	c.itable[len(code)].Opcode = opReturn
	c.itable[len(code)].offset = len(code)

	r := NewReadBuf(code, c.byteOrder, note)
	for r.BytesLeft() > 0 {
		start := r.CurrentOffset()
		b, rerr := r.ReadU8()
		if rerr != nil {
			return rerr
		}
		op := Opcode(b)
		if b == wideOpEscape {
			ext, rerr := r.ReadULEB128()
			if rerr != nil {
				return rerr
			}
			op = Opcode(ext) + 0x100
		}

		inst := &c.itable[start]
		inst.offset = start

		var desc opDescriptor
		switch {
		case op.isLit():
			desc = opDescriptor{name: "DW_OP_litN"}
		default:
			var known bool
			desc, known = opTable[op]
			if !known || desc.name == "" {
				return errAt(ErrUnhandled, note, chunk.Offset+start)
			}
		}
		inst.Opcode = op

		a1, rerr := readOperand(r, desc.operand1, c.wordsize, note, chunk.Offset+r.CurrentOffset())
		if rerr != nil {
			return rerr
		}
		inst.Arg1 = a1
		a2, rerr := readOperand(r, desc.operand2, c.wordsize, note, chunk.Offset+r.CurrentOffset())
		if rerr != nil {
			return rerr
		}
		inst.Arg2 = a2

		fallOffset := r.CurrentOffset()
		switch op {
		case opSkip:
			fallOffset += int(int16(a1.Int()))
		case opBra:
			branchOffset := r.CurrentOffset() + int(int16(a1.Int()))
			if branchOffset < 0 || branchOffset > len(code) {
				return errAt(ErrInvalid, note, chunk.Offset+start)
			}
			inst.BranchNext = &c.itable[branchOffset]
		}
		if fallOffset < 0 || fallOffset > len(code) {
			return errAt(ErrInvalid, note, chunk.Offset+start)
		}
		inst.FallThrough = &c.itable[fallOffset]
	}
	c.entryPoint = &c.itable[0]
	return nil
}

// readOperand reads one instruction operand of the given kind, failing
// with ErrUnhandled if a fixed-width or LEB128 value does not round-trip
// through the code's running word size.
func readOperand(r *ReadBuf, kind operandKind, wordsize int, note *Note, errOffset int) (Value, *Error) {
	switch kind {
	case operandNone:
		return Value{}, nil
	case operandI8:
		v, err := r.ReadI8()
		return IntValue(int64(v)), err
	case operandU8:
		v, err := r.ReadU8()
		return UintValue(uint64(v)), err
	case operandI16:
		v, err := r.ReadI16()
		return IntValue(int64(v)), err
	case operandU16:
		v, err := r.ReadU16()
		return UintValue(uint64(v)), err
	case operandI32:
		v, err := r.ReadI32()
		return IntValue(int64(v)), err
	case operandU32:
		v, err := r.ReadU32()
		return UintValue(uint64(v)), err
	case operandI64:
		v, err := r.ReadI64()
		return IntValue(v), err
	case operandU64:
		v, err := r.ReadU64()
		return UintValue(v), err
	case operandSLEB:
		v, err := r.ReadSLEB128()
		return IntValue(v), err
	case operandULEB:
		v, err := r.ReadULEB128()
		return UintValue(v), err
	case operandStrOff:
		s, err := r.ReadStrOff()
		if err != nil {
			return Value{}, err
		}
		return strValue(s), nil
	case operandAddr:
		if wordsize == 32 {
			v, err := r.ReadU32()
			return UintValue(uint64(v)), err
		}
		v, err := r.ReadU64()
		return UintValue(v), err
	default:
		return Value{}, errAt(ErrUnhandled, note, errOffset)
	}
}

