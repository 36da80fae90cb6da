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

// analyzeFlow implements spec.md §4.4 phase 3: walk the control-flow
// graph from the entry point and blank out every itable slot that is
// neither the start of a reachable instruction nor the synthetic return
// slot. A cyclic skip (DW_OP_skip back to itself, or a longer loop of
// skips) is walked exactly once thanks to the visited set; it is not an
// error at decode time; a Code whose only path from the entry point is
// such a loop simply never returns when run.
func analyzeFlow(c *Code, note *Note) error {
	if c.entryPoint == nil {
		return nil
	}
	visited := make([]bool, len(c.itable))
	stack := []*Instruction{c.entryPoint}
	for len(stack) > 0 {
		inst := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[inst.offset] {
			continue
		}
		visited[inst.offset] = true
		if inst.FallThrough != nil {
			stack = append(stack, inst.FallThrough)
		}
		if inst.BranchNext != nil {
			stack = append(stack, inst.BranchNext)
		}
	}
	for i := range c.itable {
		if i != len(c.itable)-1 && !visited[i] && c.itable[i].Opcode != EmptySlot {
			c.itable[i] = Instruction{offset: c.itable[i].offset}
		}
	}
	return nil
}

// preValidateRewrite implements spec.md §4.4 phase 4: normalize the ten
// constant-loading opcodes to the single internal opConstInternal,
// intern a Reloc for every DW_OP_addr, and resolve every
// I8_OP_load_external's operand to the externals entry it names.
func preValidateRewrite(ctx *Context, c *Code, note *Note, externals []*FuncRef) error {
	for i := range c.itable {
		inst := &c.itable[i]
		switch {
		case inst.Opcode == EmptySlot:
			continue
		case inst.Opcode.isConstLoad():
			inst.Opcode = opConstInternal
		case inst.Opcode == opAddr:
			reloc := &Reloc{Unrelocated: uintptr(inst.Arg1.Uint())}
			c.relocs = append(c.relocs, reloc)
			inst.Addr1 = reloc
		case inst.Opcode == opLoadExternal:
			idx := inst.Arg1.Uint()
			if idx >= uint64(len(externals)) {
				return errAt(ErrInvalid, note, inst.offset)
			}
			inst.Ext1 = externals[idx]
		}
	}
	return nil
}

// rewriteDerefs implements spec.md §4.4 phase 6. Both DW_OP_deref and
// I8_OP_deref_int become one of two internal opcodes, opDerefU/opDerefI,
// each carrying the access width in Arg1 and a swap flag in Arg2: a
// single parameterized pair instead of sixteen size/sign/order
// combinations.
func rewriteDerefs(c *Code, note *Note) error {
	swap := uint64(0)
	if c.byteOrder == ReversedOrder {
		swap = 1
	}
	for i := range c.itable {
		inst := &c.itable[i]
		switch inst.Opcode {
		case opDeref:
			inst.Opcode = opDerefU
			inst.Arg1 = UintValue(uint64(c.wordsize / 8))
			inst.Arg2 = UintValue(swap)
		case opDerefInt:
			bits := inst.Arg1.Int()
			signed := false
			if bits < 0 {
				bits = -bits
				signed = true
			}
			switch bits {
			case 8, 16, 32, 64:
			default:
				return errAt(ErrInvalid, note, inst.offset)
			}
			if bits > int64(c.wordsize) {
				return errAt(ErrInvalid, note, inst.offset)
			}
			if signed {
				inst.Opcode = opDerefI
			} else {
				inst.Opcode = opDerefU
			}
			inst.Arg1 = UintValue(uint64(bits) / 8)
			inst.Arg2 = UintValue(swap)
		}
	}
	return nil
}

// resolvePastCasts follows a chain of FallThrough pointers past any
// erased cast instruction to the first real successor.
func resolvePastCasts(inst *Instruction) *Instruction {
	for inst != nil && (inst.Opcode == opCastInt2Ptr || inst.Opcode == opCastPtr2Int) {
		inst = inst.FallThrough
	}
	return inst
}

// eraseCasts implements spec.md §4.4 phase 7. I8_OP_cast_int2ptr and
// I8_OP_cast_ptr2int exist only to steer the validator's Type stack; a
// Value's bit pattern does not change between the integer and pointer
// interpretations, so once validation has passed the casts do no work
// and are spliced out of the control-flow graph.
func eraseCasts(c *Code) {
	for i := range c.itable {
		inst := &c.itable[i]
		if inst.FallThrough != nil {
			inst.FallThrough = resolvePastCasts(inst.FallThrough)
		}
		if inst.BranchNext != nil {
			inst.BranchNext = resolvePastCasts(inst.BranchNext)
		}
	}
	c.entryPoint = resolvePastCasts(c.entryPoint)
	for i := range c.itable {
		if c.itable[i].Opcode == opCastInt2Ptr || c.itable[i].Opcode == opCastPtr2Int {
			c.itable[i] = Instruction{offset: c.itable[i].offset}
		}
	}
}
