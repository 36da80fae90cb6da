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

import "golang.org/x/sys/cpu"

// fineGrainedTracing is set once at init from the host's own feature
// bits. It has no effect on correctness; on a host with AVX512 the debug
// interpreter emits a trace line for every instruction instead of only
// for the control-transfer opcodes isBasicBlockStart selects, since the
// extra log volume is cheap relative to what AVX512-class hardware can
// already push through memory.
var fineGrainedTracing = cpu.X86.HasAVX512

// stdDispatch maps each opcode that can still be present after decode's
// rewrite phases to the handler the fast interpreter runs for it.
// DW_OP_deref, I8_OP_deref_int, DW_OP_const*/constu/consts and the two
// cast opcodes never appear here: decode rewrites or erases them before
// this table is consulted.
var stdDispatch = map[Opcode]opHandler{
	opAnd:  binIntOp(func(a, b int64) int64 { return a & b }),
	opOr:   binIntOp(func(a, b int64) int64 { return a | b }),
	opXor:  binIntOp(func(a, b int64) int64 { return a ^ b }),
	opShl:  binIntOp(func(a, b int64) int64 { return a << uint(b) }),
	opShr:  binIntOp(func(a, b int64) int64 { return int64(uint64(a) >> uint(b)) }),
	opShra: binIntOp(func(a, b int64) int64 { return a >> uint(b) }),
	opMod:  binIntOp(func(a, b int64) int64 { return a % b }),
	opMul:  binIntOp(func(a, b int64) int64 { return a * b }),

	opDiv: func(xc *ExecutionContext, inst *Instruction) (*Instruction, error) {
		b := xc.pop()
		a := xc.pop()
		if b.Int() == 0 {
			return nil, newErr(ErrDivideByZero, nil, nil)
		}
		xc.push(IntValue(a.Int() / b.Int()))
		return inst.FallThrough, nil
	},

	opMinus:     opDo_minus,
	opPlusConst: opDo_plusConst,

	opEq: cmpOp(func(a, b int64) bool { return a == b }),
	opGe: cmpOp(func(a, b int64) bool { return a >= b }),
	opGt: cmpOp(func(a, b int64) bool { return a > b }),
	opLe: cmpOp(func(a, b int64) bool { return a <= b }),
	opLt: cmpOp(func(a, b int64) bool { return a < b }),
	opNe: cmpOp(func(a, b int64) bool { return a != b }),

	opDup:  opDo_dup,
	opDrop: opDo_drop,
	opOver: opDo_over,
	opPick: opDo_pick,
	opSwap: opDo_swap,
	opRot:  opDo_rot,

	opBra:  opDo_bra,
	opSkip: opDo_fallThroughOnly,
	opNop:  opDo_fallThroughOnly,

	opConstInternal: opDo_constInternal,
	opAddr:          opDo_addr,

	opDerefU: derefOp(false),
	opDerefI: derefOp(true),

	opWarn:         opDo_warn,
	opLoadExternal: opDo_loadExternal,
	opCall:         opDo_call,
	opReturn:       opDo_return,
}

func init() {
	for n := Opcode(0); n <= 31; n++ {
		stdDispatch[opLit0+n] = opDo_lit
	}
}

// traced wraps a fast-path handler with a Debug-severity log of the
// instruction about to run, for the debug interpreter variant.
func traced(op Opcode, h opHandler) opHandler {
	return func(xc *ExecutionContext, inst *Instruction) (*Instruction, error) {
		if fineGrainedTracing || isBasicBlockStart(op) {
			xc.ctx.Logf(Debug, "pc=%d op=0x%x stack=%d", inst.offset, op, len(xc.stack))
		}
		return h(xc, inst)
	}
}

// isBasicBlockStart reports whether op transfers control (DW_OP_bra,
// I8_OP_call or the synthetic return), used to throttle trace volume on
// hosts without fineGrainedTracing.
func isBasicBlockStart(op Opcode) bool {
	return op == opBra || op == opCall || op == opReturn
}

// wireDispatch implements spec.md §4.4 phase 8: give every live
// instruction its fast and debug handler pair. An instruction whose
// opcode has no entry (only possible for a bug elsewhere in the
// pipeline) is left with nil handlers, which runCode reports as
// ErrUnhandled rather than panicking.
func wireDispatch(ctx *Context, c *Code) {
	for i := range c.itable {
		inst := &c.itable[i]
		if inst.Opcode == EmptySlot {
			continue
		}
		h, ok := stdDispatch[inst.Opcode]
		if !ok {
			continue
		}
		inst.ImplStd = h
		inst.ImplDbg = traced(inst.Opcode, h)
	}
}
