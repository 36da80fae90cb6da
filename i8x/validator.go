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

// validate implements spec.md §4.4 phase 5: an abstract interpreter that
// walks the control-flow graph tracking a stack of Types rather than
// Values. It proves that every instruction's operands have compatible
// types, that the stack never over- or under-flows, and that every
// control-flow merge point sees the same type stack regardless of which
// path arrived there.
func validate(c *Code, note *Note, ptypes, rtypes []Type) error {
	if c.entryPoint == nil {
		return nil
	}

	type pending struct {
		inst  *Instruction
		stack []Type
	}
	visited := make([]bool, len(c.itable))
	queue := []pending{{c.entryPoint, append([]Type(nil), ptypes...)}}

	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]
		inst := w.inst

		if visited[inst.offset] {
			if !typeStacksEqual(inst.EntryStack, w.stack) {
				return errAt(ErrInvalid, note, inst.offset)
			}
			continue
		}
		visited[inst.offset] = true
		inst.EntryStack = w.stack

		stack := append([]Type(nil), w.stack...)
		fall, branch, err := validateOne(c, note, inst, &stack)
		if err != nil {
			return err
		}
		if len(stack) > c.maxStack {
			return errAt(ErrInvalid, note, inst.offset)
		}
		if fall != nil {
			queue = append(queue, pending{fall, append([]Type(nil), stack...)})
		}
		if branch != nil {
			queue = append(queue, pending{branch, append([]Type(nil), stack...)})
		}
	}

	returnIdx := len(c.itable) - 1
	if !visited[returnIdx] {
		return nil // the function never falls off the end on any reachable path
	}
	exitStack := c.itable[returnIdx].EntryStack
	if len(exitStack) != len(rtypes) {
		return errAt(ErrInvalid, note, returnIdx)
	}
	for i, want := range rtypes {
		if !exitStack[i].Compatible(want) {
			return errAt(ErrInvalid, note, returnIdx)
		}
	}
	return nil
}

func typeStacksEqual(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func popType(note *Note, offset int, stack *[]Type) (Type, error) {
	s := *stack
	if len(s) == 0 {
		return Type{}, errAt(ErrInvalid, note, offset)
	}
	t := s[len(s)-1]
	*stack = s[:len(s)-1]
	return t, nil
}

func wantPop(note *Note, offset int, stack *[]Type, want Type) error {
	t, err := popType(note, offset, stack)
	if err != nil {
		return err
	}
	if !t.Compatible(want) {
		return errAt(ErrInvalid, note, offset)
	}
	return nil
}

// validateOne applies one instruction's type-stack effect, returning the
// successor(s) reachable from it. Both are non-nil only for DW_OP_bra.
func validateOne(c *Code, note *Note, inst *Instruction, stack *[]Type) (fall, branch *Instruction, err error) {
	off := inst.offset
	push := func(t Type) { *stack = append(*stack, t) }
	pop := func() (Type, error) { return popType(note, off, stack) }

	switch inst.Opcode {
	case EmptySlot:
		return nil, nil, errAt(ErrInvalid, note, off)

	case opReturn:
		return nil, nil, nil

	case opConstInternal:
		push(IntegerType)

	case opAddr:
		push(PointerType)

	case opDup:
		t, e := pop()
		if e != nil {
			return nil, nil, e
		}
		push(t)
		push(t)

	case opDrop:
		if _, e := pop(); e != nil {
			return nil, nil, e
		}

	case opOver:
		s := *stack
		if len(s) < 2 {
			return nil, nil, errAt(ErrInvalid, note, off)
		}
		push(s[len(s)-2])

	case opPick:
		idx := int(inst.Arg1.Uint())
		s := *stack
		if idx < 0 || idx >= len(s) {
			return nil, nil, errAt(ErrInvalid, note, off)
		}
		push(s[len(s)-1-idx])

	case opSwap:
		s := *stack
		if len(s) < 2 {
			return nil, nil, errAt(ErrInvalid, note, off)
		}
		s[len(s)-1], s[len(s)-2] = s[len(s)-2], s[len(s)-1]

	case opRot:
		s := *stack
		if len(s) < 3 {
			return nil, nil, errAt(ErrInvalid, note, off)
		}
		n := len(s)
		s[n-1], s[n-2], s[n-3] = s[n-3], s[n-1], s[n-2]

	case opAnd, opOr, opXor, opShl, opShr, opShra, opDiv, opMod, opMul:
		if err := wantPop(note, off, stack, IntegerType); err != nil {
			return nil, nil, err
		}
		if err := wantPop(note, off, stack, IntegerType); err != nil {
			return nil, nil, err
		}
		push(IntegerType)

	case opMinus:
		b, e := pop()
		if e != nil {
			return nil, nil, e
		}
		a, e := pop()
		if e != nil {
			return nil, nil, e
		}
		switch {
		case a.Equal(PointerType) && b.Equal(PointerType):
			push(IntegerType)
		case a.Equal(PointerType):
			if !b.Compatible(IntegerType) {
				return nil, nil, errAt(ErrInvalid, note, off)
			}
			push(PointerType)
		default:
			if !a.Compatible(IntegerType) || !b.Compatible(IntegerType) {
				return nil, nil, errAt(ErrInvalid, note, off)
			}
			push(IntegerType)
		}

	case opPlusConst:
		t, e := pop()
		if e != nil {
			return nil, nil, e
		}
		if !t.Compatible(IntegerType) && !t.Equal(PointerType) {
			return nil, nil, errAt(ErrInvalid, note, off)
		}
		push(t)

	case opEq, opGe, opGt, opLe, opLt, opNe:
		b, e := pop()
		if e != nil {
			return nil, nil, e
		}
		a, e := pop()
		if e != nil {
			return nil, nil, e
		}
		if !a.Compatible(b) {
			return nil, nil, errAt(ErrInvalid, note, off)
		}
		push(IntegerType)

	case opBra:
		if err := wantPop(note, off, stack, IntegerType); err != nil {
			return nil, nil, err
		}
		return inst.FallThrough, inst.BranchNext, nil

	case opSkip, opNop, opWarn:
		// no type-stack effect

	case opLoadExternal:
		push(inst.Ext1.Type)

	case opCall:
		ref, e := pop()
		if e != nil {
			return nil, nil, e
		}
		if !ref.IsFunc() {
			return nil, nil, errAt(ErrInvalid, note, off)
		}
		params := ref.Params()
		for i := len(params) - 1; i >= 0; i-- {
			if err := wantPop(note, off, stack, params[i]); err != nil {
				return nil, nil, err
			}
		}
		for _, r := range ref.Returns() {
			push(r)
		}

	case opCastInt2Ptr:
		if err := wantPop(note, off, stack, intOrPtr); err != nil {
			return nil, nil, err
		}
		push(PointerType)

	case opCastPtr2Int:
		if err := wantPop(note, off, stack, intOrPtr); err != nil {
			return nil, nil, err
		}
		push(IntegerType)

	case opDeref:
		if err := wantPop(note, off, stack, PointerType); err != nil {
			return nil, nil, err
		}
		push(PointerType)

	case opDerefInt:
		if err := wantPop(note, off, stack, PointerType); err != nil {
			return nil, nil, err
		}
		push(IntegerType)

	default:
		if inst.Opcode.isLit() {
			push(IntegerType)
			break
		}
		return nil, nil, errAt(ErrUnhandled, note, off)
	}

	return inst.FallThrough, nil, nil
}
