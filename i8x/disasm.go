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
	"fmt"
	"strings"
)

func opName(op Opcode) string {
	switch op {
	case EmptySlot:
		return "<empty>"
	case opConstInternal:
		return "const"
	case opDerefU:
		return "deref.u"
	case opDerefI:
		return "deref.i"
	case opReturn:
		return "return"
	}
	if d, ok := opTable[op]; ok {
		return d.name
	}
	return fmt.Sprintf("op(0x%x)", uint32(op))
}

// Disassemble renders one line per live instruction: its byte offset,
// mnemonic, operands and fall-through/branch targets. It is used by
// cmd/i8xdump and is not consulted by decoding or execution.
func (c *Code) Disassemble() string {
	var b strings.Builder
	for i := range c.itable {
		inst := &c.itable[i]
		if inst.Opcode == EmptySlot {
			continue
		}
		fmt.Fprintf(&b, "%6d: %-20s", inst.offset, opName(inst.Opcode))
		switch inst.Opcode {
		case opConstInternal, opPick, opPlusConst, opLoadExternal:
			fmt.Fprintf(&b, " %d", inst.Arg1.Int())
		case opDerefU, opDerefI:
			fmt.Fprintf(&b, " width=%d swap=%d", inst.Arg1.Uint(), inst.Arg2.Uint())
		case opWarn:
			fmt.Fprintf(&b, " %q", inst.Arg1.Str())
		case opCastInt2Ptr, opCastPtr2Int:
			// erased before Disassemble is ever called on fully-decoded Code
		}
		if inst.BranchNext != nil {
			fmt.Fprintf(&b, " -> %d", inst.BranchNext.offset)
		}
		if inst.FallThrough != nil && inst.Opcode != opReturn {
			fmt.Fprintf(&b, " fall %d", inst.FallThrough.offset)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
