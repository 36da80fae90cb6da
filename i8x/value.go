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

import "math"

// Value is one machine-word-sized stack slot. Which of its two fields is
// meaningful is determined by the Type the validator has proven occupies
// that slot; Value itself does not tag its own variant.
type Value struct {
	bits uint64
	ref  *FuncRef
	str  string // scratch: a decoded-but-not-yet-rewritten string operand
}

func IntValue(i int64) Value     { return Value{bits: uint64(i)} }
func UintValue(u uint64) Value   { return Value{bits: u} }
func PtrValue(p uint64) Value    { return Value{bits: p} }
func FloatValue(f float64) Value { return Value{bits: math.Float64bits(f)} }
func FuncValue(f *FuncRef) Value { return Value{ref: f} }
func strValue(s string) Value    { return Value{str: s} }

func (v Value) Int() int64     { return int64(v.bits) }
func (v Value) Uint() uint64   { return v.bits }
func (v Value) Ptr() uint64    { return v.bits }
func (v Value) Float() float64 { return math.Float64frombits(v.bits) }
func (v Value) Func() *FuncRef { return v.ref }
func (v Value) Str() string    { return v.str }
