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

// Inferior identifies the process being inspected. The core never does
// anything with an Inferior except pass it back to the host's callbacks
// and compare it for identity (==) when deciding whether a Reloc's
// single-slot cache is still valid. Hosts typically use a pointer to
// their own process-handle type.
type Inferior any

// MemoryReader reads length bytes from address in inf into out. A
// non-nil error is surfaced to the interpreter's caller as
// ErrReadMemFailed.
type MemoryReader func(inf Inferior, address uint64, length int, out []byte) error

// Relocator turns the unrelocated address stored in r into the address
// as it lives in inf. A non-nil error is surfaced as ErrRelocFailed.
type Relocator func(inf Inferior, r *Reloc) (uint64, error)

// NativeFunc implements a native FuncRef. args holds exactly
// ref.NumParams() Values and rets must be filled with exactly
// ref.NumReturns() Values before returning.
type NativeFunc func(xc *ExecutionContext, inf Inferior, args []Value, rets []Value) error

// AvailabilityFunc is notified once per Function whose effective
// resolution state flips, after a registration-change's resolution
// fixpoint has converged.
type AvailabilityFunc func(fn *Function, available bool)
