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

// Package i8x decodes and executes Infinity Notes: small, architecture
// neutral bytecode programs carried in ELF note sections that let a
// debugger query an inferior process without building in knowledge of
// that process's internal layout.
//
// A Context owns the interning tables and registered Functions for one
// independent universe of notes. Parse a note's raw bytes with
// ParseNote, register it with Context.ImportBytecode, and once its
// FuncRef and every function it calls resolve, run it against a
// specific Inferior with Context.Call.
package i8x
