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

import "github.com/google/uuid"

// allocator tracks every live Note a debug-allocation Context has parsed,
// keyed by the LoadID ParseNote assigned it. It exists only to support
// WithDebugAlloc: turning a use of a dropped Note into a loud failure
// instead of silent corruption of freed memory.
type allocator struct {
	live map[uuid.UUID]*Note
}

func newAllocator() *allocator {
	return &allocator{live: make(map[uuid.UUID]*Note)}
}

func (a *allocator) adopt(n *Note) {
	a.live[n.LoadID()] = n
}

// poison overwrites n's backing bytes and marks it so that any Chunk
// still referencing n's memory reads garbage rather than the previous
// contents, and further chunk decoding through n observes n.poisoned.
func (a *allocator) poison(n *Note) {
	delete(a.live, n.LoadID())
	n.poisoned = true
	for i := range n.bytes {
		n.bytes[i] = 0xdd
	}
}

// AdoptNote records note in c's debug allocator's set of live notes, if
// one is enabled. Neither ParseNote nor ImportBytecode does this on its
// own; DropNote poisons a note whether or not it was adopted.
func (c *Context) AdoptNote(note *Note) {
	if c.allocator != nil {
		c.allocator.adopt(note)
	}
}

// DropNote releases note. With WithDebugAlloc enabled its backing bytes
// are poisoned immediately; without it, DropNote is a no-op and the byte
// slice is reclaimed by the garbage collector whenever nothing else
// references it.
func (c *Context) DropNote(note *Note) {
	if c.allocator != nil {
		c.allocator.poison(note)
	}
}
