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
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// Chunk type-ids, per the note wire format.
const (
	ChunkSignature ChunkType = 1
	ChunkBytecode  ChunkType = 2
	ChunkExternals ChunkType = 3
	ChunkStrings   ChunkType = 4
	ChunkCodeInfo  ChunkType = 5
)

type ChunkType uint64

// Chunk is one (type_id, version, payload) triple unpacked from a Note.
// Payload is a slice into the owning Note's byte copy, never a copy of
// its own.
type Chunk struct {
	Type    ChunkType
	Version uint64
	Payload []byte
	Offset  int // offset of Payload[0] within the owning Note, for diagnostics
}

// Note owns a private copy of a raw note's bytes, a source name and
// offset for diagnostics, and the ordered list of Chunks decoded from it.
// A Note is immutable once parsed.
type Note struct {
	bytes  []byte
	source string
	offset int
	chunks []Chunk
	loadID uuid.UUID

	strings []byte // the Strings chunk's payload, or nil

	poisoned bool // set by the debug allocator on drop
}

// Source returns a diagnostic label combining the note's filename and its
// offset within that file.
func (n *Note) Source() string {
	return fmt.Sprintf("%s+0x%x", n.source, n.offset)
}

// LoadID returns the identifier assigned to this Note when it was parsed,
// useful for correlating diagnostics across multiple loaded notes.
func (n *Note) LoadID() uuid.UUID { return n.loadID }

// Chunks returns the note's decoded chunks in wire order.
func (n *Note) Chunks() []Chunk { return n.chunks }

// ParseNote decodes buf into a Note. buf is copied; the caller may reuse
// or discard it afterwards. source and offset are attached to every
// diagnostic produced from the resulting Note.
func ParseNote(buf []byte, source string, offset int) (*Note, error) {
	n := &Note{
		bytes:  append([]byte(nil), buf...),
		source: source,
		offset: offset,
		loadID: uuid.New(),
	}
	r := NewReadBuf(n.bytes, NativeOrder, n)
	for r.BytesLeft() > 0 {
		typ, err := r.ReadULEB128()
		if err != nil {
			return nil, err
		}
		version, err := r.ReadULEB128()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadULEB128()
		if err != nil {
			return nil, err
		}
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		if len(payload) == 0 {
			// zero-length chunks are dropped during parse
			continue
		}
		n.chunks = append(n.chunks, Chunk{
			Type:    ChunkType(typ),
			Version: version,
			Payload: payload,
			Offset:  r.CurrentOffset() - len(payload),
		})
	}

	strings, ok, err := n.uniqueChunk(ChunkStrings, false)
	if err != nil {
		return nil, err
	}
	if ok {
		if strings.Version != 1 {
			return nil, errAt(ErrUnhandled, n, strings.Offset)
		}
		if len(strings.Payload) == 0 || strings.Payload[len(strings.Payload)-1] != 0 {
			return nil, errAt(ErrCorrupt, n, strings.Offset)
		}
		n.strings = strings.Payload
	}
	return n, nil
}

// uniqueChunk returns the single chunk with the given type, or (_, false,
// nil) if mustExist is false and no such chunk exists. A second matching
// chunk is an ErrUnhandled error carrying the offset of that duplicate.
func (n *Note) uniqueChunk(typ ChunkType, mustExist bool) (Chunk, bool, error) {
	if n.poisoned {
		return Chunk{}, false, errAt(ErrInvalid, n, 0)
	}
	found := false
	var result Chunk
	for _, c := range n.chunks {
		if c.Type != typ {
			continue
		}
		if found {
			return Chunk{}, false, errAt(ErrUnhandled, n, c.Offset)
		}
		result = c
		found = true
	}
	if !found && mustExist {
		return Chunk{}, false, errAt(ErrCorrupt, n, 0)
	}
	return result, found, nil
}

// UniqueChunk is the exported form of uniqueChunk, for hosts inspecting a
// Note directly (e.g. the cmd/i8xdump tool).
func (n *Note) UniqueChunk(typ ChunkType) (Chunk, bool, error) {
	return n.uniqueChunk(typ, false)
}

// stringAt resolves an offset into the note's string table to the NUL
// terminated string starting there.
func (n *Note) stringAt(offset int) (string, *Error) {
	if n.strings == nil || offset < 0 || offset >= len(n.strings) {
		return "", errAt(ErrCorrupt, n, offset)
	}
	end := bytes.IndexByte(n.strings[offset:], 0)
	if end < 0 {
		return "", errAt(ErrCorrupt, n, offset)
	}
	return string(n.strings[offset : offset+end]), nil
}
