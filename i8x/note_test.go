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
	"errors"
	"testing"
)

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func chunkBytes(typ ChunkType, version uint64, payload []byte) []byte {
	var out []byte
	out = append(out, uleb(uint64(typ))...)
	out = append(out, uleb(version)...)
	out = append(out, uleb(uint64(len(payload)))...)
	out = append(out, payload...)
	return out
}

func TestParseNoteSingleChunk(t *testing.T) {
	buf := chunkBytes(ChunkSignature, 1, []byte("test::f(i)i\x00"))
	n, err := ParseNote(buf, "test.so", 0)
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}
	if len(n.Chunks()) != 1 {
		t.Fatalf("got %d chunks, want 1", len(n.Chunks()))
	}
	c, ok, err := n.UniqueChunk(ChunkSignature)
	if err != nil || !ok {
		t.Fatalf("UniqueChunk(Signature) = %v, %v, %v", c, ok, err)
	}
	if string(c.Payload) != "test::f(i)i\x00" {
		t.Errorf("payload = %q", c.Payload)
	}
}

func TestParseNoteDropsZeroLengthChunks(t *testing.T) {
	buf := chunkBytes(ChunkExternals, 1, nil)
	n, err := ParseNote(buf, "test.so", 0)
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}
	if len(n.Chunks()) != 0 {
		t.Fatalf("got %d chunks, want 0 (zero-length chunk should be dropped)", len(n.Chunks()))
	}
}

func TestParseNoteDuplicateChunkIsError(t *testing.T) {
	var buf []byte
	buf = append(buf, chunkBytes(ChunkSignature, 1, []byte("a::f()\x00"))...)
	buf = append(buf, chunkBytes(ChunkSignature, 1, []byte("a::g()\x00"))...)
	n, err := ParseNote(buf, "test.so", 0)
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}
	if _, _, err := n.UniqueChunk(ChunkSignature); !errors.Is(err, ErrUnhandled) {
		t.Fatalf("UniqueChunk with two Signature chunks = %v, want ErrUnhandled", err)
	}
}

func TestParseNoteTruncatedPayloadFails(t *testing.T) {
	buf := append(uleb(uint64(ChunkSignature)), uleb(1)...)
	buf = append(buf, uleb(10)...) // claims 10 payload bytes, supplies none
	if _, err := ParseNote(buf, "test.so", 0); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("ParseNote(truncated) = %v, want ErrCorrupt", err)
	}
}

func TestNoteStringAt(t *testing.T) {
	buf := chunkBytes(ChunkStrings, 1, []byte("foo\x00bar\x00"))
	n, err := ParseNote(buf, "test.so", 0)
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}
	s, serr := n.stringAt(4)
	if serr != nil || s != "bar" {
		t.Fatalf("stringAt(4) = %q, %v, want \"bar\"", s, serr)
	}
}
