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

// Package elfnote extracts Infinity Notes from an ELF object's note
// sections. It exists only for the cmd/ tools; the i8x core package
// never imports debug/elf or does any file I/O of its own.
package elfnote

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/gbenson/i8x-go/i8x"
)

// NoteName is the ELF note "owner" string Infinity Notes are filed under.
const NoteName = "Infinity"

// NoteType is the ELF note type Infinity Notes carry, analogous to
// NT_GNU_BUILD_ID for GNU build-id notes.
const NoteType = 0x494e4638 // "INF8"

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Raw is one Infinity Note's bytes as found in an object file, before
// i8x.ParseNote has decoded its chunks.
type Raw struct {
	Bytes  []byte
	Offset int // file offset of the note section Bytes came from, for diagnostics
}

// Extract reads every Infinity Note from the ELF object at path.
func Extract(path string) ([]Raw, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfnote: %w", err)
	}
	defer f.Close()

	var out []Raw
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_NOTE {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("elfnote: reading %s: %w", sec.Name, err)
		}
		notes, err := parseNotes(f.ByteOrder, data, int(sec.Offset))
		if err != nil {
			return nil, fmt.Errorf("elfnote: %s: %w", sec.Name, err)
		}
		out = append(out, notes...)
	}
	return out, nil
}

// parseNotes walks the standard Elf32_Nhdr/Elf64_Nhdr-style note stream
// (both are identical in this respect, just with 4-byte name/desc/type
// fields) and returns every entry whose name and type match an Infinity
// Note.
func parseNotes(order binary.ByteOrder, data []byte, secOffset int) ([]Raw, error) {
	var out []Raw
	for len(data) > 0 {
		if len(data) < 12 {
			return nil, fmt.Errorf("truncated note header")
		}
		nameSize := order.Uint32(data[0:4])
		descSize := order.Uint32(data[4:8])
		noteType := order.Uint32(data[8:12])
		data = data[12:]

		nameEnd := align4(int(nameSize))
		if len(data) < nameEnd {
			return nil, fmt.Errorf("truncated note name")
		}
		name := string(bytes.TrimRight(data[:nameSize], "\x00"))
		data = data[nameEnd:]

		descEnd := align4(int(descSize))
		if len(data) < descEnd {
			return nil, fmt.Errorf("truncated note description")
		}
		desc := data[:descSize]
		descOffset := secOffset // approximate; good enough for diagnostics
		data = data[descEnd:]

		if name != NoteName || noteType != NoteType {
			continue
		}
		payload, err := maybeDecompress(desc)
		if err != nil {
			return nil, err
		}
		out = append(out, Raw{Bytes: payload, Offset: descOffset})
	}
	return out, nil
}

func align4(n int) int { return (n + 3) &^ 3 }

// maybeDecompress transparently inflates a zstd-compressed note
// payload, recognized by its magic number, leaving an uncompressed
// payload untouched.
func maybeDecompress(b []byte) ([]byte, error) {
	if len(b) < 4 || !bytes.Equal(b[:4], zstdMagic) {
		return b, nil
	}
	dec, err := zstd.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

// Load extracts and parses every Infinity Note in the ELF object at
// path into i8x.Notes, labeling diagnostics with path.
func Load(path string) ([]*i8x.Note, error) {
	raws, err := Extract(path)
	if err != nil {
		return nil, err
	}
	notes := make([]*i8x.Note, 0, len(raws))
	for _, r := range raws {
		n, err := i8x.ParseNote(r.Bytes, path, r.Offset)
		if err != nil {
			return nil, fmt.Errorf("%s+0x%x: %w", path, r.Offset, err)
		}
		notes = append(notes, n)
	}
	return notes, nil
}
