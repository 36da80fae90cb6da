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

	"github.com/gbenson/i8x-go/i8x/i8xtest"
)

func TestDivideByZero(t *testing.T) {
	body := i8xtest.New().Lit(0).Div()
	note, err := ParseNote(i8xtest.Note("test::divz(i)i", nil, 64, 2, body), "divz_test", 0)
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}
	ctx := NewContext()
	fn, err := ctx.ImportBytecode(note)
	if err != nil {
		t.Fatalf("ImportBytecode: %v", err)
	}
	_, err = ctx.Call(fn, nil, []Value{IntValue(10)})
	if !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("Call() = %v, want ErrDivideByZero", err)
	}
}

// buildSwappedDerefNote assembles a 32-bit, byte-swapped note (unlike
// i8xtest.Note, which always builds native order) whose body reads a
// 4-byte unsigned value from the address passed as its only parameter.
func buildSwappedDerefNote() []byte {
	var w []byte
	appendRaw := func(typ ChunkType, version uint64, payload []byte) {
		w = append(w, uleb(uint64(typ))...)
		w = append(w, uleb(version)...)
		w = append(w, uleb(uint64(len(payload)))...)
		w = append(w, payload...)
	}

	sig := "test::readu32(p)i"
	appendRaw(ChunkSignature, 1, append([]byte(sig), 0))

	spec := archSpecBytes(32, true)
	ci := append([]byte{spec[0], spec[1]}, uleb(2)...)
	appendRaw(ChunkCodeInfo, 1, ci)

	body := i8xtest.New().DerefInt(32)
	appendRaw(ChunkBytecode, 3, body.Bytes())

	return w
}

func TestDerefByteSwapped(t *testing.T) {
	note, err := ParseNote(buildSwappedDerefNote(), "deref_test", 0)
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}

	wireBytes := []byte{0x01, 0x02, 0x03, 0x04} // swaps to 0x01020304 on read
	ctx := NewContext(WithMemoryReader(func(inf Inferior, address uint64, length int, out []byte) error {
		copy(out, wireBytes)
		return nil
	}))
	fn, err := ctx.ImportBytecode(note)
	if err != nil {
		t.Fatalf("ImportBytecode: %v", err)
	}

	results, err := ctx.Call(fn, nil, []Value{PtrValue(0x1000)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(results) != 1 || results[0].Uint() != 0x01020304 {
		t.Fatalf("Call() = %v, want [0x01020304]", results)
	}
}

func TestDerefNoMemoryReaderFails(t *testing.T) {
	body := i8xtest.New().DerefInt(32)
	note, err := ParseNote(i8xtest.Note("test::read(p)i", nil, 64, 2, body), "deref_test", 0)
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}
	ctx := NewContext()
	fn, err := ctx.ImportBytecode(note)
	if err != nil {
		t.Fatalf("ImportBytecode: %v", err)
	}
	if _, err := ctx.Call(fn, nil, []Value{PtrValue(0x2000)}); !errors.Is(err, ErrReadMemFailed) {
		t.Fatalf("Call() = %v, want ErrReadMemFailed", err)
	}
}
