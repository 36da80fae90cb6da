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

import "testing"

func TestDecodeTypeCore(t *testing.T) {
	for s, want := range map[string]Type{
		"i": IntegerType,
		"p": PointerType,
		"o": OpaqueType,
	} {
		got, err := DecodeType(s)
		if err != nil {
			t.Fatalf("DecodeType(%q): %v", s, err)
		}
		if !got.Equal(want) {
			t.Errorf("DecodeType(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestDecodeTypeFunc(t *testing.T) {
	got, err := DecodeType("Fi(po)")
	if err != nil {
		t.Fatalf("DecodeType: %v", err)
	}
	if !got.IsFunc() {
		t.Fatalf("expected a function type")
	}
	if len(got.Returns()) != 1 || !got.Returns()[0].Equal(IntegerType) {
		t.Errorf("Returns() = %v", got.Returns())
	}
	if len(got.Params()) != 2 || !got.Params()[0].Equal(PointerType) || !got.Params()[1].Equal(OpaqueType) {
		t.Errorf("Params() = %v", got.Params())
	}
	if got.Encode() != "Fi(po)" {
		t.Errorf("Encode() = %q, want \"Fi(po)\"", got.Encode())
	}
}

func TestDecodeTypeTrailingBytesRejected(t *testing.T) {
	if _, err := DecodeType("ii"); err == nil {
		t.Fatalf("DecodeType(\"ii\") should fail on trailing bytes")
	}
}

func TestTypeCompatible(t *testing.T) {
	cases := []struct {
		a, b Type
		want bool
	}{
		{IntegerType, IntegerType, true},
		{IntegerType, PointerType, false},
		{intOrPtr, IntegerType, true},
		{intOrPtr, PointerType, true},
		{intOrPtr, OpaqueType, false},
		{OpaqueType, OpaqueType, true},
	}
	for _, c := range cases {
		if got := c.a.Compatible(c.b); got != c.want {
			t.Errorf("%v.Compatible(%v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestTypeRegistryInterning(t *testing.T) {
	r := newTypeRegistry()
	a, err := r.Intern("Fi(pp)")
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	b, err := r.Intern("Fi(pp)")
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if a.fn != b.fn {
		t.Fatalf("two interns of the same encoding produced different funcTypes")
	}
	if got := r.Encodings(); len(got) != 1 || got[0] != "Fi(pp)" {
		t.Errorf("Encodings() = %v", got)
	}
}

func TestMakeFuncTypeString(t *testing.T) {
	got := makeFuncTypeString([]Type{PointerType, IntegerType}, []Type{IntegerType})
	if got != "Fi(pi)" {
		t.Errorf("makeFuncTypeString = %q, want \"Fi(pi)\"", got)
	}
}
