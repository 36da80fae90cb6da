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

func TestParseSignature(t *testing.T) {
	provider, name, ptypes, rtypes, err := parseSignature("libc::strlen(p)i")
	if err != nil {
		t.Fatalf("parseSignature: %v", err)
	}
	if provider != "libc" || name != "strlen" || ptypes != "p" || rtypes != "i" {
		t.Errorf("parseSignature = %q %q %q %q", provider, name, ptypes, rtypes)
	}
}

func TestParseSignatureEmptyProvider(t *testing.T) {
	provider, name, _, _, err := parseSignature("::helper(i)i")
	if err != nil {
		t.Fatalf("parseSignature: %v", err)
	}
	if provider != "" || name != "helper" {
		t.Errorf("parseSignature = %q %q", provider, name)
	}
}

func TestParseSignatureMalformed(t *testing.T) {
	if _, _, _, _, err := parseSignature("nosep(i)i"); err == nil {
		t.Fatalf("expected error for signature with no provider separator")
	}
	if _, _, _, _, err := parseSignature("a::b"); err == nil {
		t.Fatalf("expected error for signature with no parens")
	}
}

func TestFuncRefSignatureRoundTrip(t *testing.T) {
	f := &FuncRef{
		Provider: "libc",
		Name:     "strlen",
		Type:     Type{fn: &funcType{params: []Type{PointerType}, returns: []Type{IntegerType}}},
	}
	if got, want := f.Signature(), "libc::strlen(p)i"; got != want {
		t.Errorf("Signature() = %q, want %q", got, want)
	}
	if f.NumParams() != 1 || f.NumReturns() != 1 {
		t.Errorf("NumParams/NumReturns = %d/%d", f.NumParams(), f.NumReturns())
	}
}

func TestFuncRefIsPrivate(t *testing.T) {
	priv := &FuncRef{Provider: "test", Name: "__internal"}
	pub := &FuncRef{Provider: "test", Name: "visible"}
	if !priv.IsPrivate() {
		t.Errorf("%q should be private", priv.Name)
	}
	if pub.IsPrivate() {
		t.Errorf("%q should not be private", pub.Name)
	}
}

func TestFuncRefRegistryInternLookupRemove(t *testing.T) {
	r := newFuncRefRegistry(1, 2)
	f := &FuncRef{Provider: "libc", Name: "strlen", Type: Type{fn: &funcType{returns: []Type{IntegerType}, params: []Type{PointerType}}}, global: true}
	r.intern(f)

	got, ok := r.Lookup(f.Signature())
	if !ok || got != f {
		t.Fatalf("Lookup after intern = %v, %v", got, ok)
	}
	if len(r.All()) != 1 {
		t.Fatalf("All() = %v, want 1 entry", r.All())
	}

	r.remove(f)
	if _, ok := r.Lookup(f.Signature()); ok {
		t.Fatalf("Lookup still finds removed FuncRef")
	}
	if len(r.All()) != 0 {
		t.Fatalf("All() after remove = %v, want none", r.All())
	}
}
