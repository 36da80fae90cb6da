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
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
)

// CoreKind is the kind of a core (non-function) Type.
type CoreKind byte

const (
	KindInteger  CoreKind = 'i'
	KindPointer  CoreKind = 'p'
	KindOpaque   CoreKind = 'o'
	KindIntOrPtr CoreKind = 'x' // validator-internal only; never appears on the wire
)

// Type is either a core type (integer, pointer, opaque, or the
// validator-internal int-or-ptr) or a function type `F rtypes(ptypes)`.
// Function types are interned per-Context, so two Types built from the
// same encoded string within one Context compare equal by pointer.
type Type struct {
	core CoreKind // zero if this is a function type
	fn   *funcType
}

type funcType struct {
	params  []Type
	returns []Type
	encoded string
}

// IntegerType, PointerType and OpaqueType are the three core types, and
// intOrPtr the validator-internal one; none need interning (they carry
// no Context-owned state).
var (
	IntegerType = Type{core: KindInteger}
	PointerType = Type{core: KindPointer}
	OpaqueType  = Type{core: KindOpaque}
	intOrPtr    = Type{core: KindIntOrPtr}
)

// IsFunc reports whether t is a function type.
func (t Type) IsFunc() bool { return t.fn != nil }

// Params returns a function type's parameter types, in declaration order
// (first parameter first).
func (t Type) Params() []Type {
	if t.fn == nil {
		return nil
	}
	return t.fn.params
}

// Returns returns a function type's return types.
func (t Type) Returns() []Type {
	if t.fn == nil {
		return nil
	}
	return t.fn.returns
}

// Encode renders t back into its canonical wire encoding.
func (t Type) Encode() string {
	if t.fn != nil {
		return t.fn.encoded
	}
	return string(t.core)
}

func (t Type) String() string { return t.Encode() }

// Equal reports whether t and u describe exactly the same type, without
// applying the validator's int-or-ptr compatibility rule.
func (t Type) Equal(u Type) bool {
	if t.fn != nil || u.fn != nil {
		return t.fn == u.fn
	}
	return t.core == u.core
}

// Compatible implements the validator's type-matching rule: two types
// match if they are identical, or if one is int-or-ptr and the other is
// integer or pointer.
func (t Type) Compatible(u Type) bool {
	if t.Equal(u) {
		return true
	}
	if t.fn != nil || u.fn != nil {
		return false
	}
	isIntOrPtr := func(k CoreKind) bool { return k == KindInteger || k == KindPointer }
	if t.core == KindIntOrPtr && isIntOrPtr(u.core) {
		return true
	}
	if u.core == KindIntOrPtr && isIntOrPtr(t.core) {
		return true
	}
	return false
}

// decodeType decodes one Type from an encoded ASCII string, returning the
// unconsumed remainder. It is used both for a single type and, via
// decodeTypeListUntil, for a ptypes/rtypes sequence.
func decodeType(s string) (Type, string, error) {
	if s == "" {
		return Type{}, s, fmt.Errorf("i8x: empty type string")
	}
	switch CoreKind(s[0]) {
	case KindInteger:
		return IntegerType, s[1:], nil
	case KindPointer:
		return PointerType, s[1:], nil
	case KindOpaque:
		return OpaqueType, s[1:], nil
	case KindIntOrPtr:
		return intOrPtr, s[1:], nil
	case 'F':
		rest := s[1:]
		returns, rest, err := decodeTypeListUntil(rest, '(')
		if err != nil {
			return Type{}, s, err
		}
		if len(rest) == 0 || rest[0] != '(' {
			return Type{}, s, fmt.Errorf("i8x: malformed function type %q", s)
		}
		rest = rest[1:]
		params, rest, err := decodeTypeListUntil(rest, ')')
		if err != nil {
			return Type{}, s, err
		}
		if len(rest) == 0 || rest[0] != ')' {
			return Type{}, s, fmt.Errorf("i8x: malformed function type %q", s)
		}
		rest = rest[1:]
		consumed := len(s) - len(rest)
		return Type{fn: &funcType{params: params, returns: returns, encoded: s[:consumed]}}, rest, nil
	default:
		return Type{}, s, fmt.Errorf("i8x: unknown type character %q", s[0])
	}
}

// decodeTypeListUntil decodes Types from s until the next byte is stop.
func decodeTypeListUntil(s string, stop byte) ([]Type, string, error) {
	var out []Type
	for len(s) > 0 && s[0] != stop {
		t, rest, err := decodeType(s)
		if err != nil {
			return nil, s, err
		}
		out = append(out, t)
		s = rest
	}
	return out, s, nil
}

// DecodeType decodes a single, fully-consuming type string, e.g. "i" or
// "Fi(po)".
func DecodeType(s string) (Type, error) {
	t, rest, err := decodeType(s)
	if err != nil {
		return Type{}, err
	}
	if rest != "" {
		return Type{}, fmt.Errorf("i8x: trailing bytes %q after type %q", rest, s)
	}
	return t, nil
}

// TypeRegistry interns function Types for one Context by their canonical
// encoded form, so two references to "Fi(po)" share one *funcType.
type TypeRegistry struct {
	byEncoding map[string]Type
}

func newTypeRegistry() *TypeRegistry {
	return &TypeRegistry{byEncoding: make(map[string]Type)}
}

// Intern decodes s and returns the Context-interned Type for it. Core
// types are returned as-is since they carry no owned state.
func (r *TypeRegistry) Intern(s string) (Type, error) {
	if len(s) == 1 {
		return DecodeType(s)
	}
	if t, ok := r.byEncoding[s]; ok {
		return t, nil
	}
	t, err := DecodeType(s)
	if err != nil {
		return Type{}, err
	}
	r.byEncoding[s] = t
	return t, nil
}

// Encodings returns the canonical encoding of every function Type
// interned so far, in no particular order.
func (r *TypeRegistry) Encodings() []string {
	return maps.Keys(r.byEncoding)
}

// makeFuncTypeString builds the canonical "F rtypes(ptypes)" encoding
// from parameter and return type slices, for building a function-type
// string before interning it.
func makeFuncTypeString(params, returns []Type) string {
	var b strings.Builder
	b.WriteByte('F')
	for _, t := range returns {
		b.WriteString(t.Encode())
	}
	b.WriteByte('(')
	for _, t := range params {
		b.WriteString(t.Encode())
	}
	b.WriteByte(')')
	return b.String()
}
