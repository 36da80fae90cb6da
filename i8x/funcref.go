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

	"github.com/dchest/siphash"
	"golang.org/x/exp/maps"
)

// implKind says how a FuncRef's body, if resolved, is provided.
type implKind int

const (
	implUnresolved implKind = iota
	implBytecode
	implNative
)

// FuncRef is a signature handle: "provider::name(ptypes)rtypes". It may
// or may not currently resolve to a registered Function.
type FuncRef struct {
	Provider string
	Name     string
	Type     Type // always a function Type

	global bool // true iff Provider is non-empty

	resolved *Function
	kind     implKind

	ctx *Context // owning Context
}

// IsPrivate reports whether the function's name begins with "__"; only
// the name half of the signature is considered, not the provider.
func (f *FuncRef) IsPrivate() bool { return strings.HasPrefix(f.Name, "__") }

// IsGlobal reports whether f has a non-empty provider and is therefore
// interned in its Context's global FuncRef table.
func (f *FuncRef) IsGlobal() bool { return f.global }

// Signature returns the canonical "provider::name(ptypes)rtypes" string.
func (f *FuncRef) Signature() string {
	return f.Provider + "::" + f.Name + f.sigSuffix()
}

func (f *FuncRef) String() string { return f.Signature() }

func (f *FuncRef) sigSuffix() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range f.Type.Params() {
		b.WriteString(p.Encode())
	}
	b.WriteByte(')')
	for _, r := range f.Type.Returns() {
		b.WriteString(r.Encode())
	}
	return b.String()
}

// NumParams and NumReturns report the function type's arity.
func (f *FuncRef) NumParams() int  { return len(f.Type.Params()) }
func (f *FuncRef) NumReturns() int { return len(f.Type.Returns()) }

// Resolved reports whether f currently resolves to a registered Function
// whose own externals are, transitively, all resolved.
func (f *FuncRef) Resolved() bool { return f.resolved != nil && f.resolved.available }

// Function returns the Function f currently resolves to, or nil.
func (f *FuncRef) Function() *Function { return f.resolved }

func isIdentStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func isIdentByte(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}

// parseSignature splits "provider::name(ptypes)rtypes" into its parts.
func parseSignature(sig string) (provider, name, ptypes, rtypes string, err error) {
	sep := strings.Index(sig, "::")
	if sep < 0 {
		return "", "", "", "", fmt.Errorf("i8x: signature %q has no provider separator", sig)
	}
	provider = sig[:sep]
	rest := sig[sep+2:]
	open := strings.IndexByte(rest, '(')
	close := strings.IndexByte(rest, ')')
	if open < 0 || close < open {
		return "", "", "", "", fmt.Errorf("i8x: malformed signature %q", sig)
	}
	name = rest[:open]
	ptypes = rest[open+1 : close]
	rtypes = rest[close+1:]
	return provider, name, ptypes, rtypes, nil
}

func validateProviderName(provider, name string, allowEmptyProvider bool) error {
	if provider == "" {
		if !allowEmptyProvider {
			return fmt.Errorf("i8x: empty provider in global signature")
		}
	} else if !validIdent(provider) {
		return fmt.Errorf("i8x: invalid provider %q", provider)
	}
	if !validIdent(name) {
		return fmt.Errorf("i8x: invalid function name %q", name)
	}
	return nil
}

// FuncRefRegistry interns global FuncRefs (non-empty provider) per Context
// by their exact canonical signature string. Lookup hashes the signature
// with SipHash and scans only the matching bucket, not every global;
// bySig mirrors the same entries keyed directly by signature so All() can
// return them without flattening the bucket map.
type FuncRefRegistry struct {
	seed0, seed1 uint64
	buckets      map[uint64][]*FuncRef
	bySig        map[string]*FuncRef
}

func newFuncRefRegistry(seed0, seed1 uint64) *FuncRefRegistry {
	return &FuncRefRegistry{
		seed0:   seed0,
		seed1:   seed1,
		buckets: make(map[uint64][]*FuncRef),
		bySig:   make(map[string]*FuncRef),
	}
}

func (r *FuncRefRegistry) hash(sig string) uint64 {
	return siphash.Hash(r.seed0, r.seed1, []byte(sig))
}

// Lookup returns the interned FuncRef with the given canonical signature,
// if any.
func (r *FuncRefRegistry) Lookup(sig string) (*FuncRef, bool) {
	h := r.hash(sig)
	for _, f := range r.buckets[h] {
		if f.Signature() == sig {
			return f, true
		}
	}
	return nil, false
}

// intern records f (which must be global) under its signature. It is an
// error to intern two FuncRefs with the same signature.
func (r *FuncRefRegistry) intern(f *FuncRef) {
	sig := f.Signature()
	h := r.hash(sig)
	r.buckets[h] = append(r.buckets[h], f)
	r.bySig[sig] = f
}

// remove detaches f from the registry, so that Lookup and All no longer
// return it.
func (r *FuncRefRegistry) remove(f *FuncRef) {
	sig := f.Signature()
	h := r.hash(sig)
	bucket := r.buckets[h]
	for i, c := range bucket {
		if c == f {
			r.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	delete(r.bySig, sig)
}

// All returns every currently-interned global FuncRef, in no particular
// order.
func (r *FuncRefRegistry) All() []*FuncRef {
	return maps.Values(r.bySig)
}
