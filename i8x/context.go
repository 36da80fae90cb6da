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
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// Context owns everything interning and resolution need to stay
// consistent across a sequence of registrations: the Type and FuncRef
// registries, the set of registered Functions, the host's memory and
// relocation callbacks, and the logger and last-error slot every
// fallible operation reports through.
type Context struct {
	types    *TypeRegistry
	funcrefs *FuncRefRegistry

	functions []*Function

	memRead  MemoryReader
	relocate Relocator

	logger      Logger
	minSeverity Severity

	debugAlloc bool
	allocator  *allocator

	onAvailability AvailabilityFunc

	lastErr *Error
}

// ContextOption configures a Context at construction time.
type ContextOption func(*Context)

// WithLogger routes every diagnostic a Context emits through fn instead
// of discarding it.
func WithLogger(fn Logger) ContextOption {
	return func(c *Context) { c.logger = fn }
}

// WithMinSeverity suppresses diagnostics less severe than sev.
func WithMinSeverity(sev Severity) ContextOption {
	return func(c *Context) { c.minSeverity = sev }
}

// WithMemoryReader supplies the callback used to satisfy DW_OP_deref and
// I8_OP_deref_int against a running Inferior.
func WithMemoryReader(fn MemoryReader) ContextOption {
	return func(c *Context) { c.memRead = fn }
}

// WithRelocator supplies the callback used to turn a DW_OP_addr's
// link-time address into the address it occupies in a given Inferior.
func WithRelocator(fn Relocator) ContextOption {
	return func(c *Context) { c.relocate = fn }
}

// WithAvailabilityFunc registers a callback invoked once per Function
// whose effective availability changes, after a registration change's
// resolution fixpoint has converged.
func WithAvailabilityFunc(fn AvailabilityFunc) ContextOption {
	return func(c *Context) { c.onAvailability = fn }
}

// WithDebugAlloc enables the poisoning allocator that overwrites a
// dropped Note's backing bytes, to turn use-after-drop bugs into loud
// failures instead of silent corruption.
func WithDebugAlloc(enabled bool) ContextOption {
	return func(c *Context) { c.debugAlloc = enabled }
}

// NewContext builds a Context ready to import notes and register
// functions. With no options, diagnostics are discarded and memory
// reads/relocations always fail -- a Context with no host callbacks can
// still decode and validate notes, just not execute them.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		types:       newTypeRegistry(),
		funcrefs:    newFuncRefRegistry(0x5be0cd19137e2179, 0x1f83d9abfb41bd6b),
		logger:      DiscardLogger,
		minSeverity: Notice,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.debugAlloc {
		c.allocator = newAllocator()
	}
	return c
}

// ContextOptionsFromEnv builds options from I8X_LOG_PRIORITY (numeric or
// named, via ParseSeverity) and I8X_DEBUG_MEM (parsed with
// strconv.ParseBool semantics), letting a host or test binary tune a
// Context without recompiling. getenv is injected rather than calling
// os.Getenv directly so tests can supply a fake environment.
func ContextOptionsFromEnv(getenv func(string) string) []ContextOption {
	var opts []ContextOption
	if s := getenv("I8X_LOG_PRIORITY"); s != "" {
		if sev, err := ParseSeverity(s); err == nil {
			opts = append(opts, WithMinSeverity(sev))
		}
	}
	if s := getenv("I8X_DEBUG_MEM"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			opts = append(opts, WithDebugAlloc(b))
		}
	}
	return opts
}

// LastError returns the most recent *Error any operation on c produced,
// or nil if none has.
func (c *Context) LastError() *Error { return c.lastErr }

func (c *Context) setLastError(err error) {
	if e, ok := err.(*Error); ok {
		c.lastErr = e
	}
}

// internGlobalFuncRef resolves sig to the Context's one interned FuncRef
// for that signature, creating an unresolved one if this is the first
// time sig has been seen. An empty provider in sig is filled in with
// defaultProvider, so a note's Externals chunk can name a sibling
// function in its own provider without repeating its name.
func (c *Context) internGlobalFuncRef(sig, defaultProvider string) (*FuncRef, error) {
	provider, name, ptypesStr, rtypesStr, err := parseSignature(sig)
	if err != nil {
		return nil, err
	}
	if provider == "" {
		provider = defaultProvider
	}
	if err := validateProviderName(provider, name, false); err != nil {
		return nil, err
	}
	ptypes, _, err := decodeTypeListUntil(ptypesStr, 0)
	if err != nil {
		return nil, err
	}
	rtypes, _, err := decodeTypeListUntil(rtypesStr, 0)
	if err != nil {
		return nil, err
	}
	ft, err := c.types.Intern(makeFuncTypeString(ptypes, rtypes))
	if err != nil {
		return nil, err
	}
	canonical := provider + "::" + name + "(" + ptypesStr + ")" + rtypesStr
	if f, ok := c.funcrefs.Lookup(canonical); ok {
		return f, nil
	}
	f := &FuncRef{Provider: provider, Name: name, Type: ft, global: true, ctx: c}
	c.funcrefs.intern(f)
	return f, nil
}

// decodeExternals splits a note's Externals chunk payload into one
// signature string per NUL-terminated entry and interns each.
func (c *Context) decodeExternals(note *Note, chunk Chunk, defaultProvider string) ([]*FuncRef, error) {
	if chunk.Version != 1 {
		return nil, errAt(ErrUnhandled, note, chunk.Offset)
	}
	var out []*FuncRef
	for _, raw := range strings.Split(strings.TrimRight(string(chunk.Payload), "\x00"), "\x00") {
		if raw == "" {
			continue
		}
		f, err := c.internGlobalFuncRef(raw, defaultProvider)
		if err != nil {
			return nil, errAt(ErrCorrupt, note, chunk.Offset)
		}
		out = append(out, f)
	}
	return out, nil
}

// ImportBytecode decodes note's Signature, Externals, CodeInfo and
// Bytecode chunks into a newly registered Function and runs the
// resolution fixpoint to bring every FuncRef's Resolved() state up to
// date.
func (c *Context) ImportBytecode(note *Note) (*Function, error) {
	sigChunk, ok, err := note.uniqueChunk(ChunkSignature, true)
	if err != nil {
		c.setLastError(err)
		return nil, err
	}
	if sigChunk.Version != 1 {
		e := errAt(ErrUnhandled, note, sigChunk.Offset)
		c.setLastError(e)
		return nil, e
	}
	sigStr := strings.TrimRight(string(sigChunk.Payload), "\x00")
	ref, err := c.internGlobalFuncRef(sigStr, "")
	if err != nil {
		e := errAt(ErrCorrupt, note, sigChunk.Offset)
		c.setLastError(e)
		return nil, e
	}
	if ref.resolved != nil {
		e := errAt(ErrInvalid, note, sigChunk.Offset)
		c.setLastError(e)
		return nil, e
	}

	var externals []*FuncRef
	if extChunk, ok, _ := note.uniqueChunk(ChunkExternals, false); ok {
		externals, err = c.decodeExternals(note, extChunk, ref.Provider)
		if err != nil {
			c.setLastError(err.(*Error))
			return nil, err
		}
	}

	fn := &Function{ctx: c, sig: ref, kind: kindBytecode, externals: externals, note: note}
	ref.resolved = fn
	ref.kind = implBytecode

	code, err := decodeCode(c, fn, note, len(ref.Type.Params()), externals, ref.Type.Returns(), ref.Type.Params())
	if err != nil {
		ref.resolved = nil
		c.setLastError(err.(*Error))
		return nil, err
	}
	fn.code = code

	c.functions = append(c.functions, fn)
	c.recomputeResolution()
	return fn, nil
}

// ImportNative registers a host callback as the implementation of sig,
// without decoding any bytecode.
func (c *Context) ImportNative(sig string, impl NativeFunc) (*Function, error) {
	ref, err := c.internGlobalFuncRef(sig, "")
	if err != nil {
		return nil, newErr(ErrInvalidArgument, nil, err)
	}
	if ref.resolved != nil {
		return nil, newErr(ErrInvalid, nil, nil)
	}
	fn := &Function{ctx: c, sig: ref, kind: kindNative, native: impl}
	ref.resolved = fn
	ref.kind = implNative
	c.functions = append(c.functions, fn)
	c.recomputeResolution()
	return fn, nil
}

// Unregister drops fn, making its FuncRef unresolved again, and reruns
// the resolution fixpoint. If fn is the last remaining candidate for a
// FuncRef that other functions call out to, those callers become
// unavailable rather than re-resolving to a different implementation --
// this Context never guesses between two functions with the same
// signature.
func (c *Context) Unregister(fn *Function) {
	idx := slices.Index(c.functions, fn)
	if idx < 0 {
		return
	}
	c.functions = slices.Delete(c.functions, idx, idx+1)
	if fn.sig.resolved == fn {
		fn.sig.resolved = nil
	}
	c.recomputeResolution()
}

// recomputeResolution iterates fixpoint-style over every registered
// Function, updating Available() until no Function's effective
// resolution changes, then reports every flip via onAvailability.
func (c *Context) recomputeResolution() {
	prev := make([]bool, len(c.functions))
	for i, fn := range c.functions {
		prev[i], fn.available = fn.available, true
	}
	for {
		changed := false
		for _, fn := range c.functions {
			if fn.available && !fn.externalsResolved() {
				fn.available = false
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	if c.onAvailability == nil {
		return
	}
	for i, fn := range c.functions {
		if fn.available != prev[i] {
			fn.observedAvailable = true
			c.onAvailability(fn, fn.available)
		}
	}
}

// Functions returns every Function currently registered with c, in
// registration order.
func (c *Context) Functions() []*Function {
	return append([]*Function(nil), c.functions...)
}

// Lookup returns the registered Function with the given canonical
// signature, if any.
func (c *Context) Lookup(signature string) (*Function, bool) {
	ref, ok := c.funcrefs.Lookup(signature)
	if !ok || ref.resolved == nil {
		return nil, false
	}
	return ref.resolved, true
}

// Call is the entry point a host uses to run a registered Function
// against a specific Inferior.
func (c *Context) Call(fn *Function, inf Inferior, args []Value) ([]Value, error) {
	if !fn.Available() {
		e := newErr(ErrUnresolvedFunction, nil, nil)
		c.setLastError(e)
		return nil, e
	}
	xc := newExecutionContext(c, inf)
	rets, err := xc.invoke(fn, args)
	if err != nil {
		c.setLastError(err)
	}
	return rets, err
}
