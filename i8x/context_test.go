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

package i8x_test

import (
	"testing"

	"github.com/gbenson/i8x-go/i8x"
	"github.com/gbenson/i8x-go/i8x/i8xtest"
)

// buildFactorial assembles a recursive factorial(i)i: the textbook
// case/base-and-recurse shape that exercises Call, the resolution
// fixpoint (it calls itself) and validator merging of two paths that
// both leave exactly one Integer on the stack.
func buildFactorial() []byte {
	body := i8xtest.New().
		Dup().Lit(1).Le(). // [n, n<=1]
		Bra(12).           // pop cond; true -> BASE (offset 18)
		Dup().Lit(1).Minus().
		LoadExternal(0).
		Call().
		Mul().
		Skip(2). // jump over BASE to the synthetic return
		Drop().
		Lit(1)
	return i8xtest.Note("test::fact(i)i", []string{"::fact(i)i"}, 64, 4, body)
}

func TestFactorialRecursive(t *testing.T) {
	note, err := i8x.ParseNote(buildFactorial(), "fact_test", 0)
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}

	ctx := i8x.NewContext()
	fn, err := ctx.ImportBytecode(note)
	if err != nil {
		t.Fatalf("ImportBytecode: %v", err)
	}
	if !fn.Available() {
		t.Fatalf("factorial function did not resolve against itself")
	}

	cases := []struct {
		n, want int64
	}{
		{0, 1}, {1, 1}, {2, 2}, {3, 6}, {5, 120},
	}
	for _, c := range cases {
		results, err := ctx.Call(fn, nil, []i8x.Value{i8x.IntValue(c.n)})
		if err != nil {
			t.Fatalf("Call(%d): %v", c.n, err)
		}
		if len(results) != 1 || results[0].Int() != c.want {
			t.Errorf("fact(%d) = %v, want %d", c.n, results, c.want)
		}
	}
}

func TestImportNativeResolvesFuncRef(t *testing.T) {
	ctx := i8x.NewContext()
	called := false
	fn, err := ctx.ImportNative("test::triple(i)i", func(xc *i8x.ExecutionContext, inf i8x.Inferior, args, rets []i8x.Value) error {
		called = true
		rets[0] = i8x.IntValue(args[0].Int() * 3)
		return nil
	})
	if err != nil {
		t.Fatalf("ImportNative: %v", err)
	}
	if !fn.Available() {
		t.Fatalf("native function with no externals should resolve immediately")
	}

	results, err := ctx.Call(fn, nil, []i8x.Value{i8x.IntValue(7)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !called || results[0].Int() != 21 {
		t.Fatalf("Call() = %v, called=%v", results, called)
	}
}

func TestResolutionFixpointTracksRegistrationOrder(t *testing.T) {
	flips := map[string][]bool{}
	ctx := i8x.NewContext(i8x.WithAvailabilityFunc(func(fn *i8x.Function, available bool) {
		sig := fn.Signature().Signature()
		flips[sig] = append(flips[sig], available)
	}))

	body := i8xtest.New().Drop().Lit(1)
	note, err := i8x.ParseNote(i8xtest.Note("test::needsHelper(i)i", []string{"test::helper(i)i"}, 64, 2, body), "dep_test", 0)
	if err != nil {
		t.Fatalf("ParseNote: %v", err)
	}
	fn, err := ctx.ImportBytecode(note)
	if err != nil {
		t.Fatalf("ImportBytecode: %v", err)
	}
	if fn.Available() {
		t.Fatalf("needsHelper should not be available before helper is registered")
	}

	helperFn, err := ctx.ImportNative("test::helper(i)i", func(xc *i8x.ExecutionContext, inf i8x.Inferior, args, rets []i8x.Value) error {
		rets[0] = args[0]
		return nil
	})
	if err != nil {
		t.Fatalf("ImportNative: %v", err)
	}
	if !fn.Available() {
		t.Fatalf("needsHelper should become available once helper resolves")
	}

	ctx.Unregister(helperFn)
	if fn.Available() {
		t.Fatalf("needsHelper should become unavailable once helper is unregistered")
	}
	if len(flips["test::needsHelper(i)i"]) < 2 {
		t.Fatalf("expected at least two availability callbacks, got %v", flips)
	}
}
