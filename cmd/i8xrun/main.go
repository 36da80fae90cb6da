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

// Command i8xrun loads every Infinity Note from an ELF object, registers
// them all, then calls one named function with an argument vector read
// from a YAML file and prints its results.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/gbenson/i8x-go/i8x"
	"github.com/gbenson/i8x-go/internal/elfnote"
)

// argFile is the shape of the --args YAML document: a flat list of
// typed scalars, one per parameter, in declaration order.
type argFile struct {
	Args []argSpec `json:"args"`
}

type argSpec struct {
	Int  *int64  `json:"int,omitempty"`
	Uint *uint64 `json:"uint,omitempty"`
	Ptr  *uint64 `json:"ptr,omitempty"`
}

func (a argSpec) toValue() (i8x.Value, error) {
	switch {
	case a.Int != nil:
		return i8x.IntValue(*a.Int), nil
	case a.Uint != nil:
		return i8x.UintValue(*a.Uint), nil
	case a.Ptr != nil:
		return i8x.PtrValue(*a.Ptr), nil
	default:
		return i8x.Value{}, fmt.Errorf("argument has no int/uint/ptr field set")
	}
}

func main() {
	sig := flag.String("func", "", "signature of the function to call, e.g. libc::strlen(p)i")
	argsPath := flag.String("args", "", "path to a YAML file describing the argument vector")
	flag.Parse()

	if flag.NArg() != 1 || *sig == "" {
		fmt.Fprintln(os.Stderr, "usage: i8xrun -func=<signature> [-args=<file.yaml>] <elf-file>")
		os.Exit(2)
	}

	ctx := i8x.NewContext(i8x.ContextOptionsFromEnv(os.Getenv)...)

	notes, err := elfnote.Load(flag.Arg(0))
	if err != nil {
		log.Fatalf("i8xrun: %s", err)
	}
	for _, note := range notes {
		if _, err := ctx.ImportBytecode(note); err != nil {
			log.Fatalf("i8xrun: %s: %s", note.Source(), err)
		}
	}

	fn, ok := ctx.Lookup(*sig)
	if !ok {
		log.Fatalf("i8xrun: no registered function matches %q", *sig)
	}
	if !fn.Available() {
		log.Fatalf("i8xrun: %q is registered but not all of its externals resolve", *sig)
	}

	args, err := loadArgs(*argsPath)
	if err != nil {
		log.Fatalf("i8xrun: %s", err)
	}
	if len(args) != fn.Signature().NumParams() {
		log.Fatalf("i8xrun: %q takes %d parameters, got %d", *sig, fn.Signature().NumParams(), len(args))
	}

	results, err := ctx.Call(fn, nil, args)
	if err != nil {
		log.Fatalf("i8xrun: call failed: %s", err)
	}
	for i, r := range results {
		fmt.Printf("result[%d] = %d (0x%x)\n", i, r.Int(), r.Uint())
	}
}

func loadArgs(path string) ([]i8x.Value, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f argFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	out := make([]i8x.Value, len(f.Args))
	for i, a := range f.Args {
		v, err := a.toValue()
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", path, i, err)
		}
		out[i] = v
	}
	return out, nil
}
