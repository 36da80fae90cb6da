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

// Command i8xdump loads the Infinity Notes from an ELF object and
// prints each one: its chunk layout, decoded signature, and, if it
// registers cleanly, its disassembled bytecode.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gbenson/i8x-go/i8x"
	"github.com/gbenson/i8x-go/internal/elfnote"
)

func main() {
	verbose := flag.Bool("v", false, "log decode diagnostics to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: i8xdump [-v] <elf-file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	opts := i8x.ContextOptionsFromEnv(os.Getenv)
	if *verbose {
		opts = append(opts, i8x.WithMinSeverity(i8x.Debug), i8x.WithLogger(stderrLogger))
	}
	ctx := i8x.NewContext(opts...)

	notes, err := elfnote.Load(path)
	if err != nil {
		log.Fatalf("i8xdump: %s", err)
	}
	if len(notes) == 0 {
		fmt.Fprintf(os.Stderr, "i8xdump: %s: no Infinity Notes found\n", path)
		os.Exit(1)
	}

	for i, note := range notes {
		fmt.Printf("note %d: %s (load-id %s)\n", i, note.Source(), note.LoadID())
		for _, c := range note.Chunks() {
			fmt.Printf("  chunk type=%d version=%d size=%d\n", c.Type, c.Version, len(c.Payload))
		}

		fn, err := ctx.ImportBytecode(note)
		if err != nil {
			fmt.Printf("  decode failed: %s\n", err)
			continue
		}
		fmt.Printf("  signature: %s\n", fn.Signature())
		if code := fn.Code(); code != nil {
			fmt.Printf("  wordsize=%d maxstack=%d\n", code.Wordsize(), code.MaxStack())
			fmt.Print(code.Disassemble())
		}
	}
}

func stderrLogger(priority i8x.Severity, file string, line int, fn string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s: %s:%d: %s: "+format+"\n",
		append([]any{priority, file, line, fn}, args...)...)
}
