// Command positron compiles and runs a Positron source file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/devinarena/positron/compiler"
	"github.com/devinarena/positron/value"
	"github.com/devinarena/positron/vm"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: positron [-d] [-h] <path>")
	flag.PrintDefaults()
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("positron", flag.ContinueOnError)
	fs.SetOutput(stderr)
	debug := fs.Bool("d", false, "disassemble the compiled script and trace execution")
	help := fs.Bool("h", false, "show this help message")
	fs.Usage = usage

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		usage()
		return 0
	}
	if fs.NArg() != 1 {
		usage()
		return 2
	}
	path := fs.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "failed to read %q: %v\n", path, err)
		return 1
	}

	hostBuiltins := builtins()

	heap := value.NewHeap()
	cc := compiler.New(string(source), heap)
	for _, b := range hostBuiltins {
		cc.RegisterKnownGlobal(b.Name)
	}
	fnRef, errs := cc.CompileScript(path)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(stderr, e.Error())
		}
		return 1
	}

	fn := heap.Get(fnRef).Fn
	if *debug {
		fmt.Fprint(stdout, fn.Block.DisassembleAll(heap, path))
	}

	machine := vm.New(heap, stdout, hostBuiltins)
	machine.Debug = *debug

	code, err := machine.Run(fn)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return code
}

// builtins registers the small set of host functions exercised end-to-end
// by the calling convention; per spec.md section 1 the standard library's
// actual contents are out of scope, so these are stand-ins (len, clock) as
// noted in DESIGN.md.
func builtins() []value.HostBuiltin {
	return []value.HostBuiltin{
		{Name: "len", Arity: 1, Fn: builtinLen},
		{Name: "clock", Arity: 0, Fn: builtinClock},
	}
}
