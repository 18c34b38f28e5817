package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"n86c/pkg/compiler"
	"n86c/pkg/objfile"

	"github.com/teris-io/cli"
)

var Description = strings.ReplaceAll(`
n86c compiles programs written in a small C-like systems language into 8086
object files. A typed AST pass resolves scopes and variable addresses, a
code generator emits 8086 instructions, and an in-process two-pass
assembler turns those into relocatable segments with global and external
reference lists.
`, "\n", " ")

var N86Compiler = cli.New(Description).
	// 'AsOptional()' allows more than one input .n86 file, and directories
	// are walked for every .n86 file they contain.
	WithArg(cli.NewArg("inputs", "The source (.n86) files or directories to compile").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("keep-going", "Keep compiling remaining inputs after one fails").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	_, keepGoing := options["keep-going"]

	var TUs []string
	for _, input := range args {
		filepath.Walk(input, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || filepath.Ext(path) != ".n86" {
				return nil // We recurse on dirs and ignore other filetypes
			}
			TUs = append(TUs, path)
			return nil
		})
	}

	exit := 0
	for _, tu := range TUs {
		if ok := compileOne(tu); !ok {
			exit = -1
			if !keepGoing {
				return exit
			}
		}
	}
	return exit
}

// compileOne compiles a single translation unit and, on success, writes its
// sibling .obj and .asm artifacts next to the source file.
func compileOne(tu string) bool {
	content, err := os.ReadFile(tu)
	if err != nil {
		fmt.Printf("ERROR: Unable to open input file: %s\n", err)
		return false
	}

	sink := objfile.New()
	diags, err := compiler.Compile(content, sink)
	for _, d := range diags.Items() {
		fmt.Printf("%s: %s: %s: %s\n", tu, d.Pos, d.Severity, d.Message)
	}
	if err != nil {
		fmt.Printf("ERROR: Unable to compile '%s': %s\n", tu, err)
		return false
	}
	if diags.HasError() {
		fmt.Printf("ERROR: '%s' has %d diagnostic(s), no object written\n", tu, len(diags.Items()))
		return false
	}

	ext := filepath.Ext(tu)
	base := strings.TrimSuffix(tu, ext)

	if err := os.WriteFile(base+".obj", objfile.Encode(sink), 0644); err != nil {
		fmt.Printf("ERROR: Unable to write object file: %s\n", err)
		return false
	}
	if err := os.WriteFile(base+".asm", []byte(dumpSegments(sink)), 0644); err != nil {
		fmt.Printf("ERROR: Unable to write asm dump: %s\n", err)
		return false
	}
	return true
}

// dumpSegments renders obj's segments as an annotated hex listing: one
// label comment per recorded offset, then the segment's raw bytes. This
// stands in for a real 8086 disassembler (out of scope, spec.md §1's
// Non-goals), giving the CLI a human-readable intermediate artifact without
// one.
func dumpSegments(obj *objfile.Object) string {
	var b strings.Builder
	for _, seg := range obj.Segments() {
		fmt.Fprintf(&b, "segment %s\n", seg.Name)
		for label, offset := range seg.Labels {
			fmt.Fprintf(&b, "  ; %s @ +%d\n", label, offset)
		}
		fmt.Fprintf(&b, "  db % x\n", seg.Bytes())
	}
	for _, g := range obj.Globals {
		fmt.Fprintf(&b, "global %s %s+%d\n", g.Name, g.Segment, g.Offset)
	}
	for _, e := range obj.Externs {
		fmt.Fprintf(&b, "extern %s\n", e.Name)
	}
	return b.String()
}

func main() { os.Exit(N86Compiler.Run(os.Args, os.Stdout)) }
