package main

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/teris-io/cli"

	"n2t.dev/toolchain/pkg/jack"
	"n2t.dev/toolchain/pkg/vm"
)

var Description = strings.ReplaceAll(`
The Jack Compiler compiles programs (composed of multiple classes/files) written in
the Jack language into VM modules that can be further elaborated. The Jack language
is a higher-level OOP language tailored for use with the Hack computer architecture.
`, "\n", " ")

var JackCompiler = cli.New(Description).
	// 'AsOptional()' allows to have more than one input .jack file or a directory of them
	WithArg(cli.NewArg("inputs", "The source (.jack) files or directory to be compiled").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("emit-xml", "Also dumps the parse tree as grader-compatible XML (.xml)").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	// Collects every .jack translation unit found under the given inputs, recursing into
	// directories so a whole project can be compiled with one invocation.
	var TUs []string
	for _, input := range args {
		filepath.Walk(input, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || filepath.Ext(path) != ".jack" {
				return nil
			}
			TUs = append(TUs, path)
			return nil
		})
	}

	classes := make([]jack.Class, 0, len(TUs))
	for _, tu := range TUs {
		content, err := os.ReadFile(tu)
		if err != nil {
			fmt.Printf("ERROR: Unable to open input file: %s\n", err)
			return -1
		}

		// Parses the input file content to a concrete parse tree, then converts it
		// to the typed AST the compiler operates on.
		tree, err := jack.NewParser(content).ParseClass()
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'parsing' pass: %s\n", err)
			return -1
		}

		if _, enabled := options["emit-xml"]; enabled {
			extension := path.Ext(tu)
			xmlPath := fmt.Sprintf("%s.xml", strings.TrimSuffix(tu, extension))
			if err := os.WriteFile(xmlPath, []byte(tree.XML()), 0644); err != nil {
				fmt.Printf("ERROR: Unable to write XML output: %s\n", err)
				return -1
			}
		}

		class, err := jack.ToAST(tree)
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'conversion' pass: %s\n", err)
			return -1
		}
		classes = append(classes, class)
	}

	// Compiles every class straight to VM operations, one module per class.
	vmProgram, err := jack.CompileProgram(classes)
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'compile' pass: %s\n", err)
		return -1
	}

	moduleNames := make([]string, len(classes))
	for i, class := range classes {
		moduleNames[i] = class.Name
	}

	// Now, instantiates a code generator for the Vm (compiled) program
	codegen := vm.NewCodeGenerator(vmProgram)
	// Iterates over each instruction and spits out the relative textual representation.
	compiled, err := codegen.Generate(moduleNames)
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'codegen' pass: %s\n", err)
		return -1
	}

	for i, tu := range TUs {
		module, ok := compiled[moduleNames[i]]
		if !ok {
			fmt.Printf("ERROR: Unable to compile module for class file '%s'\n", tu)
			return -1
		}

		extension := path.Ext(tu)
		output, err := os.Create(fmt.Sprintf("%s.vm", strings.TrimSuffix(tu, extension)))
		if err != nil {
			fmt.Printf("ERROR: Unable to open output file: %s\n", err)
			return -1
		}
		defer output.Close()

		for _, line := range module {
			output.Write([]byte(fmt.Sprintf("%s\n", line)))
		}
	}

	return 0
}

func main() { os.Exit(JackCompiler.Run(os.Args, os.Stdout)) }
