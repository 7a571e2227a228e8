// Command mussel is the entry point for the Mussel bytecode virtual
// machine.
//
// It replaces a prior hand-rolled os.Args switch with a small
// github.com/spf13/cobra CLI. Building bytecode from source text is
// out of scope for the core, so this command only ever constructs
// bytecode.Bytecode values programmatically, via the sample builders
// in pkg/samples — a builder standing in for a parser pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kristofer/mussel/pkg/bytecode"
	"github.com/kristofer/mussel/pkg/object"
	"github.com/kristofer/mussel/pkg/samples"
	"github.com/kristofer/mussel/pkg/vm"
)

// version is the mussel CLI's own version, independent of any
// bytecode format version.
const version = "0.1.0"

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var trace bool

	root := &cobra.Command{
		Use:   "mussel",
		Short: "A stack-based bytecode virtual machine",
	}
	root.PersistentFlags().BoolVar(&trace, "trace", false, "log every dispatched opcode to stderr")

	root.AddCommand(newRunCommand(&trace))
	root.AddCommand(newDisassembleCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newRunCommand(trace *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "run [sample]",
		Short: "Build and execute one of the worked sample programs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bc, ok := samples.Build(samples.Name(args[0]))
			if !ok {
				return fmt.Errorf("unknown sample %q (available: %s)", args[0], availableSamples())
			}

			objects := object.NewManager()
			defer objects.Finalize()

			opts := []vm.Option{vm.WithStdout(cmd.OutOrStdout())}
			if *trace {
				logger := zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger()
				opts = append(opts, vm.WithLogger(logger))
			}

			machine := vm.New(objects, opts...)
			if err := machine.Run(&bc); err != nil {
				return fmt.Errorf("runtime error: %w", err)
			}
			return nil
		},
	}
}

func newDisassembleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disassemble [sample]",
		Short: "Print a human-readable listing of a sample's bytecode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bc, ok := samples.Build(samples.Name(args[0]))
			if !ok {
				return fmt.Errorf("unknown sample %q (available: %s)", args[0], availableSamples())
			}
			printDisassembly(cmd.OutOrStdout(), &bc)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mussel CLI version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "mussel version %s\n", version)
			return nil
		},
	}
}

func availableSamples() string {
	s := ""
	for i, name := range samples.All {
		if i > 0 {
			s += ", "
		}
		s += string(name)
	}
	return s
}

// printDisassembly lists constants and opcodes without consulting a
// bytecode.Reader's dispatch semantics — it walks the stream purely
// for display and never faults, unlike the interpreter itself. An
// invalid opcode byte ends the listing with an <invalid> line. An
// operand cut short by the end of the stream is printed as 0, and the
// listing does not stop there: any byte left over is listed as an
// opcode.
func printDisassembly(w interface{ Write([]byte) (int, error) }, bc *bytecode.Bytecode) {
	fmt.Fprintln(w, "Constants:")
	if len(bc.Constants) == 0 {
		fmt.Fprintln(w, "  (empty)")
	}
	for i, c := range bc.Constants {
		if c.IsNumber() {
			fmt.Fprintf(w, "  [%d] number %g\n", i, c.Num())
		} else {
			fmt.Fprintf(w, "  [%d] string %q\n", i, c.Str())
		}
	}

	fmt.Fprintln(w, "\nCode:")
	r := bytecode.NewReader(bc)
	for !r.AtEnd() {
		pos := r.Position()
		op, err := r.FetchOpcode()
		if err != nil {
			fmt.Fprintf(w, "  %4d: <invalid>\n", pos)
			return
		}
		fmt.Fprintf(w, "  %4d: %s", pos, op)
		switch op {
		case bytecode.OpConstant:
			idx, _ := r.FetchU16()
			fmt.Fprintf(w, " %d", idx)
		case bytecode.OpFun, bytecode.OpClosure:
			p, _ := r.FetchU16()
			a, _ := r.FetchU8()
			fmt.Fprintf(w, " pos=%d arity=%d", p, a)
		case bytecode.OpGetGlobal, bytecode.OpSetGlobal, bytecode.OpGetLocal, bytecode.OpSetLocal,
			bytecode.OpCapture, bytecode.OpGetUpvalue, bytecode.OpSetUpvalue:
			off, _ := r.FetchU8()
			fmt.Fprintf(w, " %d", off)
		case bytecode.OpJumpIfFalse, bytecode.OpJump:
			off, _ := r.FetchI16()
			fmt.Fprintf(w, " %d", off)
		case bytecode.OpCall:
			p, _ := r.FetchU16()
			a, _ := r.FetchU8()
			fmt.Fprintf(w, " pos=%d arity=%d", p, a)
		}
		fmt.Fprintln(w)
	}
}
