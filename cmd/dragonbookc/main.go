// Command dragonbookc demonstrates the dragonbook pipeline end to end: it
// builds one of the worked scenarios from spec.md §8 as IR, JITs it, and
// either runs it or dumps the machine code it produced.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dragonbook/dragonbook/internal/scenarios"
	"github.com/dragonbook/dragonbook/ir"
	"github.com/dragonbook/dragonbook/jit"
	"github.com/dragonbook/dragonbook/mc"
	"github.com/dragonbook/dragonbook/pass"
)

var verbose bool

func buildAndSelect(name string) (*mc.Function, scenarios.Kind, error) {
	ctx := ir.NewContext()
	fn, kind, err := scenarios.Build(ctx, name)
	if err != nil {
		return nil, 0, fmt.Errorf("building scenario %q: %w", name, err)
	}
	pass.PromoteStackToRegister(fn)

	sel := mc.NewSelector(mc.HostConvention)
	mfn, err := sel.Select(fn)
	if err != nil {
		return nil, 0, fmt.Errorf("selecting scenario %q: %w", name, err)
	}
	alloc := mc.NewRegisterAllocator(mc.HostConvention)
	if err := alloc.Allocate(mfn); err != nil {
		return nil, 0, fmt.Errorf("allocating registers for %q: %w", name, err)
	}
	return mfn, kind, nil
}

func runScenario(name string, args []int64) error {
	ctx := ir.NewContext()
	defer ctx.Close()

	fn, kind, err := scenarios.Build(ctx, name)
	if err != nil {
		return err
	}
	pass.PromoteStackToRegister(fn)

	rt := jit.NewRuntime()
	if err := rt.Add(ctx, mc.HostConvention); err != nil {
		return fmt.Errorf("jit: %w", err)
	}
	defer rt.Close()

	addr, ok := rt.GetPointerToFunction(fn.Name)
	if !ok {
		return fmt.Errorf("dragonbookc: %q was not compiled into the runtime", fn.Name)
	}

	switch kind {
	case scenarios.KindFloat:
		fargs := make([]float64, len(args))
		for i, a := range args {
			fargs[i] = float64(a)
		}
		result, err := jit.CallFloatFunction(addr, fargs...)
		if err != nil {
			return err
		}
		fmt.Printf("%s(%v) = %v\n", name, args, result)
	case scenarios.KindFloatArgsIntReturn:
		if len(args) != 2 {
			return fmt.Errorf("%s takes exactly 2 arguments", name)
		}
		result, err := jit.CallFloatArgsIntReturn(addr, float64(args[0]), float64(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("%s(%v) = %v\n", name, args, result)
	default:
		result, err := jit.CallIntFunction(addr, args...)
		if err != nil {
			return err
		}
		fmt.Printf("%s(%v) = %v\n", name, args, result)
	}
	return nil
}

func dumpScenario(name string) error {
	mfn, _, err := buildAndSelect(name)
	if err != nil {
		return err
	}

	holder := mc.NewCodeHolder()
	holder.AddFunction(mfn)
	code, _, err := holder.Relocate(0, 0, func(string) (uintptr, bool) { return 0, false })
	if err != nil {
		return fmt.Errorf("relocating %q: %w", name, err)
	}

	fmt.Printf("function %s: %d bytes\n", name, len(code))
	fmt.Println(hex.EncodeToString(code))
	if verbose {
		for _, bb := range mfn.AllBlocks() {
			fmt.Printf("  block %s @ +%d\n", bb.Name, bb.Offset)
			for _, inst := range bb.Insts {
				fmt.Printf("    %s\n", inst.String())
			}
		}
	}
	return nil
}

func main() {
	root := &cobra.Command{
		Use:   "dragonbookc",
		Short: "A JIT compiler pipeline demonstrator",
		Long:  "dragonbookc builds, JITs and runs the worked scenarios from the dragonbook IR/codegen pipeline.",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	runCmd := &cobra.Command{
		Use:   "run <scenario> [args...]",
		Short: "JIT a scenario and invoke it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			name := cliArgs[0]
			var args []int64
			for _, a := range cliArgs[1:] {
				var v int64
				if _, err := fmt.Sscanf(a, "%d", &v); err != nil {
					return fmt.Errorf("argument %q is not an integer: %w", a, err)
				}
				args = append(args, v)
			}
			return runScenario(name, args)
		},
	}

	asmCmd := &cobra.Command{
		Use:   "asm <scenario>",
		Short: "Dump a scenario's emitted machine code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			return dumpScenario(cliArgs[0])
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Run: func(cmd *cobra.Command, cliArgs []string) {
			fmt.Println(strings.Join(scenarios.Names, "\n"))
		},
	}

	root.AddCommand(runCmd, asmCmd, listCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
