/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cloudwego/regreclaim"
	"github.com/cloudwego/regreclaim/internal/cfg"
	"github.com/cloudwego/regreclaim/internal/fuzz"
	"github.com/cloudwego/regreclaim/internal/kfile"
	"github.com/cloudwego/regreclaim/internal/opts"
	"github.com/cloudwego/regreclaim/internal/ra"
	"github.com/cloudwego/regreclaim/internal/sim"
	"github.com/cloudwego/regreclaim/ir"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var dumper = &spew.ConfigState{Indent: " ", DisableMethods: true}

// flags shared by every command
type globalFlags struct {
	verbose bool
	debug   bool
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "regreclaim:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer, errOut io.Writer) *cobra.Command {
	gf := new(globalFlags)
	root := &cobra.Command{
		Use:           "regreclaim",
		Short:         "regreclaim runs the post-allocation register reclamation passes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().BoolVarP(&gf.verbose, "verbose", "v", false, "log what the passes do")
	root.PersistentFlags().BoolVar(&gf.debug, "debug", opts.Debug, "verify the kernel after every pass and panic on failed assertions")
	root.AddCommand(newRunCmd(gf, out, errOut))
	root.AddCommand(newFuzzCmd(gf, out, errOut))
	root.AddCommand(newDrawCmd(out))
	return root
}

func (gf *globalFlags) options(errOut io.Writer) []regreclaim.Option {
	ret := []regreclaim.Option{regreclaim.WithDebug(gf.debug)}
	if gf.verbose {
		ret = append(ret, regreclaim.WithLogger(slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}
	return ret
}

func loadKernel(path string) (*ir.Kernel, *kfile.File, error) {
	f, err := kfile.Open(path)
	if err != nil {
		return nil, nil, err
	}
	k, err := f.Kernel()
	if err != nil {
		return nil, nil, err
	}
	return k, f, nil
}

func newRunCmd(gf *globalFlags, out io.Writer, errOut io.Writer) *cobra.Command {
	var (
		before    bool
		dump      bool
		flow      bool
		noAcc     bool
		noSpill   bool
		noCleanup bool
	)
	cmd := &cobra.Command{
		Use:   "run <kernel.yaml>",
		Short: "run the passes over a kernel description and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, f, err := loadKernel(args[0])
			if err != nil {
				return err
			}

			/* assemble the options */
			o := append(gf.options(errOut), f.Target.Apply)
			if flow {
				o = append(o, regreclaim.WithFlowInfo(cfg.Build(k)))
			}
			if noAcc {
				o = append(o, regreclaim.WithoutAccSub())
			}
			if noSpill {
				o = append(o, regreclaim.WithoutSpillCode())
			}
			if noCleanup {
				o = append(o, regreclaim.WithoutSpillCleanup())
			}

			/* run the pipeline */
			if before {
				fmt.Fprintf(out, "%s\n\n", k)
			}
			st, err := regreclaim.Run(k, o...)
			if err != nil {
				return err
			}

			/* print the result */
			fmt.Fprintf(out, "%s\n\n%s\n", k, st)
			if dump {
				dumper.Fdump(out, st)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&before, "before", false, "print the kernel before the passes")
	cmd.Flags().BoolVar(&dump, "dump", false, "dump the statistics structure")
	cmd.Flags().BoolVar(&flow, "flow", false, "analyze the control flow graph to skip provably dead flag fills")
	cmd.Flags().BoolVar(&noAcc, "no-acc", false, "disable accumulator substitution")
	cmd.Flags().BoolVar(&noSpill, "no-spill", false, "disable spill code synthesis")
	cmd.Flags().BoolVar(&noCleanup, "no-cleanup", false, "disable the flag spill cleanup")
	return cmd
}

var generators = map[string]func(int64, *opts.Options) *ir.Kernel{
	"acc":   fuzz.AccKernel,
	"spill": fuzz.SpillKernel,
}

func newFuzzCmd(gf *globalFlags, out io.Writer, errOut io.Writer) *cobra.Command {
	var (
		count int
		seed  int64
		kind  string
	)
	cmd := &cobra.Command{
		Use:   "fuzz",
		Short: "check the passes on random kernels against the simulator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, ok := generators[kind]
			if !ok {
				return fmt.Errorf("unknown kernel kind %q", kind)
			}

			/* the simulator uses the same machine description */
			var total regreclaim.Stats
			o := opts.GetDefaultOptions()
			for i := int64(0); i < int64(count); i++ {
				want := gen(seed+i, &o)
				got := gen(seed+i, &o)
				st, err := regreclaim.Run(got, append(gf.options(errOut), regreclaim.WithFlowInfo(cfg.Build(got)))...)
				if err != nil {
					return fmt.Errorf("seed %d: %w", seed+i, err)
				}

				/* compare the observable state */
				m0 := sim.New(want, &o, seed+i)
				m1 := sim.New(got, &o, seed+i)
				if err = m0.Run(16); err == nil {
					err = m1.Run(16)
				}
				if err == nil {
					err = sim.Diff(m0, m1)
				}
				if err != nil {
					fmt.Fprintf(errOut, "%s\n\n%s\n", want, got)
					return fmt.Errorf("seed %d: %w", seed+i, err)
				}
				total = merge(total, st)
			}
			fmt.Fprintf(out, "%d %s kernels ok\n%s\n", count, kind, total)
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 100, "number of kernels")
	cmd.Flags().Int64Var(&seed, "seed", 0, "first seed")
	cmd.Flags().StringVar(&kind, "kind", "spill", "kernel kind, acc or spill")
	return cmd
}

func merge(a regreclaim.Stats, b regreclaim.Stats) regreclaim.Stats {
	a.AccIntervals += b.AccIntervals
	a.AccEvictions += b.AccEvictions
	a.AccRejected += b.AccRejected
	a.AddrTemps += b.AddrTemps
	a.FlagTemps += b.FlagTemps
	a.Fills += b.Fills
	a.Spills += b.Spills
	a.FillsRemoved += b.FillsRemoved
	a.SpillsRemoved += b.SpillsRemoved
	return a
}

func newDrawCmd(out io.Writer) *cobra.Command {
	var (
		block  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "draw <kernel.yaml>",
		Short: "draw the accumulator intervals of a block as SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, f, err := loadKernel(args[0])
			if err != nil {
				return err
			}
			if block < 0 || block >= len(k.Blocks) {
				return fmt.Errorf("no block %d in %s", block, k.Name)
			}

			/* plan without rewriting */
			o := opts.GetDefaultOptions()
			f.Target.Apply(&o)
			bb := k.Blocks[block]
			ivs := ra.PlanAccIntervals(k, bb, &o)

			/* standard output by default */
			if output == "" || output == "-" {
				return ra.DrawAccIntervals(out, bb, ivs)
			}
			fp, err := os.Create(output)
			if err != nil {
				return err
			}
			if err = ra.DrawAccIntervals(fp, bb, ivs); err != nil {
				fp.Close()
				return err
			}
			return fp.Close()
		},
	}
	cmd.Flags().IntVarP(&block, "block", "b", 0, "block to draw")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, standard output by default")
	return cmd
}
