package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/compstack/internal/adapter/input"
	"github.com/jmylchreest/compstack/internal/adapter/output"
	"github.com/jmylchreest/compstack/internal/core"
	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/planner"
	"github.com/jmylchreest/compstack/internal/policy"
	"github.com/jmylchreest/compstack/internal/sim"
	"github.com/jmylchreest/compstack/internal/stack"
)

var simulateOpts struct {
	format  string
	journal bool
	verify  bool
	decimal bool
}

var planOpts struct {
	strategy string
	decimal  bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario>",
	Short: "Run a stacking scenario against a simulated server",
	Long: `Run a scenario file against an in-memory display server using the same
reconciler as compstackd.

The scenario is a YAML, TOML or JSON file describing the initial surfaces,
the server's starting order and a list of steps. Each step applies its
events and runs one pass. Use "-" to read YAML from stdin.

When the scenario has an expect section the final pass is checked against
it and the command exits non-zero on mismatch.

Examples:
  compstack simulate fullscreen.yaml
  compstack simulate --format json fullscreen.yaml
  compstack simulate --journal --verify scenario.toml`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

var planCmd = &cobra.Command{
	Use:   "plan <scenario>",
	Short: "Print the order and restack requests for a scenario's startup",
	Long: `Compute the desired order for the scenario's initial surfaces and print
the restack requests the winning planner would issue. Steps are ignored.

With --strategy only that planner variant runs, so the two can be compared:

  compstack plan --strategy conservative scenario.yaml
  compstack plan --strategy aggressive scenario.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(planCmd)

	simulateCmd.Flags().StringVarP(&simulateOpts.format, "format", "f", "plain",
		"Output format (plain, json, yaml, ids)")
	simulateCmd.Flags().BoolVar(&simulateOpts.journal, "journal", false,
		"Append the simulated passes to the journal")
	simulateCmd.Flags().BoolVar(&simulateOpts.verify, "verify", true,
		"Compare the planned order with the server after every pass")
	simulateCmd.Flags().BoolVar(&simulateOpts.decimal, "decimal", false,
		"Print surface ids in decimal")

	planCmd.Flags().StringVar(&planOpts.strategy, "strategy", "",
		"Run a single planner (conservative, aggressive)")
	planCmd.Flags().BoolVar(&planOpts.decimal, "decimal", false,
		"Print surface ids in decimal")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	sc, err := input.Load(args[0])
	if err != nil {
		return err
	}

	opts := sim.Options{Verify: simulateOpts.verify}
	if simulateOpts.journal {
		journal, err := openJournal()
		if err != nil {
			return err
		}
		opts.Journal = journal
	}

	report, err := sim.Run(sc, opts, logger)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	fmtOpts := output.DefaultFormatterOptions()
	fmtOpts.Decimal = useDecimal(simulateOpts.decimal)
	if err := output.WriteReport(os.Stdout, parseFormat(simulateOpts.format), report, fmtOpts); err != nil {
		return err
	}

	if err := sim.Check(sc, report); err != nil {
		if errors.Is(err, sim.ErrExpectation) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return err
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	sc, err := input.Load(args[0])
	if err != nil {
		return err
	}

	if planOpts.strategy != "" {
		return runPlanStrategy(sc, planOpts.strategy)
	}

	report, err := sim.Run(sc, sim.Options{StartupOnly: true}, logger)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	final, ok := report.Final()
	if !ok || final.Pass == nil {
		return fmt.Errorf("no pass ran")
	}
	p := final.Pass
	decimal := useDecimal(planOpts.decimal)

	fmt.Println("order (top first):")
	if err := output.WriteStack(os.Stdout, final.Server, decimal); err != nil {
		return err
	}
	fmt.Printf("strategy: %s, %d ops\n", p.Strategy, len(p.Ops))
	for _, op := range p.Ops {
		fmt.Printf("  %s\n", op)
	}
	fmt.Printf("compositing: %s\n", onOff(p.Compositing))
	if len(p.Direct) > 0 {
		fmt.Printf("direct: %s\n", output.JoinIDs(p.Direct, decimal))
	}
	if p.Failed() {
		return fmt.Errorf("pass failed: %s", p.Error)
	}
	return nil
}

// runPlanStrategy plans the scenario's startup with one planner variant and
// prints the result without touching a server.
func runPlanStrategy(sc *input.Scenario, name string) error {
	strategy, err := core.ParseStrategy(name)
	if err != nil {
		return err
	}

	snap, err := sc.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to build attributes: %w", err)
	}
	seq := sc.Sequence()
	state := stack.FromSequence(seq, nil, logger)
	desired := policy.New(logger).Desired(policy.Input{Order: seq, Attrs: snap, Active: sc.Active.Surface()})

	var (
		ops    []model.StackOp
		result *stack.State
	)
	switch strategy {
	case model.StrategyConservative:
		ops, result = planner.Conservative(desired, state, logger)
	case model.StrategyAggressive:
		ops, result = planner.Aggressive(desired, state, logger)
	default:
		return fmt.Errorf("strategy %q does not plan", strategy)
	}

	decimal := useDecimal(planOpts.decimal)
	fmt.Println("order (top first):")
	if err := output.WriteStack(os.Stdout, result.Sequence(), decimal); err != nil {
		return err
	}
	fmt.Printf("strategy: %s, %d ops\n", strategy, len(ops))
	for _, op := range ops {
		fmt.Printf("  %s\n", op)
	}
	return nil
}
