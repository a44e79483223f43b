package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/compstack/internal/core"
)

var pruneOpts struct {
	olderThan string
	keep      int
	all       bool
	dryRun    bool
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old passes from the journal",
	Long: `Remove old passes from the pass journal.

Without flags, the limits from the [prune] config section are used.

Examples:
  # Remove passes older than 7 days
  compstack prune --older-than 7d

  # Keep only the 500 most recent passes
  compstack prune --keep 500

  # Empty the journal
  compstack prune --all

  # Preview what would be removed (dry run)
  compstack prune --older-than 48h --dry-run`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().StringVar(&pruneOpts.olderThan, "older-than", "",
		"Remove passes older than this duration (e.g., 48h, 7d, 1w)")
	pruneCmd.Flags().IntVar(&pruneOpts.keep, "keep", 0,
		"Keep only the N most recent passes (0=unlimited)")
	pruneCmd.Flags().BoolVar(&pruneOpts.all, "all", false,
		"Remove every pass; the previous journal is kept as journal.jsonl.bak")
	pruneCmd.Flags().BoolVar(&pruneOpts.dryRun, "dry-run", false,
		"Show what would be removed without actually removing")
}

func runPrune(cmd *cobra.Command, args []string) error {
	if pruneOpts.all {
		return clearJournal()
	}

	olderThan, keep := pruneOpts.olderThan, pruneOpts.keep
	if olderThan == "" && keep == 0 && cfg != nil {
		olderThan, keep = cfg.Prune.OlderThan, cfg.Prune.Keep
	}
	if olderThan == "" && keep == 0 {
		return fmt.Errorf("specify --older-than or --keep")
	}

	var age time.Duration
	if olderThan != "" {
		d, err := core.ParseDuration(olderThan)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		age = d
	}

	journal, err := openJournal()
	if err != nil {
		return err
	}
	if journal.Count() == 0 {
		fmt.Println("No passes in journal")
		return nil
	}

	toRemove := journal.PruneCandidates(age, keep)
	if len(toRemove) == 0 {
		fmt.Println("No passes to remove")
		return nil
	}

	if pruneOpts.dryRun {
		fmt.Printf("Would remove %d pass(es):\n", len(toRemove))
		for i, p := range toRemove {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(toRemove)-10)
				break
			}
			fmt.Printf("  - [%s] %s, %d ops (%s)\n", p.Trigger, p.Strategy, len(p.Ops),
				humanize.Time(p.TimestampTime()))
		}
		return nil
	}

	removed, err := journal.Prune(age, keep)
	if err != nil {
		return fmt.Errorf("failed to prune journal: %w", err)
	}

	fmt.Printf("Removed %d pass(es)\n", removed)
	return nil
}

func clearJournal() error {
	journal, err := openJournal()
	if err != nil {
		return err
	}
	n := journal.Count()
	if pruneOpts.dryRun {
		fmt.Printf("Would remove all %d pass(es)\n", n)
		return nil
	}
	if err := journal.Clear(); err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}
	fmt.Printf("Removed %d pass(es)\n", n)
	return nil
}
