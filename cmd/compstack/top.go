package main

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/compstack/internal/tui"
)

var topOpts struct {
	noState bool
}

var topCmd = &cobra.Command{
	Use:     "top",
	Aliases: []string{"tui"},
	Short:   "Launch the live dashboard",
	Long: `Launch the interactive terminal dashboard for a running compstackd.

The dashboard provides:
  - The daemon's compositing, power and current application state
  - The stacking order, top first
  - A scrollable list of reconciliation passes, newest first
  - Search and filter expressions over the journal
  - A detail view with the restack requests of a pass
  - Copy to clipboard support
  - Live updates as the daemon writes its state and journal

Key bindings:
  j/k, ↑/↓    Navigate list
  enter       View pass details
  c           Copy pass id to clipboard
  o           Copy restack requests to clipboard
  /           Search or filter passes
  f           Toggle failed passes only
  r           Refresh
  ?           Show help
  q           Quit`,
	RunE: runTop,
}

func init() {
	rootCmd.AddCommand(topCmd)

	topCmd.Flags().BoolVar(&topOpts.noState, "no-state", false,
		"Hide the daemon state header")
}

func runTop(cmd *cobra.Command, args []string) error {
	journal, err := openJournal()
	if err != nil {
		return err
	}

	state := statePath()
	if topOpts.noState {
		state = ""
	}

	return tui.Run(tui.RunOptions{
		Config:      getConfig(),
		Store:       journal,
		JournalPath: journalPath(),
		StatePath:   state,
		Logger:      logger,
	})
}
