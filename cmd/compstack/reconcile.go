package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/compstack/internal/dbus"
)

var reconcileOpts struct {
	quiet   bool // Suppress output, return exit code only
	timeout time.Duration
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Ask the daemon to run a pass now",
	Long: `Ask the running compstackd to run a reconciliation pass immediately,
skipping its debounce timer.

The command waits until the pass has finished and then prints the daemon's
compositing state. The exit code is 0 when the pass ran and 1 when the
daemon could not be reached.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVarP(&reconcileOpts.quiet, "quiet", "q", false,
		"Suppress output, return exit code only")
	reconcileCmd.Flags().DurationVar(&reconcileOpts.timeout, "timeout", 5*time.Second,
		"How long to wait for the pass")

	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileOpts.timeout)
	defer cancel()

	client, err := dbus.NewClient()
	if err != nil {
		return reconcileFailed(err)
	}

	if err := client.Reconcile(ctx); err != nil {
		return reconcileFailed(err)
	}

	if reconcileOpts.quiet {
		return nil
	}

	compositing, err := client.Compositing(ctx)
	if err != nil {
		return reconcileFailed(err)
	}
	fmt.Printf("Reconciled, compositing: %s\n", onOff(compositing))
	return nil
}

func reconcileFailed(err error) error {
	if !reconcileOpts.quiet {
		fmt.Fprintf(os.Stderr, "Failed to reconcile: %v\n", err)
	}
	os.Exit(1)
	return err
}
