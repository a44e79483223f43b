package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/compstack/internal/dbus"
)

var animateCmd = &cobra.Command{
	Use:       "animate on|off",
	Short:     "Report a compositor animation to the daemon",
	ValidArgs: []string{"on", "off"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Long: `Tell the running compstackd that a compositor animation started (on) or
ended (off). Passes requested while an animation runs are held back and run
once it ends.`,
	RunE: runAnimate,
}

func init() {
	rootCmd.AddCommand(animateCmd)
}

func runAnimate(cmd *cobra.Command, args []string) error {
	on, err := parseOnOff(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dbus.NewClient()
	if err != nil {
		return err
	}
	if err := client.SetAnimating(ctx, on); err != nil {
		return err
	}
	fmt.Printf("Animating: %s\n", onOff(on))
	return nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}
