package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/compstack/internal/adapter/output"
	"github.com/jmylchreest/compstack/internal/dbus"
	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/store"
)

var statusOpts struct {
	format  string
	live    bool
	mapped  bool
	decimal bool
}

// WaybarStatus represents the Waybar custom module JSON format.
type WaybarStatus struct {
	Text    string `json:"text"`
	Alt     string `json:"alt,omitempty"`
	Tooltip string `json:"tooltip,omitempty"`
	Class   string `json:"class,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's published state",
	Long: `Show what compstackd last published: the stacking order, whether the
compositor is painting, which surfaces render directly, the display power
state and the last reconciliation pass.

The state is read from the daemon's state file. With --live the stacking
order and compositing flag are queried from the daemon over D-Bus instead.

Formats:
  plain   human readable summary (default)
  json    the state file contents
  waybar  a Waybar custom module object:

  "custom/compositing": {
    "exec": "compstack status --format waybar",
    "interval": 5,
    "return-type": "json",
    "on-click": "compstack reconcile"
  }`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusOpts.format, "format", "f", "plain",
		"Output format (plain, json, waybar)")
	statusCmd.Flags().BoolVar(&statusOpts.live, "live", false,
		"Query the running daemon over D-Bus")
	statusCmd.Flags().BoolVar(&statusOpts.mapped, "mapped", false,
		"List every mapped surface instead of the client stacking list")
	statusCmd.Flags().BoolVar(&statusOpts.decimal, "decimal", false,
		"Print surface ids in decimal")
}

func runStatus(cmd *cobra.Command, args []string) error {
	state, err := store.LoadSharedStateFrom(statePath())
	if err != nil {
		if statusOpts.format == "waybar" {
			return outputStatus(WaybarStatus{Alt: "error", Class: "error", Tooltip: err.Error()})
		}
		return fmt.Errorf("failed to load daemon state: %w", err)
	}

	if statusOpts.live {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := queryLive(ctx, state); err != nil {
			return err
		}
	}

	switch statusOpts.format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	case "waybar":
		return outputStatus(generateWaybarStatus(state))
	}

	fmt.Print(formatStatus(state, statusOpts.mapped, useDecimal(statusOpts.decimal)))
	return nil
}

// queryLive replaces the published lists with the daemon's current ones.
func queryLive(ctx context.Context, state *store.SharedState) error {
	client, err := dbus.NewClient()
	if err != nil {
		return err
	}
	if state.Stacking, err = client.Stacking(ctx); err != nil {
		return err
	}
	if state.MappedStacking, err = client.MappedStacking(ctx); err != nil {
		return err
	}
	if state.Compositing, err = client.Compositing(ctx); err != nil {
		return err
	}
	return nil
}

// formatStatus renders the plain status summary.
func formatStatus(state *store.SharedState, mapped, decimal bool) string {
	var sb strings.Builder

	if state.Running() {
		fmt.Fprintf(&sb, "daemon:       running (pid %d, started %s)\n", state.PID,
			humanize.Time(time.Unix(state.StartedAt, 0)))
	} else {
		sb.WriteString("daemon:       not running\n")
	}
	if state.UpdatedAt > 0 {
		fmt.Fprintf(&sb, "updated:      %s\n", humanize.Time(time.Unix(state.UpdatedAt, 0)))
	}
	fmt.Fprintf(&sb, "compositing:  %s\n", onOff(state.Compositing))
	fmt.Fprintf(&sb, "display:      %s\n", state.Power)
	if state.Animating {
		sb.WriteString("animating:    yes\n")
	}

	var app []model.SurfaceID
	if state.CurrentApp != model.None {
		app = []model.SurfaceID{state.CurrentApp}
	}
	fmt.Fprintf(&sb, "current app:  %s\n", output.JoinIDs(app, decimal))
	fmt.Fprintf(&sb, "direct:       %s\n", output.JoinIDs(state.Direct, decimal))

	if lp := state.LastPass; lp != nil {
		fmt.Fprintf(&sb, "last pass:    %s %s (%s, %d ops) %s\n", lp.ID, lp.Trigger, lp.Strategy, lp.Ops,
			humanize.Time(time.Unix(lp.Timestamp, 0)))
		if lp.Error != "" {
			fmt.Fprintf(&sb, "last error:   %s\n", lp.Error)
		}
	}

	if len(state.Stats) > 0 {
		strategies := make([]model.Strategy, 0, len(state.Stats))
		for s := range state.Stats {
			strategies = append(strategies, s)
		}
		slices.Sort(strategies)
		sb.WriteString("planner:\n")
		for _, s := range strategies {
			fmt.Fprintf(&sb, "  %-13s %s\n", s+":", state.Stats[s])
		}
	}

	order, label := state.Stacking, "stacking"
	if mapped {
		order, label = state.MappedStacking, "mapped"
	}
	fmt.Fprintf(&sb, "%s (top first):\n", label)
	if len(order) == 0 {
		sb.WriteString("  -\n")
	} else {
		var list strings.Builder
		_ = output.WriteStack(&list, order, decimal)
		sb.WriteString(list.String())
	}

	return sb.String()
}

// generateWaybarStatus creates a WaybarStatus from the daemon state.
func generateWaybarStatus(state *store.SharedState) WaybarStatus {
	if !state.Running() {
		return WaybarStatus{Alt: "stopped", Class: "stopped", Tooltip: "compstackd is not running"}
	}

	class := "direct"
	text := "D"
	if state.Compositing {
		class, text = "compositing", "C"
	}
	if lp := state.LastPass; lp != nil && lp.Error != "" {
		class = "failed"
	}

	lines := []string{
		fmt.Sprintf("Compositing: %s", onOff(state.Compositing)),
		fmt.Sprintf("Direct surfaces: %d", len(state.Direct)),
		fmt.Sprintf("Stacked clients: %d", len(state.Stacking)),
	}
	if lp := state.LastPass; lp != nil {
		lines = append(lines, fmt.Sprintf("Last pass: %s, %d ops", lp.Trigger, lp.Ops))
	}

	return WaybarStatus{
		Text:    text,
		Alt:     class,
		Tooltip: strings.Join(lines, "\n"),
		Class:   class,
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// outputStatus writes the status as JSON.
func outputStatus(status WaybarStatus) error {
	encoder := json.NewEncoder(os.Stdout)
	return encoder.Encode(status)
}
