// Package daemon provides the main orchestration for compstackd.
// It runs the reconciliation loop over the stacking core and coordinates
// the display state registry, configuration hot-reload and internal
// notifications.
package daemon
