package output

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/sim"
)

// WriteReport writes a simulation report. Structured formats encode the
// whole report; everything else prints one block per step.
func WriteReport(w io.Writer, format FormatType, report *sim.Report, opts FormatterOptions) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, report)
	case FormatYAML:
		return WriteYAML(w, report)
	case FormatIDs:
		return NewIDsFormatter(opts).Format(w, report.Passes())
	}

	var sb strings.Builder
	if report.Scenario != "" {
		fmt.Fprintf(&sb, "scenario: %s\n", report.Scenario)
	}
	for i, st := range report.Steps {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "== %s ==\n", st.Name)
		if st.Deferred {
			fmt.Fprintf(&sb, "  deferred while animating\n  server:      %s\n", JoinIDs(st.Server, opts.Decimal))
			continue
		}
		p := st.Pass
		fmt.Fprintf(&sb, "  strategy:    %s, %d ops\n", p.Strategy, len(p.Ops))
		for _, op := range p.Ops {
			fmt.Fprintf(&sb, "    %s\n", op)
		}
		fmt.Fprintf(&sb, "  server:      %s\n", JoinIDs(st.Server, opts.Decimal))
		fmt.Fprintf(&sb, "  compositing: %t\n", p.Compositing)
		if len(p.Direct) > 0 {
			fmt.Fprintf(&sb, "  direct:      %s\n", JoinIDs(p.Direct, opts.Decimal))
		}
		if p.Failed() {
			fmt.Fprintf(&sb, "  error:       %s\n", singleLine(p.Error))
		}
		for _, sig := range st.Signals {
			fmt.Fprintf(&sb, "  > %s\n", sig)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteStack lists a bottom-first order top-first, numbered from the top.
func WriteStack(w io.Writer, order []model.SurfaceID, decimal bool) error {
	top := slices.Clone(order)
	slices.Reverse(top)
	for i, id := range top {
		label := id.String()
		if decimal {
			label = fmt.Sprintf("%d", uint32(id))
		}
		if _, err := fmt.Fprintf(w, "%3d  %s\n", i+1, label); err != nil {
			return err
		}
	}
	return nil
}
