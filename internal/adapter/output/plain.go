package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/jmylchreest/compstack/internal/model"
)

// PlainFormatter formats passes as indented plain text.
type PlainFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewPlainFormatter creates a new plain text formatter.
func NewPlainFormatter(opts FormatterOptions) *PlainFormatter {
	f := &PlainFormatter{opts: opts}

	// Parse custom template if provided
	if opts.Template != "" {
		tmpl, err := template.New("plain").Funcs(templateFuncs(opts.Decimal)).Parse(opts.Template)
		if err == nil {
			f.template = tmpl
		}
	}

	return f
}

// Format writes passes as plain text.
func (f *PlainFormatter) Format(w io.Writer, passes []model.Pass) error {
	for i, p := range passes {
		if err := f.formatPass(w, i+1, &p); err != nil {
			return err
		}
	}
	return nil
}

func (f *PlainFormatter) formatPass(w io.Writer, index int, p *model.Pass) error {
	if f.template != nil {
		return f.template.Execute(w, newTemplateData(index, p))
	}

	var sb strings.Builder

	if f.opts.ShowIndex {
		fmt.Fprintf(&sb, "[%d] ", index)
	}

	fmt.Fprintf(&sb, "%s %s (%s, %d ops", p.ID, p.Trigger, p.Strategy, len(p.Ops))
	if p.Duration > 0 {
		fmt.Fprintf(&sb, ", %s", p.Duration.Round(time.Microsecond))
	}
	sb.WriteString(")")

	if f.opts.ShowTime {
		fmt.Fprintf(&sb, " %s", humanTime(p.Timestamp))
	}
	sb.WriteString("\n")

	ids := func(v []model.SurfaceID) string { return JoinIDs(v, f.opts.Decimal) }

	fmt.Fprintf(&sb, "    desired:     %s\n", ids(p.Desired))
	fmt.Fprintf(&sb, "    result:      %s\n", ids(p.Result))
	if len(p.Dropped) > 0 {
		fmt.Fprintf(&sb, "    dropped:     %s\n", ids(p.Dropped))
	}
	fmt.Fprintf(&sb, "    compositing: %t\n", p.Compositing)
	if len(p.Direct) > 0 {
		fmt.Fprintf(&sb, "    direct:      %s\n", ids(p.Direct))
	}
	if p.Resynced {
		sb.WriteString("    resynced\n")
	}
	if p.Failed() {
		fmt.Fprintf(&sb, "    error:       %s\n", singleLine(p.Error))
	}
	if f.opts.ShowOps {
		for _, op := range p.Ops {
			fmt.Fprintf(&sb, "      %s\n", op)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// FormatField outputs a specific field from a pass.
func FormatField(p *model.Pass, field string, decimal bool) string {
	switch strings.ToLower(field) {
	case "id":
		return p.ID
	case "trigger":
		return p.Trigger
	case "strategy":
		return string(p.Strategy)
	case "desired":
		return JoinIDs(p.Desired, decimal)
	case "result":
		return JoinIDs(p.Result, decimal)
	case "dropped":
		return JoinIDs(p.Dropped, decimal)
	case "direct":
		return JoinIDs(p.Direct, decimal)
	case "ops":
		ops := make([]string, len(p.Ops))
		for i, op := range p.Ops {
			ops[i] = op.String()
		}
		return strings.Join(ops, "\n")
	case "compositing":
		return fmt.Sprintf("%t", p.Compositing)
	case "error":
		return p.Error
	case "duration":
		return p.Duration.String()
	default:
		return p.ID
	}
}
