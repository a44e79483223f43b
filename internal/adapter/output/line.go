package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/compstack/internal/model"
)

// LineFormatter formats passes one per line, for dmenu/rofi/fzf pickers.
type LineFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewLineFormatter creates a new line formatter.
func NewLineFormatter(opts FormatterOptions) *LineFormatter {
	f := &LineFormatter{opts: opts}

	// Parse custom template if provided
	if opts.Template != "" {
		tmpl, err := template.New("line").Funcs(templateFuncs(opts.Decimal)).Parse(opts.Template)
		if err == nil {
			f.template = tmpl
		}
	}

	return f
}

// Format writes passes in line format (one per line).
func (f *LineFormatter) Format(w io.Writer, passes []model.Pass) error {
	for i, p := range passes {
		line := f.formatLine(i+1, &p)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// formatLine formats a single pass line.
func (f *LineFormatter) formatLine(index int, p *model.Pass) string {
	if f.template != nil {
		var buf strings.Builder
		if err := f.template.Execute(&buf, newTemplateData(index, p)); err == nil {
			return buf.String()
		}
	}

	// Default format: index | time | trigger | strategy ops | result
	var parts []string
	sep := f.opts.Separator
	if sep == "" {
		sep = " | "
	}

	if f.opts.ShowIndex {
		parts = append(parts, strconv.Itoa(index))
	}

	if f.opts.ShowTime {
		parts = append(parts, relativeTime(p.Timestamp))
	}

	parts = append(parts, p.Trigger)
	parts = append(parts, fmt.Sprintf("%s %d ops", p.Strategy, len(p.Ops)))

	content := JoinIDs(p.Result, f.opts.Decimal)
	if p.Failed() {
		content = "error: " + singleLine(p.Error)
	}
	parts = append(parts, content)

	return strings.Join(parts, sep)
}

// templateData provides data for custom templates.
type templateData struct {
	Index        int
	Pass         *model.Pass
	RelativeTime string
	Age          string
}

func newTemplateData(index int, p *model.Pass) templateData {
	return templateData{
		Index:        index,
		Pass:         p,
		RelativeTime: relativeTime(p.Timestamp),
		Age:          humanTime(p.Timestamp),
	}
}

// templateFuncs returns template helper functions.
func templateFuncs(decimal bool) template.FuncMap {
	return template.FuncMap{
		"truncate": truncate,
		"reltime": func(ts int64) string {
			return relativeTime(ts)
		},
		"humantime": func(ts int64) string {
			return humanTime(ts)
		},
		"ids": func(ids []model.SurfaceID) string {
			return JoinIDs(ids, decimal)
		},
		"opcount": func(ops []model.StackOp) int {
			return len(ops)
		},
		"failedIcon": func(p *model.Pass) string {
			if p.Failed() {
				return "!"
			}
			return "-"
		},
	}
}

// JoinIDs renders surface ids space separated, in hex unless decimal.
func JoinIDs(ids []model.SurfaceID, decimal bool) string {
	if len(ids) == 0 {
		return "-"
	}
	if !decimal {
		return model.FormatIDs(ids)
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, " ")
}

// relativeTime returns a compact relative time string.
func relativeTime(timestamp int64) string {
	if timestamp == 0 {
		return "unknown"
	}

	d := time.Since(time.Unix(timestamp, 0))

	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw", int(d.Hours()/24/7))
	}
}

// humanTime returns a humanized relative time like "3 minutes ago".
func humanTime(timestamp int64) string {
	if timestamp == 0 {
		return "unknown"
	}
	return humanize.Time(time.Unix(timestamp, 0))
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// singleLine collapses whitespace so s fits on one line.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
