// Package output provides output formatters for passes and stacking orders.
package output

import (
	"io"

	"github.com/jmylchreest/compstack/internal/model"
)

// Formatter formats passes for output.
type Formatter interface {
	// Format writes formatted passes to the writer.
	Format(w io.Writer, passes []model.Pass) error
}

// FormatType represents an output format type.
type FormatType string

const (
	FormatLine  FormatType = "line"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
	FormatPlain FormatType = "plain"
	FormatIDs   FormatType = "ids"
)

// NewFormatter creates a formatter for the specified format type.
func NewFormatter(format FormatType, opts FormatterOptions) Formatter {
	switch format {
	case FormatJSON:
		return NewJSONFormatter(opts)
	case FormatYAML:
		return NewYAMLFormatter(opts)
	case FormatIDs:
		return NewIDsFormatter(opts)
	case FormatLine:
		return NewLineFormatter(opts)
	case FormatPlain:
		fallthrough
	default:
		return NewPlainFormatter(opts)
	}
}

// FormatterOptions configures formatter behavior.
type FormatterOptions struct {
	Template    string // Custom template for line/plain format
	ShowIndex   bool   // Show 1-based index prefix
	ShowTime    bool   // Show relative time
	ShowOps     bool   // List restack requests
	Decimal     bool   // Print surface ids in decimal instead of hex
	Separator   string // Field separator for line format
	OutputField string // Field printed per pass by the ids format
}

// DefaultFormatterOptions returns sensible defaults for terminal output.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		ShowIndex: true,
		ShowTime:  true,
		Separator: " | ",
	}
}
