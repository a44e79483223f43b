package output

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/compstack/internal/model"
)

// JSONFormatter formats passes as JSON.
type JSONFormatter struct {
	opts FormatterOptions
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(opts FormatterOptions) *JSONFormatter {
	return &JSONFormatter{opts: opts}
}

// Format writes passes as a JSON array.
func (f *JSONFormatter) Format(w io.Writer, passes []model.Pass) error {
	return WriteJSON(w, passes)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// YAMLFormatter formats passes as a YAML sequence.
type YAMLFormatter struct {
	opts FormatterOptions
}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter(opts FormatterOptions) *YAMLFormatter {
	return &YAMLFormatter{opts: opts}
}

// Format writes passes as YAML.
func (f *YAMLFormatter) Format(w io.Writer, passes []model.Pass) error {
	return WriteYAML(w, passes)
}

// WriteYAML writes v as YAML with two-space indentation.
func WriteYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}
