// Package input loads stacking scenarios for headless planning and
// simulation.
package input

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// maxScenarioSize bounds scenario input.
const maxScenarioSize = 10 * 1024 * 1024

// Format is a scenario encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// DetectFormat picks the encoding from a file name. Unknown extensions and
// stdin ("-") are read as YAML, which also accepts JSON.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// Load reads a scenario from path, or from stdin when path is "-".
func Load(path string) (*Scenario, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, &AdapterError{Source: path, Message: "failed to open scenario", Err: err}
		}
		defer f.Close()
		r = f
	}
	return Read(r, path, DetectFormat(path))
}

// Read decodes a scenario. source names the input in errors.
func Read(r io.Reader, source string, format Format) (*Scenario, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxScenarioSize+1))
	if err != nil {
		return nil, &AdapterError{Source: source, Message: "failed to read scenario", Err: err}
	}
	if len(data) > maxScenarioSize {
		return nil, &AdapterError{Source: source, Message: "scenario too large"}
	}
	return Parse(data, source, format)
}

// Parse decodes and validates a scenario.
func Parse(data []byte, source string, format Format) (*Scenario, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &AdapterError{Source: source, Message: "empty scenario"}
	}

	var sc Scenario
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sc); err != nil {
			return nil, &AdapterError{Source: source, Message: "failed to parse JSON scenario", Err: err}
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sc); err != nil {
			return nil, &AdapterError{Source: source, Message: "failed to parse TOML scenario", Err: err}
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&sc); err != nil {
			return nil, &AdapterError{Source: source, Message: "failed to parse YAML scenario", Err: err}
		}
	}

	if err := sc.Validate(); err != nil {
		return nil, &AdapterError{Source: source, Message: "invalid scenario", Err: err}
	}
	return &sc, nil
}

// AdapterError represents a scenario loading error.
type AdapterError struct {
	Source  string
	Message string
	Err     error
}

func (e *AdapterError) Error() string {
	msg := e.Message
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}
