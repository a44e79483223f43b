package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/sim"
)

func testPasses() []model.Pass {
	now := time.Now()
	return []model.Pass{
		{
			ID:          "01HQGXK5P0000000000000000A",
			Timestamp:   now.Add(-5 * time.Minute).Unix(),
			Trigger:     "startup",
			Strategy:    model.StrategyAggressive,
			Desired:     []model.SurfaceID{0x10, 0x30, 0x20},
			Ops:         []model.StackOp{{Below: 0x30, Above: 0x20}},
			Result:      []model.SurfaceID{0x10, 0x30, 0x20},
			Compositing: false,
			Direct:      []model.SurfaceID{0x20},
			Duration:    1500 * time.Microsecond,
		},
		{
			ID:        "01HQGXK5P0000000000000000B",
			Timestamp: now.Add(-2 * time.Hour).Unix(),
			Trigger:   "timer",
			Strategy:  model.StrategyConservative,
			Result:    []model.SurfaceID{0x10, 0x20},
			Error:     "restack 0x30 below 0x20: BadWindow\nrestack 0x40: BadWindow",
		},
	}
}

func TestLineFormatter_Format(t *testing.T) {
	var buf bytes.Buffer

	formatter := NewLineFormatter(DefaultFormatterOptions())
	require.NoError(t, formatter.Format(&buf, testPasses()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	assert.Equal(t, "1 | 5m | startup | aggressive 1 ops | 0x10 0x30 0x20", lines[0])
	assert.Equal(t, "2 | 2h | timer | conservative 0 ops | error: restack 0x30 below 0x20: BadWindow restack 0x40: BadWindow", lines[1])
}

func TestLineFormatter_Options(t *testing.T) {
	var buf bytes.Buffer

	opts := DefaultFormatterOptions()
	opts.ShowIndex = false
	opts.ShowTime = false
	opts.Decimal = true
	opts.Separator = "\t"
	formatter := NewLineFormatter(opts)
	require.NoError(t, formatter.Format(&buf, testPasses()[:1]))

	assert.Equal(t, "startup\taggressive 1 ops\t16 48 32\n", buf.String())
}

func TestLineFormatter_CustomTemplate(t *testing.T) {
	var buf bytes.Buffer

	opts := DefaultFormatterOptions()
	opts.Template = "{{.Index}}:{{failedIcon .Pass}} {{.Pass.Trigger}} [{{ids .Pass.Result}}] {{opcount .Pass.Ops}}"
	formatter := NewLineFormatter(opts)
	require.NoError(t, formatter.Format(&buf, testPasses()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "1:- startup [0x10 0x30 0x20] 1", lines[0])
	assert.Equal(t, "2:! timer [0x10 0x20] 0", lines[1])
}

func TestLineFormatter_BadTemplateFallsBack(t *testing.T) {
	var buf bytes.Buffer

	opts := DefaultFormatterOptions()
	opts.Template = "{{.Unclosed"
	formatter := NewLineFormatter(opts)
	require.NoError(t, formatter.Format(&buf, testPasses()[:1]))
	assert.Contains(t, buf.String(), "startup")
}

func TestJSONFormatter_Format(t *testing.T) {
	var buf bytes.Buffer

	formatter := NewJSONFormatter(DefaultFormatterOptions())
	require.NoError(t, formatter.Format(&buf, testPasses()))

	var result []model.Pass
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	require.Len(t, result, 2)
	assert.Equal(t, "startup", result[0].Trigger)
	assert.Equal(t, []model.SurfaceID{0x10, 0x30, 0x20}, result[0].Desired)
	assert.True(t, result[1].Failed())
}

func TestYAMLFormatter_Format(t *testing.T) {
	var buf bytes.Buffer

	formatter := NewYAMLFormatter(DefaultFormatterOptions())
	require.NoError(t, formatter.Format(&buf, testPasses()))

	var result []model.Pass
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &result))
	require.Len(t, result, 2)
	assert.Equal(t, model.StrategyConservative, result[1].Strategy)
	assert.Equal(t, []model.StackOp{{Below: 0x30, Above: 0x20}}, result[0].Ops)
}

func TestPlainFormatter_Format(t *testing.T) {
	var buf bytes.Buffer

	opts := DefaultFormatterOptions()
	opts.ShowOps = true
	formatter := NewPlainFormatter(opts)
	require.NoError(t, formatter.Format(&buf, testPasses()))

	output := buf.String()
	assert.Contains(t, output, "[1] 01HQGXK5P0000000000000000A startup (aggressive, 1 ops, 1.5ms) 5 minutes ago")
	assert.Contains(t, output, "    desired:     0x10 0x30 0x20\n")
	assert.Contains(t, output, "    direct:      0x20\n")
	assert.Contains(t, output, "      0x30 below 0x20\n")
	assert.Contains(t, output, "[2] 01HQGXK5P0000000000000000B timer (conservative, 0 ops) 2 hours ago")
	assert.Contains(t, output, "    desired:     -\n")
	assert.Contains(t, output, "    error:       restack 0x30 below 0x20: BadWindow restack 0x40: BadWindow\n")
}

func TestIDsFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewIDsFormatter(DefaultFormatterOptions()).Format(&buf, testPasses()))
	assert.Equal(t, "01HQGXK5P0000000000000000A\n01HQGXK5P0000000000000000B\n", buf.String())

	buf.Reset()
	opts := DefaultFormatterOptions()
	opts.OutputField = "strategy"
	require.NoError(t, NewIDsFormatter(opts).Format(&buf, testPasses()))
	assert.Equal(t, "aggressive\nconservative\n", buf.String())
}

func TestFormatField(t *testing.T) {
	p := &testPasses()[0]

	tests := []struct {
		field    string
		decimal  bool
		expected string
	}{
		{field: "id", expected: "01HQGXK5P0000000000000000A"},
		{field: "trigger", expected: "startup"},
		{field: "strategy", expected: "aggressive"},
		{field: "desired", expected: "0x10 0x30 0x20"},
		{field: "result", decimal: true, expected: "16 48 32"},
		{field: "dropped", expected: "-"},
		{field: "direct", expected: "0x20"},
		{field: "ops", expected: "0x30 below 0x20"},
		{field: "compositing", expected: "false"},
		{field: "duration", expected: "1.5ms"},
		{field: "unknown", expected: "01HQGXK5P0000000000000000A"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatField(p, tt.field, tt.decimal))
		})
	}
}

func TestNewFormatter(t *testing.T) {
	opts := DefaultFormatterOptions()

	tests := []struct {
		format FormatType
		want   Formatter
	}{
		{FormatLine, &LineFormatter{}},
		{FormatJSON, &JSONFormatter{}},
		{FormatYAML, &YAMLFormatter{}},
		{FormatIDs, &IDsFormatter{}},
		{FormatPlain, &PlainFormatter{}},
		{"unknown", &PlainFormatter{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			assert.IsType(t, tt.want, NewFormatter(tt.format, opts))
		})
	}
}

func TestWriteStack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStack(&buf, []model.SurfaceID{0x10, 0x20}, false))
	assert.Equal(t, "  1  0x20\n  2  0x10\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteStack(&buf, []model.SurfaceID{0x10, 0x20}, true))
	assert.Equal(t, "  1  32\n  2  16\n", buf.String())
}

func TestWriteReport(t *testing.T) {
	passes := testPasses()
	report := &sim.Report{
		Scenario: "demo",
		Steps: []sim.StepResult{
			{
				Name:    "startup",
				Pass:    &passes[0],
				Server:  []model.SurfaceID{0x10, 0x30, 0x20},
				Signals: []sim.Signal{{Kind: "direct", Surface: 0x20, On: true}},
			},
			{Name: "animate", Deferred: true, Server: []model.SurfaceID{0x10, 0x20, 0x30}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, FormatPlain, report, DefaultFormatterOptions()))
	output := buf.String()
	assert.Contains(t, output, "scenario: demo\n== startup ==\n")
	assert.Contains(t, output, "  strategy:    aggressive, 1 ops\n    0x30 below 0x20\n")
	assert.Contains(t, output, "  > direct 0x20=true\n")
	assert.Contains(t, output, "== animate ==\n  deferred while animating\n  server:      0x10 0x20 0x30\n")

	buf.Reset()
	require.NoError(t, WriteReport(&buf, FormatJSON, report, DefaultFormatterOptions()))
	var decoded sim.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Steps, 2)
	assert.True(t, decoded.Steps[1].Deferred)

	buf.Reset()
	require.NoError(t, WriteReport(&buf, FormatIDs, report, DefaultFormatterOptions()))
	assert.Equal(t, "01HQGXK5P0000000000000000A\n", buf.String())
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		ts       int64
		expected string
	}{
		{"zero", 0, "unknown"},
		{"now", now.Unix(), "now"},
		{"30 seconds", now.Add(-30 * time.Second).Unix(), "now"},
		{"5 minutes", now.Add(-5 * time.Minute).Unix(), "5m"},
		{"2 hours", now.Add(-2 * time.Hour).Unix(), "2h"},
		{"3 days", now.Add(-72 * time.Hour).Unix(), "3d"},
		{"2 weeks", now.Add(-14 * 24 * time.Hour).Unix(), "2w"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, relativeTime(tt.ts))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello world", truncate("hello world", 0))
	assert.Equal(t, "hello...", truncate("hello world", 8))
	assert.Equal(t, "he", truncate("hello world", 2))
}
