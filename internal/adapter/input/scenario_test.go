package input

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/compstack/internal/model"
)

const desktopScenario = `
name: dialog over app
screen: {x: 0, y: 0, w: 800, h: 480}
order: [0x10, 0x20, 0x30]
active: 0x20
surfaces:
  - id: 0x10
    type: desktop
  - id: 0x20
  - id: 0x30
    type: dialog
    transient_for: 0x20
    geometry: {x: 100, y: 100, w: 200, h: 100}
    alpha: true
steps:
  - name: close dialog
    events:
      - kind: destroy
        window: 0x30
  - events:
      - kind: create
        surface:
          id: 64
          type: notification
          mapped: false
    display_off: true
expect:
  order: [0x10, 0x20, 0x30]
  compositing: true
`

func TestParse_YAML(t *testing.T) {
	sc, err := Parse([]byte(desktopScenario), "test.yaml", FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "dialog over app", sc.Name)
	assert.Equal(t, []model.SurfaceID{0x10, 0x20, 0x30}, sc.Sequence())
	assert.Equal(t, model.SurfaceID(0x20), sc.Active.Surface())
	assert.True(t, sc.SelectiveCompositing())
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, model.SurfaceID(0x30), sc.Steps[0].Events[0].Target())
	assert.Equal(t, model.SurfaceID(64), sc.Steps[1].Events[0].Target())
	require.NotNil(t, sc.Steps[1].DisplayOff)
	assert.True(t, *sc.Steps[1].DisplayOff)
	require.NotNil(t, sc.Expect)
	assert.Equal(t, []model.SurfaceID{0x10, 0x20, 0x30}, Surfaces(sc.Expect.Order))

	snap, err := sc.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 3)

	desk := snap[0x10]
	assert.Equal(t, model.TypeDesktop, desk.Type)
	assert.True(t, desk.Mapped)
	assert.True(t, desk.Painted)
	assert.Equal(t, sc.Screen, desk.Geometry)

	dialog := snap[0x30]
	assert.Equal(t, model.TypeDialog, dialog.Type)
	assert.Equal(t, model.SurfaceID(0x20), dialog.TransientFor)
	assert.Equal(t, model.Rect{X: 100, Y: 100, W: 200, H: 100}, dialog.Geometry)
	assert.False(t, dialog.Opaque())
}

func TestParse_JSON(t *testing.T) {
	data := `{
		"order": [1, "0x2"],
		"selective": false,
		"surfaces": [
			{"id": 1, "type": "desktop"},
			{"id": "0x2", "mapped": false, "painted": false}
		]
	}`

	sc, err := Parse([]byte(data), "test.json", FormatJSON)
	require.NoError(t, err)
	assert.False(t, sc.SelectiveCompositing())
	assert.Equal(t, DefaultScreen, sc.ScreenRect())

	snap, err := sc.Snapshot()
	require.NoError(t, err)
	assert.False(t, snap[2].Mapped)
	assert.False(t, snap[2].Painted)
	assert.Equal(t, DefaultScreen, snap[2].Geometry)
}

func TestParse_TOML(t *testing.T) {
	data := `
name = "toml scenario"
order = [0x10, 0x20]
selective = false

[[surfaces]]
id = 0x10
type = "desktop"

[[surfaces]]
id = "0x20"
mapped = false
geometry = { x = 0, y = 0, w = 100, h = 50 }
`

	sc, err := Parse([]byte(data), "test.toml", FormatTOML)
	require.NoError(t, err)
	assert.Equal(t, "toml scenario", sc.Name)
	assert.Equal(t, []model.SurfaceID{0x10, 0x20}, sc.Sequence())
	assert.False(t, sc.SelectiveCompositing())

	snap, err := sc.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, model.TypeDesktop, snap[0x10].Type)
	assert.False(t, snap[0x20].Mapped)
	assert.Equal(t, model.Rect{W: 100, H: 50}, snap[0x20].Geometry)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  Format
		wantMsg string
	}{
		{name: "empty", data: "  \n", format: FormatYAML, wantMsg: "empty scenario"},
		{name: "unknown field", data: "order: []\nbogus: 1\n", format: FormatYAML, wantMsg: "failed to parse YAML scenario"},
		{name: "unknown JSON field", data: `{"order": [], "bogus": 1}`, format: FormatJSON, wantMsg: "failed to parse JSON scenario"},
		{name: "unknown TOML field", data: "order = []\nbogus = 1\n", format: FormatTOML, wantMsg: "failed to parse TOML scenario"},
		{name: "bad id", data: "order: [zz]\n", format: FormatYAML, wantMsg: "failed to parse YAML scenario"},
		{name: "id as list", data: "order: [[1]]\n", format: FormatYAML, wantMsg: "failed to parse YAML scenario"},
		{name: "undescribed", data: "order: [1]\n", format: FormatYAML, wantMsg: "in order is not described"},
		{name: "unordered", data: "order: []\nsurfaces: [{id: 1}]\n", format: FormatYAML, wantMsg: "not in order"},
		{name: "duplicate order", data: "order: [1, 1]\nsurfaces: [{id: 1}]\n", format: FormatYAML, wantMsg: "appears twice"},
		{name: "duplicate surface", data: "order: [1]\nsurfaces: [{id: 1}, {id: 1}]\n", format: FormatYAML, wantMsg: "described twice"},
		{name: "bad type", data: "order: [1]\nsurfaces: [{id: 1, type: toolbar}]\n", format: FormatYAML, wantMsg: "unknown window type"},
		{name: "bad layer", data: "order: [1]\nsurfaces: [{id: 1, layer: 9}]\n", format: FormatYAML, wantMsg: "stacking layer"},
		{name: "bad opacity", data: "order: [1]\nsurfaces: [{id: 1, opacity: 2}]\n", format: FormatYAML, wantMsg: "opacity"},
		{name: "bad event", data: "order: []\nsteps: [{events: [{kind: squash, window: 1}]}]\n", format: FormatYAML, wantMsg: "unknown event kind"},
		{name: "create without surface", data: "order: []\nsteps: [{events: [{kind: create}]}]\n", format: FormatYAML, wantMsg: "needs a surface"},
		{name: "raise without window", data: "order: []\nsteps: [{events: [{kind: raise}]}]\n", format: FormatYAML, wantMsg: "needs a window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "s", tt.format)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var adapterErr *AdapterError
			assert.True(t, errors.As(err, &adapterErr))
			assert.Equal(t, "s", adapterErr.Source)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, DetectFormat("a/b.JSON"))
	assert.Equal(t, FormatYAML, DetectFormat("a/b.yaml"))
	assert.Equal(t, FormatTOML, DetectFormat("a/b.toml"))
	assert.Equal(t, FormatYAML, DetectFormat("-"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(desktopScenario), 0o644))

	sc, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, sc.Surfaces, 3)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
