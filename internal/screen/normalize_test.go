// File: internal/screen/normalize_test.go
package screen

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantum-agi/sdk-go/api/schemas"
)

func TestNewMapperRejectsDegenerateResolutions(t *testing.T) {
	for _, res := range []schemas.Resolution{
		{Width: 0, Height: 600},
		{Width: 800, Height: 0},
		{Width: -1, Height: -1},
	} {
		_, err := NewMapper(res)
		assert.Error(t, err, "%dx%d", res.Width, res.Height)
	}
}

func TestLetterboxOffsetsWideScreen(t *testing.T) {
	// 1920x1080 scales by 1000/1920; the scaled height 562 leaves 438 pixels
	// of padding split across top and bottom.
	m, err := NewMapper(schemas.Resolution{Width: 1920, Height: 1080})
	require.NoError(t, err)

	nx, ny := m.ToNormalized(0, 0)
	assert.Equal(t, 0, nx)
	assert.Equal(t, 219, ny)

	nx, ny = m.ToNormalized(960, 540)
	assert.InDelta(t, 500, nx, 1)
	assert.InDelta(t, 500, ny, 1)
}

func TestLetterboxOffsetsTallScreen(t *testing.T) {
	// A portrait phone screen pads left and right instead.
	m, err := NewMapper(schemas.Resolution{Width: 1080, Height: 1920})
	require.NoError(t, err)

	nx, ny := m.ToNormalized(540, 960)
	assert.InDelta(t, 500, nx, 1)
	assert.InDelta(t, 500, ny, 1)

	nx, _ = m.ToNormalized(0, 0)
	assert.Equal(t, 219, nx)
}

func TestRoundTripStaysWithinOnePixel(t *testing.T) {
	m, err := NewMapper(schemas.Resolution{Width: 1366, Height: 768})
	require.NoError(t, err)

	for _, p := range [][2]int{{0, 0}, {683, 384}, {1365, 767}, {100, 700}} {
		nx, ny := m.ToNormalized(p[0], p[1])
		dx, dy := m.ToDevice(nx, ny)
		assert.InDelta(t, p[0], dx, 2.5, "x round trip for %v", p)
		assert.InDelta(t, p[1], dy, 2.5, "y round trip for %v", p)
	}
}

func TestToDeviceClampsToBounds(t *testing.T) {
	m, err := NewMapper(schemas.Resolution{Width: 1920, Height: 1080})
	require.NoError(t, err)

	// Points inside the letterbox padding clamp to the device edge.
	_, dy := m.ToDevice(500, 0)
	assert.Equal(t, 0, dy)
	dx, dy := m.ToDevice(999, 999)
	assert.Less(t, dx, 1920)
	assert.Less(t, dy, 1080)
}

func TestDeviceActionConvertsCoordinateFields(t *testing.T) {
	m, err := NewMapper(schemas.Resolution{Width: 2000, Height: 2000})
	require.NoError(t, err)

	click := m.DeviceAction(schemas.Action{Kind: schemas.ActionClick, X: 500, Y: 500, Button: "right"})
	assert.Equal(t, 1000, click.X)
	assert.Equal(t, 1000, click.Y)
	assert.Equal(t, "right", click.Button)

	drag := m.DeviceAction(schemas.Action{Kind: schemas.ActionDrag, StartX: 100, StartY: 100, EndX: 900, EndY: 900})
	assert.Equal(t, 200, drag.StartX)
	assert.Equal(t, 1800, drag.EndX)

	scroll := m.DeviceAction(schemas.Action{Kind: schemas.ActionScroll, Direction: "down", Amount: 3, X: 250, Y: 250})
	assert.Equal(t, 500, scroll.X)
	assert.Equal(t, 3, scroll.Amount, "scroll amount is not coordinate data")

	// Non-coordinate actions pass through untouched.
	typed := schemas.Action{Kind: schemas.ActionTypeText, Text: "hello"}
	if diff := cmp.Diff(typed, m.DeviceAction(typed)); diff != "" {
		t.Fatalf("type_text should pass through unchanged (-want +got):\n%s", diff)
	}
}
