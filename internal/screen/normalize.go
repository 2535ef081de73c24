// File: internal/screen/normalize.go
package screen

import (
	"fmt"

	"github.com/quantum-agi/sdk-go/api/schemas"
)

// Mapper converts between the fixed normalized observation space and actual
// device pixel coordinates, both directions. One Mapper is built per step from
// the resolution snapshot taken at capture time, so capture and dispatch
// always agree on geometry; if the display changes mid-step the whole step is
// re-captured rather than mapped against stale dimensions.
type Mapper struct {
	res     schemas.Resolution
	scale   float64
	offsetX int
	offsetY int
}

// NewMapper builds a mapper for the given device resolution. The device image
// is scaled with preserved aspect ratio into the normalized space and centered,
// padding the remainder; the mapper records the resulting scale and offsets.
func NewMapper(res schemas.Resolution) (Mapper, error) {
	if !res.Valid() {
		return Mapper{}, fmt.Errorf("invalid device resolution %dx%d", res.Width, res.Height)
	}

	scale := min(
		float64(schemas.NormalizedWidth)/float64(res.Width),
		float64(schemas.NormalizedHeight)/float64(res.Height),
	)
	scaledW := int(float64(res.Width) * scale)
	scaledH := int(float64(res.Height) * scale)

	return Mapper{
		res:     res,
		scale:   scale,
		offsetX: (schemas.NormalizedWidth - scaledW) / 2,
		offsetY: (schemas.NormalizedHeight - scaledH) / 2,
	}, nil
}

// Resolution returns the device resolution this mapper was built from.
func (m Mapper) Resolution() schemas.Resolution { return m.res }

// ToDevice maps a point from normalized space to device pixels, clamping to
// the device bounds.
func (m Mapper) ToDevice(x, y int) (int, int) {
	dx := int(float64(x-m.offsetX) / m.scale)
	dy := int(float64(y-m.offsetY) / m.scale)
	return clamp(dx, m.res.Width-1), clamp(dy, m.res.Height-1)
}

// ToNormalized maps a device pixel point into normalized space, clamping to
// the normalized bounds.
func (m Mapper) ToNormalized(x, y int) (int, int) {
	nx := int(float64(x)*m.scale) + m.offsetX
	ny := int(float64(y)*m.scale) + m.offsetY
	return clamp(nx, schemas.NormalizedWidth-1), clamp(ny, schemas.NormalizedHeight-1)
}

// DeviceAction returns a copy of the action with every coordinate converted to
// device pixels. Scroll amount/direction and wait duration are not coordinate
// data and pass through unscaled.
func (m Mapper) DeviceAction(a schemas.Action) schemas.Action {
	out := a
	switch a.Kind {
	case schemas.ActionClick, schemas.ActionDoubleClick, schemas.ActionRightClick, schemas.ActionScroll:
		out.X, out.Y = m.ToDevice(a.X, a.Y)
	case schemas.ActionDrag:
		out.StartX, out.StartY = m.ToDevice(a.StartX, a.StartY)
		out.EndX, out.EndY = m.ToDevice(a.EndX, a.EndY)
	}
	return out
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
