package hostbridge

import (
	"time"

	"github.com/subgrids/extension/internal/subgrid"
	"github.com/subgrids/extension/pkg/core"
	"github.com/subgrids/extension/pkg/protocol"
)

// HighlightDuration is how long the host flashes a newly attached object.
const HighlightDuration = 300 * time.Millisecond

// Renderer forwards subgrid drawing to the host canvas.
type Renderer struct {
	b     *Bridge
	color string
	alpha float64
}

var _ subgrid.Renderer = (*Renderer)(nil)

// Renderer returns a renderer drawing grid lines in color at alpha.
func (b *Bridge) Renderer(color string, alpha float64) *Renderer {
	return &Renderer{b: b, color: color, alpha: alpha}
}

func (r *Renderer) Draw(f *subgrid.Frame) {
	rec := f.Record()
	r.send(protocol.TypeDrawGrid, protocol.DrawGridPayload{
		Grid:       rec.Name,
		Position:   rec.Position,
		Dimensions: rec.Dimensions,
		Color:      r.color,
		Alpha:      r.alpha,
	})
}

func (r *Renderer) Erase(f *subgrid.Frame) {
	r.send(protocol.TypeEraseGrid, protocol.GridPayload{Grid: f.Name()})
}

func (r *Renderer) Highlight(f *subgrid.Frame, ref core.ObjectRef) {
	r.send(protocol.TypeHighlight, protocol.HighlightPayload{
		Grid:     f.Name(),
		Object:   ref,
		Duration: HighlightDuration.Milliseconds(),
	})
}

func (r *Renderer) send(msgType string, payload any) {
	if err := r.b.sendEnvelope(msgType, "", payload); err != nil {
		r.b.logger.Warn("failed to send render message", "type", msgType, "error", err)
	}
}
