package trafficengine

import (
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

func (e *Engine) Draw(screen *ebiten.Image) {
	if e.settings.GeoLayout && e.bgImage != nil {
		screen.DrawImage(e.bgImage, nil)
	} else {
		screen.Fill(ColorBackground)
	}

	e.drawHosts(screen)
	e.drawParticles(screen)
	if e.settings.DrawDebug {
		e.drawDebug(screen)
	}
	e.drawStatus(screen)
	if e.settings.ShowTooltip {
		e.drawTooltip(screen)
	}

	if e.captureRequested {
		e.captureRequested = false
		e.captureFrame(screen, time.Now())
	}
}

func hostColor(h *HostVisual) color.RGBA {
	switch {
	case h.Info.Highlight:
		return ColorHighlight
	case h.Info.FirstSeen:
		return ColorFirstSeen
	case h.Info.Private:
		return ColorPrivate
	}
	return ColorHost
}

func (e *Engine) drawHosts(screen *ebiten.Image) {
	var face *text.GoTextFace
	if e.fontSource != nil {
		face = &text.GoTextFace{Source: e.fontSource, Size: 11}
	}
	for _, h := range e.hostOrder {
		x, y, r := float32(h.Position.X), float32(h.Position.Y), float32(h.Radius)
		c := hostColor(h)
		vector.DrawFilledCircle(screen, x, y, r, color.RGBA{c.R / 3, c.G / 3, c.B / 3, 200}, true)
		vector.StrokeCircle(screen, x, y, r, 1.5, c, true)
		if h == e.picked {
			vector.StrokeCircle(screen, x, y, r+4, 1, ColorPicked, true)
		}
		if face != nil && (h.Info.Label != "" || h.Info.Highlight) {
			op := &text.DrawOptions{}
			op.GeoM.Translate(h.Position.X+h.Radius+4, h.Position.Y-6)
			op.ColorScale.Scale(1, 1, 1, 0.7)
			text.Draw(screen, h.Label(), face, op)
		}
	}
}

func (e *Engine) drawParticles(screen *ebiten.Image) {
	for _, p := range e.particles {
		c := ColorParticle
		if dst := e.mustHost(p.DestAddr); dst.Info.Highlight {
			c = ColorHighlight
		}
		vector.DrawFilledCircle(screen, float32(p.Position.X), float32(p.Position.Y), 2, c, false)
	}
}

// drawDebug draws, per particle, the line to its destination, its velocity
// scaled up, and the path back to where it launched, plus every host outline.
func (e *Engine) drawDebug(screen *ebiten.Image) {
	for _, p := range e.particles {
		px, py := float32(p.Position.X), float32(p.Position.Y)
		vector.StrokeLine(screen, px, py, float32(p.Destination.X), float32(p.Destination.Y), 1, color.RGBA{255, 50, 50, 90}, false)
		v := p.Velocity.Scale(10)
		vector.StrokeLine(screen, px, py, px+float32(v.X), py+float32(v.Y), 1, ColorFirstSeen, false)
		vector.StrokeLine(screen, float32(p.Source.X), float32(p.Source.Y), px, py, 1, color.RGBA{0, 100, 255, 90}, false)
	}
	for _, h := range e.hostOrder {
		vector.StrokeRect(screen, float32(h.Position.X-h.Radius), float32(h.Position.Y-h.Radius),
			float32(2*h.Radius), float32(2*h.Radius), 1, ColorDebug, false)
	}
}
