package trafficengine

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

var (
	colorPanel   = color.RGBA{0, 0, 0, 100}
	colorOutline = color.RGBA{36, 42, 53, 255}
	colorAccent  = color.RGBA{0, 191, 255, 255}
	colorBytes   = color.RGBA{173, 255, 47, 255}
)

// panel draws the styled box used by every overlay and its title.
func (e *Engine) panel(screen *ebiten.Image, x, y, w, h, fontSize float64, title string) {
	vector.DrawFilledRect(screen, float32(x), float32(y), float32(w), float32(h), colorPanel, false)
	vector.StrokeRect(screen, float32(x), float32(y), float32(w), float32(h), 1, colorOutline, false)
	vector.DrawFilledRect(screen, float32(x), float32(y), 4, float32(fontSize+10), colorAccent, false)

	titleFace := &text.GoTextFace{Source: e.fontSource, Size: fontSize * 0.8}
	op := &text.DrawOptions{}
	op.GeoM.Translate(x+15, y+8)
	op.ColorScale.Scale(1, 1, 1, 0.5)
	text.Draw(screen, title, titleFace, op)
}

func (e *Engine) drawLines(screen *ebiten.Image, lines []string, x, y, fontSize float64, alpha float32) {
	face := &text.GoTextFace{Source: e.monoSource, Size: fontSize}
	for i, line := range lines {
		op := &text.DrawOptions{}
		op.GeoM.Translate(x, y+float64(i)*fontSize*1.4)
		op.ColorScale.Scale(1, 1, 1, alpha)
		text.Draw(screen, line, face, op)
	}
}

func (e *Engine) statusLines() []string {
	s := e.settings
	state := "RUNNING"
	if !s.Running {
		state = "PAUSED"
	}
	var rate RateSample
	if len(e.history) > 0 {
		rate = e.history[len(e.history)-1]
	}
	return []string{
		fmt.Sprintf("%-9s hosts %d", state, len(e.hostOrder)),
		fmt.Sprintf("particles %d/%d", len(e.particles), s.MaxVisibleParticles),
		fmt.Sprintf("dropped   %d", e.dropped),
		fmt.Sprintf("packets   %d", e.registry.Packets()),
		fmt.Sprintf("rate      %d pkt/s %s/s", rate.Packets, humanize.Bytes(rate.Bytes)),
		fmt.Sprintf("jitter %.2f speed %.2f", s.LaunchAngleJitter, s.LaunchSpeed),
	}
}

func (e *Engine) drawStatus(screen *ebiten.Image) {
	if e.fontSource == nil || e.monoSource == nil {
		return
	}
	margin, fontSize := 20.0, 14.0
	if e.Width > 2000 {
		margin, fontSize = 40.0, 28.0
	}

	lines := e.statusLines()
	boxW := fontSize * 22
	boxH := fontSize*2.2 + float64(len(lines))*fontSize*1.4
	e.panel(screen, margin, margin, boxW, boxH, fontSize, "PACKET STREAM")
	e.drawLines(screen, lines, margin+15, margin+fontSize*2, fontSize, 0.8)

	graphH := fontSize * 5
	gy := margin + boxH + 10
	e.panel(screen, margin, gy, boxW, graphH+fontSize*2.5, fontSize, "TRAFFIC (1m)")
	e.drawTrendlines(screen, margin+10, gy+fontSize*2, boxW-20, graphH)

	help := "space pause  d debug  t tooltip  g geo  up/down max  left/right jitter  [/] speed  s capture  q quit"
	e.drawLines(screen, []string{help}, margin, float64(e.Height)-margin-fontSize, fontSize*0.8, 0.4)
}

// drawTrendlines plots packets and bytes per second on a shared log scale.
func (e *Engine) drawTrendlines(screen *ebiten.Image, gx, gy, graphW, graphH float64) {
	if len(e.history) < 2 {
		return
	}
	logVal := func(v float64) float64 {
		if v <= 0 {
			return 0
		}
		return math.Log10(v + 1.0)
	}

	maxLog := 1.0
	for _, s := range e.history {
		maxLog = math.Max(maxLog, logVal(float64(s.Packets)))
		maxLog = math.Max(maxLog, logVal(float64(s.Bytes)))
	}

	drawLayer := func(getValue func(s RateSample) float64, col color.RGBA) {
		step := graphW / float64(historyLen)
		for i := 0; i < len(e.history)-1; i++ {
			x1, x2 := gx+float64(i)*step, gx+float64(i+1)*step
			y1 := gy + graphH - (logVal(getValue(e.history[i]))/maxLog)*graphH
			y2 := gy + graphH - (logVal(getValue(e.history[i+1]))/maxLog)*graphH
			vector.StrokeLine(screen, float32(x1), float32(y1), float32(x2), float32(y2), 2, col, false)
		}
	}
	drawLayer(func(s RateSample) float64 { return float64(s.Bytes) }, colorBytes)
	drawLayer(func(s RateSample) float64 { return float64(s.Packets) }, colorAccent)
}

// tooltipLines describes the tooltip host: identity, totals and busiest peers.
func (e *Engine) tooltipLines() []string {
	addr, rec, ok := e.Tooltip()
	if !ok {
		return nil
	}
	h := e.mustHost(addr)
	lines := []string{addr.String()}

	var about []string
	for _, s := range []string{h.Info.Label, h.Info.Org, h.Info.CountryName} {
		if s != "" {
			about = append(about, s)
		}
	}
	if h.Info.Private {
		about = append(about, "private")
	}
	if h.Info.FirstSeen {
		about = append(about, "new")
	}
	if len(about) > 0 {
		lines = append(lines, strings.Join(about, " | "))
	}

	t := rec.Totals
	lines = append(lines,
		fmt.Sprintf("sent %d pkts  %s", t.PacketsSent, humanize.Bytes(t.BytesSent)),
		fmt.Sprintf("recv %d pkts  %s", t.PacketsRecv, humanize.Bytes(t.BytesRecv)),
	)
	for _, p := range rec.TopPeers(5) {
		lines = append(lines, fmt.Sprintf("  %-39s %s", p.Address, humanize.Bytes(p.Stats.Bytes())))
	}
	return lines
}

func (e *Engine) drawTooltip(screen *ebiten.Image) {
	if e.fontSource == nil || e.monoSource == nil || e.tooltip == nil {
		return
	}
	lines := e.tooltipLines()
	fontSize := 12.0
	face := &text.GoTextFace{Source: e.monoSource, Size: fontSize}
	boxW := 0.0
	for _, l := range lines {
		w, _ := text.Measure(l, face, 0)
		boxW = math.Max(boxW, w)
	}
	boxW += 30
	boxH := fontSize*2.4 + float64(len(lines))*fontSize*1.4

	x := e.tooltip.Position.X + e.tooltip.Radius + 10
	y := e.tooltip.Position.Y - boxH/2
	if x+boxW > float64(e.Width) {
		x = e.tooltip.Position.X - e.tooltip.Radius - 10 - boxW
	}
	y = math.Max(0, math.Min(y, float64(e.Height)-boxH))

	e.panel(screen, x, y, boxW, boxH, fontSize, "HOST")
	e.drawLines(screen, lines, x+15, y+fontSize*2, fontSize, 0.85)
}
