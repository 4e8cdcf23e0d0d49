// Package trafficengine turns a stream of packet observations into host
// statistics and a bounded set of animated particles, and renders them with ebiten.
package trafficengine

import (
	"bytes"
	"fmt"
	"image/color"
	"math/rand"
	"net/netip"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/sudorandom/packet-stream/pkg/geom"
	"github.com/sudorandom/packet-stream/pkg/hostinfo"
	"github.com/sudorandom/packet-stream/pkg/traffic"
)

// minSpawnDistance guards against launching a particle with no direction.
const minSpawnDistance = 1e-9

// HostResolver describes a host the first time it is seen. *hostinfo.Resolver
// implements it. Resolve runs on a worker goroutine, never on the game loop.
type HostResolver interface {
	Resolve(addr netip.Addr) hostinfo.Info
}

// Pointer is the mouse state for one frame.
type Pointer struct {
	X, Y float64
	Down bool
}

type Engine struct {
	Width, Height int
	TPS           int

	// FrameCaptureDir is where the S key writes screenshots. Empty disables capture.
	FrameCaptureDir string

	settings   Settings
	queue      *traffic.Queue
	rng        *rand.Rand
	resolver   *resolveWorker
	resolved   []resolvedHost
	unresolved int
	registry   *traffic.Registry

	hosts     map[netip.Addr]*HostVisual
	hostOrder []*HostVisual
	particles []Particle
	inbox     []traffic.Observation

	picked  *HostVisual
	tooltip *HostVisual
	dropped uint64

	// Metrics (windowed, one sample per second)
	now           func() time.Time
	windowPackets int
	windowBytes   uint64
	lastSample    time.Time
	history       []RateSample

	proj       projection
	bgImage    *ebiten.Image
	fontSource *text.GoTextFaceSource
	monoSource *text.GoTextFaceSource

	captureRequested bool
}

// RateSample is the traffic seen during one second.
type RateSample struct {
	Packets int
	Bytes   uint64
}

const historyLen = 60

var (
	ColorBackground = color.RGBA{8, 10, 15, 255}
	ColorHost       = color.RGBA{120, 130, 150, 255}
	ColorPrivate    = color.RGBA{0, 191, 255, 255}  // Sky Blue
	ColorFirstSeen  = color.RGBA{173, 255, 47, 255} // Lime Green
	ColorHighlight  = color.RGBA{255, 140, 0, 255}  // Orange
	ColorParticle   = color.RGBA{230, 230, 230, 255}
	ColorPicked     = color.RGBA{255, 255, 0, 255} // Yellow
	ColorDebug      = color.RGBA{255, 50, 50, 255} // Red
)

// NewEngine builds an engine that drains queue once per tick. rng drives host
// placement and launch jitter; resolver may be nil. With a resolver, Close
// stops its worker.
func NewEngine(width, height int, queue *traffic.Queue, rng *rand.Rand, resolver HostResolver) *Engine {
	s, _ := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	m, _ := text.NewGoTextFaceSource(bytes.NewReader(gomono.TTF))

	e := &Engine{
		Width:      width,
		Height:     height,
		TPS:        60,
		settings:   DefaultSettings(),
		queue:      queue,
		rng:        rng,
		registry:   traffic.NewRegistry(),
		hosts:      make(map[netip.Addr]*HostVisual),
		now:        time.Now,
		lastSample: time.Now(),
		history:    make([]RateSample, 0, historyLen),
		proj:       newProjection(width, height),
		fontSource: s,
		monoSource: m,
	}
	if resolver != nil {
		e.resolver = newResolveWorker(resolver)
	}
	return e
}

// Close stops the resolver worker. Lookups still in flight are discarded.
func (e *Engine) Close() {
	if e.resolver != nil {
		e.resolver.close()
	}
}

// Settings returns the live settings. Changes take effect on the next Tick.
func (e *Engine) Settings() *Settings {
	return &e.settings
}

func (e *Engine) Registry() *traffic.Registry {
	return e.registry
}

// Tick advances the simulation by one frame.
func (e *Engine) Tick(ptr Pointer) {
	e.settings.clamp()
	s := e.settings

	batch := e.queue.Drain(e.inbox)
	for _, o := range batch {
		e.ingest(o, &s)
	}
	e.inbox = batch
	e.applyResolved(&s)
	e.sampleRates()

	if !s.Running {
		return
	}

	e.interact(geom.Point{X: ptr.X, Y: ptr.Y}, ptr.Down)

	for i := range e.particles {
		e.particles[i].Step()
	}

	live := e.particles[:0]
	for _, p := range e.particles {
		if !p.Finished(s.ArrivalDistance) {
			live = append(live, p)
		}
	}
	clear(e.particles[len(live):])
	e.particles = live
}

func (e *Engine) ingest(o traffic.Observation, s *Settings) {
	e.registry.Record(o)
	e.windowPackets++
	e.windowBytes += uint64(o.PayloadLen)

	e.register(o.Source, s)
	e.register(o.Dest, s)

	if !s.Running {
		return
	}
	src, dst := e.mustHost(o.Source), e.mustHost(o.Dest)
	if src.Position.Distance(dst.Position) < minSpawnDistance {
		return
	}
	if uint32(len(e.particles)) >= s.MaxVisibleParticles {
		e.dropped++
		return
	}
	e.particles = append(e.particles, newParticle(src, dst, s.LaunchAngleJitter, s.LaunchSpeed, e.rng))
}

// register creates the visual for addr on first sight. The host starts with an
// empty Info; the resolver's answer is applied by a later Tick.
func (e *Engine) register(addr netip.Addr, s *Settings) *HostVisual {
	if h, ok := e.hosts[addr]; ok {
		return h
	}
	h := &HostVisual{Address: addr, Radius: s.HostRadius}
	h.Position = e.placeHost(h.Info, s.GeoLayout)
	e.hosts[addr] = h
	e.hostOrder = append(e.hostOrder, h)
	if e.resolver != nil {
		e.resolver.request(addr)
		e.unresolved++
	}
	return h
}

// applyResolved attaches finished lookups to their hosts. In the geo layout a
// host that gained a location moves there, and particles bound for it follow.
func (e *Engine) applyResolved(s *Settings) {
	if e.resolver == nil {
		return
	}
	done := e.resolver.drain(e.resolved)
	for _, r := range done {
		e.unresolved--
		h := e.mustHost(r.Address)
		h.Info = r.Info
		if s.GeoLayout && h.Info.HasLocation {
			h.MoveTo(e.placeHost(h.Info, true))
			e.retargetTo(h)
		}
	}
	e.resolved = done
}

// Unresolved is the number of hosts still waiting on the resolver.
func (e *Engine) Unresolved() int { return e.unresolved }

func (e *Engine) retargetTo(h *HostVisual) {
	for i := range e.particles {
		if e.particles[i].DestAddr == h.Address {
			e.particles[i].Retarget(h.Position)
		}
	}
}

// placeHost picks a uniformly random screen position, or the projected
// location plus a little jitter when the geo layout is on and the host has one.
func (e *Engine) placeHost(info hostinfo.Info, geo bool) geom.Point {
	pt := geom.Point{X: e.rng.Float64() * float64(e.Width), Y: e.rng.Float64() * float64(e.Height)}
	if geo && info.HasLocation {
		x, y := e.proj.Project(info.Lat, info.Lng)
		pt = geom.Point{X: x + (e.rng.Float64()-0.5)*12, Y: y + (e.rng.Float64()-0.5)*12}
	}
	return pt
}

func (e *Engine) mustHost(addr netip.Addr) *HostVisual {
	h, ok := e.hosts[addr]
	if !ok {
		panic(fmt.Sprintf("trafficengine: host %s is not registered", addr))
	}
	return h
}

func (e *Engine) interact(pt geom.Point, down bool) {
	if down && e.picked != nil {
		e.picked.MoveTo(pt)
		e.retargetTo(e.picked)
	} else {
		e.picked = nil
	}

	if e.picked != nil {
		e.tooltip = e.picked
		return
	}
	e.tooltip = e.hitTest(pt)
	if down && e.tooltip != nil {
		e.picked = e.tooltip
	}
}

// hitTest returns the first host, in registration order, under pt.
func (e *Engine) hitTest(pt geom.Point) *HostVisual {
	for _, h := range e.hostOrder {
		if h.Contains(pt) {
			return h
		}
	}
	return nil
}

// relayout re-places every host for the current layout mode and points
// in-flight particles at their destination's new position.
func (e *Engine) relayout() {
	for _, h := range e.hostOrder {
		h.MoveTo(e.placeHost(h.Info, e.settings.GeoLayout))
	}
	for i := range e.particles {
		e.particles[i].Retarget(e.mustHost(e.particles[i].DestAddr).Position)
	}
}

func (e *Engine) sampleRates() {
	now := e.now()
	if now.Sub(e.lastSample) < time.Second {
		return
	}
	e.lastSample = now
	e.history = append(e.history, RateSample{Packets: e.windowPackets, Bytes: e.windowBytes})
	if len(e.history) > historyLen {
		e.history = e.history[1:]
	}
	e.windowPackets, e.windowBytes = 0, 0
}

// Tooltip returns the host under the pointer, or the host being dragged.
func (e *Engine) Tooltip() (netip.Addr, *traffic.HostRecord, bool) {
	if e.tooltip == nil {
		return netip.Addr{}, nil, false
	}
	rec, ok := e.registry.Lookup(e.tooltip.Address)
	if !ok {
		panic(fmt.Sprintf("trafficengine: host %s has a visual but no record", e.tooltip.Address))
	}
	return e.tooltip.Address, rec, true
}

func (e *Engine) ParticleCount() int { return len(e.particles) }

func (e *Engine) HostCount() int { return len(e.hostOrder) }

// Particles is the live set in render order. Callers must not modify it.
func (e *Engine) Particles() []Particle { return e.particles }

// Hosts returns host visuals in registration order.
func (e *Engine) Hosts() []*HostVisual { return e.hostOrder }

// Dropped counts particle spawns refused because the live set was full.
func (e *Engine) Dropped() uint64 { return e.dropped }

// History returns up to a minute of per-second rate samples, oldest first.
func (e *Engine) History() []RateSample { return e.history }

func (e *Engine) Layout(w, h int) (int, int) { return e.Width, e.Height }
