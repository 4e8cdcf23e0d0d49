package trafficengine

import (
	"math/rand"
	"net/netip"

	"github.com/sudorandom/packet-stream/pkg/geom"
)

// Particle is one packet in flight between two hosts.
type Particle struct {
	Source      geom.Point
	Position    geom.Point
	Destination geom.Point
	Velocity    geom.Vector

	SourceAddr netip.Addr
	DestAddr   netip.Addr
}

// newParticle launches from src towards dst, with the heading rotated by a
// uniform random angle in [-jitter, +jitter]. src and dst must not coincide.
func newParticle(src, dst *HostVisual, jitter, speed float64, rng *rand.Rand) Particle {
	angle := 0.0
	if jitter > 0 {
		angle = (rng.Float64()*2 - 1) * jitter
	}
	return Particle{
		Source:      src.Position,
		Position:    src.Position,
		Destination: dst.Position,
		Velocity:    geom.UnitVector(src.Position, dst.Position).Rotate(angle).Scale(speed),
		SourceAddr:  src.Address,
		DestAddr:    dst.Address,
	}
}

// Step turns the velocity towards the destination and advances one tick. The
// turn is the heading error divided by the remaining distance, so the arc
// tightens as the particle closes in.
func (p *Particle) Step() {
	dist := p.Position.Distance(p.Destination)
	if dist > 0 && p.Velocity.Len() > 0 {
		angle := geom.SignedAngle(geom.UnitVector(p.Position, p.Destination), p.Velocity.Unit())
		p.Velocity = p.Velocity.Rotate(angle / dist)
	}
	p.Position = p.Position.Add(p.Velocity)
}

// Retarget moves the destination without touching the source or velocity.
func (p *Particle) Retarget(pt geom.Point) {
	p.Destination = pt
}

// Finished reports whether the particle has arrived or has overshot, meaning
// the direction to its destination now points against the original
// source-to-destination axis.
func (p *Particle) Finished(arrival float64) bool {
	dist := p.Position.Distance(p.Destination)
	if dist == 0 || dist < arrival {
		return true
	}
	if p.Source == p.Destination {
		return false
	}
	axis := geom.UnitVector(p.Source, p.Destination)
	return geom.Dot(geom.UnitVector(p.Position, p.Destination), axis) < 0
}
