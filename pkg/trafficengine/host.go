package trafficengine

import (
	"net/netip"

	"github.com/sudorandom/packet-stream/pkg/geom"
	"github.com/sudorandom/packet-stream/pkg/hostinfo"
)

// HostVisual is the on-screen state of one host.
type HostVisual struct {
	Address  netip.Addr
	Position geom.Point
	Radius   float64
	Info     hostinfo.Info
}

func (h *HostVisual) Contains(pt geom.Point) bool {
	return h.Position.Distance(pt) < h.Radius
}

func (h *HostVisual) MoveTo(pt geom.Point) {
	h.Position = pt
}

// Label is the short name shown next to the host.
func (h *HostVisual) Label() string {
	switch {
	case h.Info.Label != "":
		return h.Info.Label
	case h.Info.Org != "":
		return h.Info.Org
	}
	return h.Address.String()
}
