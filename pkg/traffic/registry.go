// Package traffic holds the packet observations fed in by capture and the per-host
// statistics aggregated from them.
package traffic

import (
	"fmt"
	"net/netip"
	"sort"
)

// Observation is one parsed IP packet: who sent it, who it was for and how big it was.
type Observation struct {
	Source     netip.Addr
	Dest       netip.Addr
	PayloadLen uint16
}

// Statistics are monotonically growing packet and byte counters.
type Statistics struct {
	PacketsSent uint32
	PacketsRecv uint32
	BytesSent   uint64
	BytesRecv   uint64
}

func (s *Statistics) addSent(n uint16) {
	s.PacketsSent++
	s.BytesSent += uint64(n)
}

func (s *Statistics) addRecv(n uint16) {
	s.PacketsRecv++
	s.BytesRecv += uint64(n)
}

// Add accumulates o into s.
func (s *Statistics) Add(o Statistics) {
	s.PacketsSent += o.PacketsSent
	s.PacketsRecv += o.PacketsRecv
	s.BytesSent += o.BytesSent
	s.BytesRecv += o.BytesRecv
}

// Bytes is the total volume in both directions.
func (s Statistics) Bytes() uint64 {
	return s.BytesSent + s.BytesRecv
}

// Packets is the total packet count in both directions.
func (s Statistics) Packets() uint64 {
	return uint64(s.PacketsSent) + uint64(s.PacketsRecv)
}

// HostRecord aggregates everything observed for one address.
// Totals always equals the sum of the SentTo and RecvFrom entries.
type HostRecord struct {
	Address  netip.Addr
	Totals   Statistics
	RecvFrom map[netip.Addr]*Statistics
	SentTo   map[netip.Addr]*Statistics
}

func newHostRecord(addr netip.Addr) *HostRecord {
	return &HostRecord{
		Address:  addr,
		RecvFrom: make(map[netip.Addr]*Statistics),
		SentTo:   make(map[netip.Addr]*Statistics),
	}
}

func (h *HostRecord) recordSent(o Observation) {
	if o.Source != h.Address {
		panic(fmt.Sprintf("traffic: packet %s->%s does not belong to sender %s", o.Source, o.Dest, h.Address))
	}
	h.Totals.addSent(o.PayloadLen)
	peer, ok := h.SentTo[o.Dest]
	if !ok {
		peer = &Statistics{}
		h.SentTo[o.Dest] = peer
	}
	peer.addSent(o.PayloadLen)
}

func (h *HostRecord) recordRecv(o Observation) {
	if o.Dest != h.Address {
		panic(fmt.Sprintf("traffic: packet %s->%s does not belong to receiver %s", o.Source, o.Dest, h.Address))
	}
	h.Totals.addRecv(o.PayloadLen)
	peer, ok := h.RecvFrom[o.Source]
	if !ok {
		peer = &Statistics{}
		h.RecvFrom[o.Source] = peer
	}
	peer.addRecv(o.PayloadLen)
}

// PeerStats is the traffic exchanged with a single peer, both directions merged.
type PeerStats struct {
	Address netip.Addr
	Stats   Statistics
}

// TopPeers returns up to n peers ordered by total bytes exchanged, largest first.
// n <= 0 returns all peers.
func (h *HostRecord) TopPeers(n int) []PeerStats {
	merged := make(map[netip.Addr]*Statistics, len(h.SentTo)+len(h.RecvFrom))
	for addr, s := range h.SentTo {
		m := &Statistics{}
		m.Add(*s)
		merged[addr] = m
	}
	for addr, s := range h.RecvFrom {
		m, ok := merged[addr]
		if !ok {
			m = &Statistics{}
			merged[addr] = m
		}
		m.Add(*s)
	}

	peers := make([]PeerStats, 0, len(merged))
	for addr, s := range merged {
		peers = append(peers, PeerStats{Address: addr, Stats: *s})
	}
	sort.Slice(peers, func(i, j int) bool {
		bi, bj := peers[i].Stats.Bytes(), peers[j].Stats.Bytes()
		if bi != bj {
			return bi > bj
		}
		return peers[i].Address.Less(peers[j].Address)
	})
	if n > 0 && len(peers) > n {
		peers = peers[:n]
	}
	return peers
}

// Registry owns one HostRecord per address ever observed. It is not safe for
// concurrent use; the simulation loop is its only writer.
type Registry struct {
	hosts   map[netip.Addr]*HostRecord
	packets uint64
}

func NewRegistry() *Registry {
	return &Registry{hosts: make(map[netip.Addr]*HostRecord, 500)}
}

func (r *Registry) resolve(addr netip.Addr) *HostRecord {
	h, ok := r.hosts[addr]
	if !ok {
		h = newHostRecord(addr)
		r.hosts[addr] = h
	}
	return h
}

// Record applies o to the sender and receiver records, creating them on first sight.
// Self traffic (Source == Dest) counts as both sent and received on the same record.
func (r *Registry) Record(o Observation) {
	r.resolve(o.Source).recordSent(o)
	r.resolve(o.Dest).recordRecv(o)
	r.packets++
}

// Lookup returns the record for addr, if it has been observed.
func (r *Registry) Lookup(addr netip.Addr) (*HostRecord, bool) {
	h, ok := r.hosts[addr]
	return h, ok
}

// Len is the number of distinct hosts.
func (r *Registry) Len() int {
	return len(r.hosts)
}

// Packets is the number of observations recorded.
func (r *Registry) Packets() uint64 {
	return r.packets
}

// Hosts returns every record ordered by total bytes, busiest first.
func (r *Registry) Hosts() []*HostRecord {
	out := make([]*HostRecord, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		bi, bj := out[i].Totals.Bytes(), out[j].Totals.Bytes()
		if bi != bj {
			return bi > bj
		}
		return out[i].Address.Less(out[j].Address)
	})
	return out
}
