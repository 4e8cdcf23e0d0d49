// Package capture reads packets off an interface or a pcap file and turns them
// into traffic observations.
package capture

import (
	"errors"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/sudorandom/packet-stream/pkg/traffic"
)

// ErrNotIP is returned for frames without an IPv4 or IPv6 header.
var ErrNotIP = errors.New("not an IP packet")

// ParsePacket extracts the addresses and IP payload length from a decoded packet.
func ParsePacket(packet gopacket.Packet) (traffic.Observation, error) {
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		src, ok1 := netip.AddrFromSlice(ip.SrcIP.To4())
		dst, ok2 := netip.AddrFromSlice(ip.DstIP.To4())
		if !ok1 || !ok2 {
			return traffic.Observation{}, ErrNotIP
		}
		headerLen := uint16(ip.IHL) * 4
		var payload uint16
		if ip.Length > headerLen {
			payload = ip.Length - headerLen
		}
		return traffic.Observation{Source: src, Dest: dst, PayloadLen: payload}, nil
	}
	if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		src, ok1 := netip.AddrFromSlice(ip.SrcIP.To16())
		dst, ok2 := netip.AddrFromSlice(ip.DstIP.To16())
		if !ok1 || !ok2 {
			return traffic.Observation{}, ErrNotIP
		}
		return traffic.Observation{Source: src, Dest: dst, PayloadLen: ip.Length}, nil
	}
	return traffic.Observation{}, ErrNotIP
}
