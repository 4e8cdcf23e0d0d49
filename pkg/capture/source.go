package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/sudorandom/packet-stream/pkg/traffic"
)

// LiveConfig selects the interface and filter for a live capture.
type LiveConfig struct {
	Iface       string
	SnapLen     int32
	Promiscuous bool
	BPF         string
}

// Stats are running counters for a Source.
type Stats struct {
	Packets  uint64
	Observed uint64
	Skipped  uint64
}

// Source produces observations from a pcap handle, live or offline.
type Source struct {
	name   string
	handle *pcap.Handle
	pace   bool

	packets  atomic.Uint64
	observed atomic.Uint64
	skipped  atomic.Uint64
}

// Live opens iface in immediate mode so packets are delivered as soon as they arrive.
func Live(cfg LiveConfig) (*Source, error) {
	if cfg.Iface == "" {
		return nil, errors.New("capture: no interface given")
	}
	snap := cfg.SnapLen
	if snap <= 0 {
		snap = 1600
	}

	inactive, err := pcap.NewInactiveHandle(cfg.Iface)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Iface, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(int(snap)); err != nil {
		return nil, fmt.Errorf("snaplen: %w", err)
	}
	if err := inactive.SetPromisc(cfg.Promiscuous); err != nil {
		return nil, fmt.Errorf("promiscuous: %w", err)
	}
	if err := inactive.SetImmediateMode(true); err != nil {
		return nil, fmt.Errorf("immediate mode: %w", err)
	}
	if err := inactive.SetTimeout(100 * time.Millisecond); err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("activate %s: %w", cfg.Iface, err)
	}
	if cfg.BPF != "" {
		if err := handle.SetBPFFilter(cfg.BPF); err != nil {
			handle.Close()
			return nil, fmt.Errorf("bpf filter: %w", err)
		}
	}
	log.Printf("[CAPTURE] Listening on %s (snaplen %d, filter %q)", cfg.Iface, snap, cfg.BPF)
	return &Source{name: cfg.Iface, handle: handle}, nil
}

// Offline replays a pcap file. With pace set, packets are released at the
// rate they were captured instead of as fast as possible.
func Offline(path string, pace bool) (*Source, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	log.Printf("[CAPTURE] Reading packets from %s (paced: %v)", path, pace)
	return &Source{name: path, handle: handle, pace: pace}, nil
}

func (s *Source) Close() {
	s.handle.Close()
}

func (s *Source) Stats() Stats {
	return Stats{
		Packets:  s.packets.Load(),
		Observed: s.observed.Load(),
		Skipped:  s.skipped.Load(),
	}
}

// Run feeds every IP packet into sink until ctx is cancelled or the source is
// exhausted. It returns nil at end of file and ctx.Err() on cancellation.
func (s *Source) Run(ctx context.Context, sink traffic.Sink) error {
	src := gopacket.NewPacketSource(s.handle, s.handle.LinkType())
	src.NoCopy = true
	src.Lazy = true

	var first time.Time
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-src.Packets():
			if !ok {
				log.Printf("[CAPTURE] %s exhausted after %d packets", s.name, s.packets.Load())
				return nil
			}
			n := s.packets.Add(1)
			if n%100000 == 0 {
				log.Printf("[CAPTURE] %d packets read from %s...", n, s.name)
			}

			if s.pace {
				ts := pkt.Metadata().Timestamp
				if first.IsZero() {
					first = ts
				}
				if wait := ts.Sub(first) - time.Since(start); wait > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(wait):
					}
				}
			}

			o, err := ParsePacket(pkt)
			if err != nil {
				s.skipped.Add(1)
				continue
			}
			s.observed.Add(1)
			sink.Send(o)
		}
	}
}

// Device is a capturable interface and its addresses.
type Device struct {
	Name        string
	Description string
	Addresses   []string
}

// Devices lists the interfaces pcap can open.
func Devices() ([]Device, error) {
	ifaces, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	devices := make([]Device, 0, len(ifaces))
	for _, iface := range ifaces {
		d := Device{Name: iface.Name, Description: iface.Description}
		for _, a := range iface.Addresses {
			d.Addresses = append(d.Addresses, a.IP.String())
		}
		devices = append(devices, d)
	}
	return devices, nil
}
