package traffic

import (
	"math/rand"
	"net/netip"
	"testing"
)

var (
	hostA = netip.MustParseAddr("10.0.0.1")
	hostB = netip.MustParseAddr("10.0.0.2")
	hostC = netip.MustParseAddr("2001:db8::1")
)

func TestRegistryScenario(t *testing.T) {
	r := NewRegistry()
	r.Record(Observation{Source: hostA, Dest: hostB, PayloadLen: 100})
	r.Record(Observation{Source: hostB, Dest: hostA, PayloadLen: 50})

	a, ok := r.Lookup(hostA)
	if !ok {
		t.Fatal("Expected record for A")
	}
	wantA := Statistics{PacketsSent: 1, BytesSent: 100, PacketsRecv: 1, BytesRecv: 50}
	if a.Totals != wantA {
		t.Errorf("Expected A totals %+v, got %+v", wantA, a.Totals)
	}

	b, _ := r.Lookup(hostB)
	wantB := Statistics{PacketsSent: 1, BytesSent: 50, PacketsRecv: 1, BytesRecv: 100}
	if b.Totals != wantB {
		t.Errorf("Expected B totals %+v, got %+v", wantB, b.Totals)
	}

	if got := a.SentTo[hostB]; got == nil || got.BytesSent != 100 || got.PacketsSent != 1 {
		t.Errorf("Expected A.SentTo[B] = 1 packet / 100 bytes, got %+v", got)
	}
	if got := a.RecvFrom[hostB]; got == nil || got.BytesRecv != 50 {
		t.Errorf("Expected A.RecvFrom[B] = 50 bytes, got %+v", got)
	}
	if r.Len() != 2 {
		t.Errorf("Expected 2 hosts, got %d", r.Len())
	}
	if r.Packets() != 2 {
		t.Errorf("Expected 2 packets, got %d", r.Packets())
	}
}

func TestRegistrySelfTraffic(t *testing.T) {
	r := NewRegistry()
	r.Record(Observation{Source: hostC, Dest: hostC, PayloadLen: 64})

	h, _ := r.Lookup(hostC)
	want := Statistics{PacketsSent: 1, BytesSent: 64, PacketsRecv: 1, BytesRecv: 64}
	if h.Totals != want {
		t.Errorf("Expected %+v, got %+v", want, h.Totals)
	}
	if r.Len() != 1 {
		t.Errorf("Expected a single record, got %d", r.Len())
	}
	checkTotalsInvariant(t, h)
}

func TestRegistryIdempotentCreation(t *testing.T) {
	r := NewRegistry()
	r.Record(Observation{Source: hostA, Dest: hostB, PayloadLen: 1})
	first, _ := r.Lookup(hostB)
	r.Record(Observation{Source: hostB, Dest: hostC, PayloadLen: 1})
	second, _ := r.Lookup(hostB)

	if first != second {
		t.Error("Expected the same record for B across observations")
	}
	if r.Len() != 3 {
		t.Errorf("Expected 3 hosts, got %d", r.Len())
	}
}

func TestRegistryInvariantsRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	addrs := []netip.Addr{hostA, hostB, hostC, netip.MustParseAddr("192.168.1.9")}

	r := NewRegistry()
	wantSent := make(map[netip.Addr]uint64)
	wantRecv := make(map[netip.Addr]uint64)
	for i := 0; i < 5000; i++ {
		o := Observation{
			Source:     addrs[rng.Intn(len(addrs))],
			Dest:       addrs[rng.Intn(len(addrs))],
			PayloadLen: uint16(rng.Intn(65536)),
		}
		r.Record(o)
		wantSent[o.Source] += uint64(o.PayloadLen)
		wantRecv[o.Dest] += uint64(o.PayloadLen)
	}

	for _, h := range r.Hosts() {
		if h.Totals.BytesSent != wantSent[h.Address] {
			t.Errorf("%s: expected bytes sent %d, got %d", h.Address, wantSent[h.Address], h.Totals.BytesSent)
		}
		if h.Totals.BytesRecv != wantRecv[h.Address] {
			t.Errorf("%s: expected bytes recv %d, got %d", h.Address, wantRecv[h.Address], h.Totals.BytesRecv)
		}
		checkTotalsInvariant(t, h)
	}
}

func TestHostRecordRejectsForeignPacket(t *testing.T) {
	h := newHostRecord(hostA)
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for a packet that does not belong to the host")
		}
	}()
	h.recordSent(Observation{Source: hostB, Dest: hostC, PayloadLen: 10})
}

func TestTopPeers(t *testing.T) {
	r := NewRegistry()
	r.Record(Observation{Source: hostA, Dest: hostB, PayloadLen: 10})
	r.Record(Observation{Source: hostC, Dest: hostA, PayloadLen: 500})
	r.Record(Observation{Source: hostA, Dest: hostB, PayloadLen: 20})

	a, _ := r.Lookup(hostA)
	peers := a.TopPeers(0)
	if len(peers) != 2 {
		t.Fatalf("Expected 2 peers, got %d", len(peers))
	}
	if peers[0].Address != hostC || peers[0].Stats.BytesRecv != 500 {
		t.Errorf("Expected C first with 500 bytes received, got %+v", peers[0])
	}
	if peers[1].Address != hostB || peers[1].Stats.PacketsSent != 2 {
		t.Errorf("Expected B second with 2 packets sent, got %+v", peers[1])
	}
	if got := a.TopPeers(1); len(got) != 1 {
		t.Errorf("Expected TopPeers(1) to return 1 peer, got %d", len(got))
	}
}

func checkTotalsInvariant(t *testing.T, h *HostRecord) {
	t.Helper()
	var sum Statistics
	for _, s := range h.SentTo {
		sum.Add(*s)
	}
	for _, s := range h.RecvFrom {
		sum.Add(*s)
	}
	if sum != h.Totals {
		t.Errorf("%s: totals %+v do not match per-peer sum %+v", h.Address, h.Totals, sum)
	}
}
