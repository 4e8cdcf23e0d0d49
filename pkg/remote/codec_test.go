package remote

import (
	"net/netip"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sudorandom/packet-stream/pkg/traffic"
)

func TestBatchRoundTrip(t *testing.T) {
	in := []traffic.Observation{
		{Source: netip.MustParseAddr("10.0.0.1"), Dest: netip.MustParseAddr("10.0.0.2"), PayloadLen: 1500},
		{Source: netip.MustParseAddr("2001:db8::1"), Dest: netip.MustParseAddr("2001:db8::2"), PayloadLen: 0},
		{Source: netip.MustParseAddr("192.168.1.9"), Dest: netip.MustParseAddr("192.168.1.9"), PayloadLen: 65535},
	}

	var out []traffic.Observation
	if err := DecodeBatch(EncodeBatch(nil, in), func(o traffic.Observation) { out = append(out, o) }); err != nil {
		t.Fatalf("DecodeBatch failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("Expected %d observations, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Observation %d: expected %+v, got %+v", i, in[i], out[i])
		}
	}
	if !out[0].Source.Is4() {
		t.Errorf("Expected IPv4 address to stay IPv4, got %v", out[0].Source)
	}
}

func TestDecodeEmptyFrame(t *testing.T) {
	called := false
	if err := DecodeBatch(nil, func(traffic.Observation) { called = true }); err != nil {
		t.Errorf("Expected no error for empty frame, got %v", err)
	}
	if called {
		t.Error("Expected no observations from empty frame")
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	o := traffic.Observation{Source: netip.MustParseAddr("1.1.1.1"), Dest: netip.MustParseAddr("8.8.8.8"), PayloadLen: 64}
	b := protowire.AppendTag(nil, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 12345)
	b = EncodeBatch(b, []traffic.Observation{o})

	var got []traffic.Observation
	if err := DecodeBatch(b, func(o traffic.Observation) { got = append(got, o) }); err != nil {
		t.Fatalf("DecodeBatch failed: %v", err)
	}
	if len(got) != 1 || got[0] != o {
		t.Errorf("Expected [%+v], got %+v", o, got)
	}
}

func TestDecodeRejectsCorruptFrames(t *testing.T) {
	good := EncodeBatch(nil, []traffic.Observation{
		{Source: netip.MustParseAddr("1.1.1.1"), Dest: netip.MustParseAddr("8.8.8.8"), PayloadLen: 64},
	})

	badAddr := protowire.AppendTag(nil, fieldSource, protowire.BytesType)
	badAddr = protowire.AppendBytes(badAddr, []byte{1, 2, 3})
	badAddr = protowire.AppendTag(badAddr, fieldDest, protowire.BytesType)
	badAddr = protowire.AppendBytes(badAddr, []byte{1, 2, 3, 4})
	badFrame := protowire.AppendTag(nil, fieldBatchObservation, protowire.BytesType)
	badFrame = protowire.AppendBytes(badFrame, badAddr)

	missingDest := protowire.AppendTag(nil, fieldSource, protowire.BytesType)
	missingDest = protowire.AppendBytes(missingDest, []byte{1, 2, 3, 4})
	missingFrame := protowire.AppendTag(nil, fieldBatchObservation, protowire.BytesType)
	missingFrame = protowire.AppendBytes(missingFrame, missingDest)

	tests := []struct {
		name  string
		frame []byte
	}{
		{"truncated", good[:len(good)-3]},
		{"bad address length", badFrame},
		{"missing destination", missingFrame},
		{"garbage", []byte{0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := DecodeBatch(tt.frame, func(traffic.Observation) {}); err == nil {
				t.Error("Expected an error, got nil")
			}
		})
	}
}
