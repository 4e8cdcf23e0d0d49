// Package remote moves observations between a capture probe and a viewer over
// websocket or NATS.
//
// A frame is a protobuf-encoded batch:
//
//	message Batch       { repeated Observation observations = 1; }
//	message Observation { bytes source = 1; bytes dest = 2; uint32 payload_len = 3; }
package remote

import (
	"errors"
	"fmt"
	"net/netip"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sudorandom/packet-stream/pkg/traffic"
)

const (
	fieldBatchObservation protowire.Number = 1

	fieldSource     protowire.Number = 1
	fieldDest       protowire.Number = 2
	fieldPayloadLen protowire.Number = 3
)

var errBadAddress = errors.New("address must be 4 or 16 bytes")

func appendObservation(b []byte, o traffic.Observation) []byte {
	src, dst := o.Source.AsSlice(), o.Dest.AsSlice()
	size := protowire.SizeTag(fieldSource) + protowire.SizeBytes(len(src)) +
		protowire.SizeTag(fieldDest) + protowire.SizeBytes(len(dst)) +
		protowire.SizeTag(fieldPayloadLen) + protowire.SizeVarint(uint64(o.PayloadLen))

	b = protowire.AppendTag(b, fieldBatchObservation, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(size))
	b = protowire.AppendTag(b, fieldSource, protowire.BytesType)
	b = protowire.AppendBytes(b, src)
	b = protowire.AppendTag(b, fieldDest, protowire.BytesType)
	b = protowire.AppendBytes(b, dst)
	b = protowire.AppendTag(b, fieldPayloadLen, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(o.PayloadLen))
}

// EncodeBatch appends the wire form of obs to b.
func EncodeBatch(b []byte, obs []traffic.Observation) []byte {
	for _, o := range obs {
		b = appendObservation(b, o)
	}
	return b
}

// DecodeBatch calls fn for every observation in the frame, in order.
// Unknown fields are skipped.
func DecodeBatch(b []byte, fn func(traffic.Observation)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if num != fieldBatchObservation || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		msg, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		o, err := decodeObservation(msg)
		if err != nil {
			return err
		}
		fn(o)
	}
	return nil
}

func decodeObservation(b []byte) (traffic.Observation, error) {
	var o traffic.Observation
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return o, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case (num == fieldSource || num == fieldDest) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return o, protowire.ParseError(n)
			}
			b = b[n:]
			addr, ok := netip.AddrFromSlice(v)
			if !ok {
				return o, fmt.Errorf("field %d: %w", num, errBadAddress)
			}
			if num == fieldSource {
				o.Source = addr
			} else {
				o.Dest = addr
			}
		case num == fieldPayloadLen && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return o, protowire.ParseError(n)
			}
			b = b[n:]
			o.PayloadLen = uint16(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return o, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if !o.Source.IsValid() || !o.Dest.IsValid() {
		return o, errBadAddress
	}
	return o, nil
}
