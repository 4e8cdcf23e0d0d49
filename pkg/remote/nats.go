package remote

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sudorandom/packet-stream/pkg/traffic"
)

// DefaultSubject is used when no NATS subject is configured.
const DefaultSubject = "packets.observed"

// Publisher batches observations and publishes them to a NATS subject using the
// same frame format as the websocket feed.
type Publisher struct {
	// ID is attached to every message as the Probe-Id header.
	ID string

	nc       *nats.Conn
	subject  string
	interval time.Duration

	mu      sync.Mutex
	pending []traffic.Observation
}

func NewPublisher(url, subject string, interval time.Duration) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	nc, err := nats.Connect(url, nats.Name("packet-probe"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	log.Printf("[NATS] Connected to %s, publishing on %q", url, subject)
	return &Publisher{nc: nc, subject: subject, interval: interval}, nil
}

func (p *Publisher) Send(o traffic.Observation) {
	p.mu.Lock()
	p.pending = append(p.pending, o)
	p.mu.Unlock()
}

// Run publishes the pending batch every interval until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	var spare []traffic.Observation
	for {
		select {
		case <-ctx.Done():
			p.flush(spare)
			return
		case <-ticker.C:
			spare = p.flush(spare)
		}
	}
}

func (p *Publisher) flush(spare []traffic.Observation) []traffic.Observation {
	p.mu.Lock()
	batch := p.pending
	p.pending = spare[:0]
	p.mu.Unlock()
	if len(batch) == 0 {
		return batch
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = EncodeBatch(nil, batch)
	if p.ID != "" {
		msg.Header.Set(HeaderProbeID, p.ID)
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		log.Printf("[NATS] Publish error: %v", err)
	}
	return batch
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Printf("[NATS] Drain error: %v", err)
	}
}

// Subscriber decodes frames from a NATS subject into a sink.
type Subscriber struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

func Subscribe(url, subject string, sink traffic.Sink) (*Subscriber, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url, nats.Name("packet-viewer"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	// Callbacks for one subscription run on a single goroutine.
	probes := make(map[string]bool)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if id := msg.Header.Get(HeaderProbeID); id != "" && !probes[id] {
			probes[id] = true
			log.Printf("[NATS] Receiving from probe %s", id)
		}
		if err := DecodeBatch(msg.Data, sink.Send); err != nil {
			log.Printf("[NATS] Bad frame on %s: %v", msg.Subject, err)
		}
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	log.Printf("[NATS] Subscribed to %q on %s", subject, url)
	return &Subscriber{nc: nc, sub: sub}, nil
}

func (s *Subscriber) Close() {
	if err := s.sub.Unsubscribe(); err != nil {
		log.Printf("[NATS] Unsubscribe error: %v", err)
	}
	s.nc.Close()
}
