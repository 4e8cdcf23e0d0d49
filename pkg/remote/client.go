package remote

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudorandom/packet-stream/pkg/traffic"
)

// Client follows a probe's websocket feed and pushes every observation into a sink,
// reconnecting with exponential backoff whenever the connection drops.
type Client struct {
	url    string
	sink   traffic.Sink
	dialer *websocket.Dialer
}

func NewClient(url string, sink traffic.Sink) *Client {
	return &Client{url: url, sink: sink, dialer: websocket.DefaultDialer}
}

// Run blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	backoff := 1 * time.Second
	for {
		log.Printf("[REMOTE] Connecting to %s", c.url)
		conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[REMOTE] Dial error: %v. Retrying in %v...", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			continue
		}
		backoff = 1 * time.Second
		if id := resp.Header.Get(HeaderProbeID); id != "" {
			log.Printf("[REMOTE] Connected to probe %s", id)
		}

		c.consume(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (c *Client) consume(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		typ, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[REMOTE] Read error: %v. Reconnecting...", err)
			}
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		if err := DecodeBatch(frame, c.sink.Send); err != nil {
			log.Printf("[REMOTE] Bad frame (%d bytes): %v", len(frame), err)
		}
	}
}
