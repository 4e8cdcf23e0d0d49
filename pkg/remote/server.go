package remote

import (
	"context"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sudorandom/packet-stream/pkg/traffic"
)

const (
	writeWait     = 5 * time.Second
	clientBacklog = 64

	// HeaderProbeID names the probe that produced a feed, on both the
	// websocket handshake and NATS messages.
	HeaderProbeID = "Probe-Id"
)

// NewProbeID returns a random identifier for one probe process.
func NewProbeID() string {
	return uuid.NewString()
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Server batches observations and broadcasts them to every connected viewer.
// A viewer that cannot keep up is disconnected rather than slowing capture down.
type Server struct {
	// ID is sent to viewers in the handshake response.
	ID string

	upgrader websocket.Upgrader
	interval time.Duration

	mu      sync.Mutex
	pending []traffic.Observation
	clients map[*subscriber]struct{}

	dropped atomic.Uint64
}

func NewServer(interval time.Duration) *Server {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		interval: interval,
		clients:  make(map[*subscriber]struct{}),
	}
}

// Send queues o for the next broadcast. Observations are discarded while no viewer is connected.
func (s *Server) Send(o traffic.Observation) {
	s.mu.Lock()
	if len(s.clients) > 0 {
		s.pending = append(s.pending, o)
	}
	s.mu.Unlock()
}

// Clients returns the number of connected viewers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped is the number of frames discarded for slow viewers.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var header http.Header
	if s.ID != "" {
		header = http.Header{HeaderProbeID: []string{s.ID}}
	}
	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		log.Printf("[REMOTE] Upgrade error: %v", err)
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, clientBacklog)}
	s.mu.Lock()
	s.clients[sub] = struct{}{}
	s.mu.Unlock()
	log.Printf("[REMOTE] Viewer connected from %s", r.RemoteAddr)

	go s.writeLoop(sub)

	// Viewers never send anything; reading keeps control frames flowing and
	// notices when the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.remove(sub)
	log.Printf("[REMOTE] Viewer %s disconnected", r.RemoteAddr)
}

func (s *Server) writeLoop(sub *subscriber) {
	defer func() {
		if err := sub.conn.Close(); err != nil {
			log.Printf("[REMOTE] Error closing connection: %v", err)
		}
	}()
	for frame := range sub.send {
		if err := sub.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := sub.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			log.Printf("[REMOTE] Write error: %v", err)
			s.remove(sub)
			return
		}
	}
}

func (s *Server) remove(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[sub]; ok {
		delete(s.clients, sub)
		close(sub.send)
	}
}

// Run broadcasts the pending batch every interval until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	var spare []traffic.Observation
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for sub := range s.clients {
				delete(s.clients, sub)
				close(sub.send)
			}
			s.mu.Unlock()
			return
		case <-ticker.C:
			spare = s.flush(spare)
		}
	}
}

func (s *Server) flush(spare []traffic.Observation) []traffic.Observation {
	s.mu.Lock()
	batch := s.pending
	s.pending = spare[:0]
	s.mu.Unlock()
	if len(batch) == 0 {
		return batch
	}

	frame := EncodeBatch(make([]byte, 0, len(batch)*16), batch)

	s.mu.Lock()
	for sub := range s.clients {
		select {
		case sub.send <- frame:
		default:
			s.dropped.Add(1)
			log.Printf("[REMOTE] Dropping slow viewer (backlog %d frames)", clientBacklog)
			delete(s.clients, sub)
			close(sub.send)
		}
	}
	s.mu.Unlock()
	return batch
}
