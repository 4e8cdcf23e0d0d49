package trafficengine

import (
	"net/netip"
	"sync"

	"github.com/sudorandom/packet-stream/pkg/hostinfo"
)

type resolvedHost struct {
	Address netip.Addr
	Info    hostinfo.Info
}

// resolveWorker looks hosts up on its own goroutine. The game loop hands it
// addresses with request and picks up answers with drain; neither waits on
// the resolver.
type resolveWorker struct {
	resolver HostResolver

	mu       sync.Mutex
	requests []netip.Addr
	results  []resolvedHost

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	stop   sync.Once
}

func newResolveWorker(resolver HostResolver) *resolveWorker {
	w := &resolveWorker{
		resolver: resolver,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *resolveWorker) request(addr netip.Addr) {
	w.mu.Lock()
	w.requests = append(w.requests, addr)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// drain returns every answer so far; buf is reused like traffic.Queue.Drain.
func (w *resolveWorker) drain(buf []resolvedHost) []resolvedHost {
	w.mu.Lock()
	out := w.results
	w.results = buf[:0]
	w.mu.Unlock()
	return out
}

// close stops the worker and waits for the lookup in progress, if any.
func (w *resolveWorker) close() {
	w.stop.Do(func() { close(w.done) })
	<-w.exited
}

func (w *resolveWorker) run() {
	defer close(w.exited)
	var batch []netip.Addr
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}
		for {
			w.mu.Lock()
			batch, w.requests = w.requests, batch[:0]
			w.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, addr := range batch {
				info := w.resolver.Resolve(addr)
				w.mu.Lock()
				w.results = append(w.results, resolvedHost{Address: addr, Info: info})
				w.mu.Unlock()
				select {
				case <-w.done:
					return
				default:
				}
			}
		}
	}
}
