package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/sudorandom/packet-stream/pkg/capture"
	"github.com/sudorandom/packet-stream/pkg/config"
	"github.com/sudorandom/packet-stream/pkg/remote"
	"github.com/sudorandom/packet-stream/pkg/traffic"
)

// SourceFlags selects what to capture. Values from --config fill in anything
// not given on the command line.
type SourceFlags struct {
	Config  string `help:"YAML config file."`
	Iface   string `help:"Capture live from this interface." short:"i"`
	Pcap    string `help:"Read packets from a pcap file."`
	Pace    bool   `help:"Replay pcap files at their captured rate."`
	BPF     string `help:"BPF filter for live capture." name:"bpf"`
	SnapLen int32  `help:"Snapshot length for live capture (default from config, 1600)."`
}

func (f *SourceFlags) load() (*config.Config, error) {
	cfg := config.Default()
	if f.Config != "" {
		var err error
		if cfg, err = config.Load(f.Config); err != nil {
			return nil, err
		}
	}
	if f.Iface != "" {
		cfg.Capture.Iface = f.Iface
	}
	if f.Pcap != "" {
		cfg.Capture.PcapFile = f.Pcap
	}
	if f.BPF != "" {
		cfg.Capture.BPF = f.BPF
	}
	cfg.Capture.Pace = cfg.Capture.Pace || f.Pace
	if f.SnapLen > 0 {
		cfg.Capture.SnapLen = f.SnapLen
	}
	return cfg, cfg.Validate()
}

func openSource(cfg *config.Config) (*capture.Source, error) {
	c := cfg.Capture
	switch {
	case c.PcapFile != "":
		return capture.Offline(c.PcapFile, c.Pace)
	case c.Iface != "":
		return capture.Live(capture.LiveConfig{Iface: c.Iface, SnapLen: c.SnapLen, Promiscuous: c.Promiscuous, BPF: c.BPF})
	}
	return nil, errors.New("no packet source: use --iface or --pcap")
}

type DevicesCmd struct{}

func (c *DevicesCmd) Run() error {
	devices, err := capture.Devices()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION\tADDRESSES")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Description, strings.Join(d.Addresses, ", "))
	}
	return w.Flush()
}

type ServeCmd struct {
	SourceFlags `embed:""`
	Listen      string        `help:"Address to serve the websocket feed on." default:""`
	Path        string        `help:"HTTP path of the websocket feed." default:"/ws"`
	Flush       time.Duration `help:"How often batches are sent to viewers." default:"0s"`
}

func (c *ServeCmd) Run(ctx context.Context) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	listen := cfg.Remote.Listen
	if c.Listen != "" {
		listen = c.Listen
	}
	interval := cfg.FlushInterval()
	if c.Flush > 0 {
		interval = c.Flush
	}

	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	srv := remote.NewServer(interval)
	srv.ID = remote.NewProbeID()
	go srv.Run(ctx)

	r := mux.NewRouter()
	r.Handle(c.Path, srv).Methods("GET")
	r.HandleFunc("/status", statusHandler(srv, src)).Methods("GET")
	httpServer := &http.Server{Addr: listen, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf("[REMOTE] Probe %s serving observations on ws://%s%s", srv.ID, listen, c.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[REMOTE] HTTP server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[REMOTE] HTTP shutdown error: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := src.Stats()
				log.Printf("[REMOTE] %d viewers, %d packets observed, %d slow viewers dropped", srv.Clients(), st.Observed, srv.Dropped())
			}
		}
	}()

	return ignoreCancel(src.Run(ctx, srv))
}

// probeStatus is the JSON body of GET /status.
type probeStatus struct {
	ID       string `json:"id"`
	Viewers  int    `json:"viewers"`
	Observed uint64 `json:"observed"`
	Dropped  uint64 `json:"dropped_frames"`
}

type statsSource interface {
	Stats() capture.Stats
}

func statusHandler(srv *remote.Server, src statsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := probeStatus{ID: srv.ID, Viewers: srv.Clients(), Observed: src.Stats().Observed, Dropped: srv.Dropped()}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st); err != nil {
			log.Printf("[REMOTE] Failed to write status: %v", err)
		}
	}
}

type PublishCmd struct {
	SourceFlags `embed:""`
	NATS        string `help:"NATS server URL." name:"nats" default:""`
	Subject     string `help:"NATS subject." default:""`
}

func (c *PublishCmd) Run(ctx context.Context) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	url, subject := cfg.Remote.NATSURL, cfg.Remote.NATSSubject
	if c.NATS != "" {
		url = c.NATS
	}
	if c.Subject != "" {
		subject = c.Subject
	}
	if url == "" {
		return errors.New("no NATS server: use --nats or remote.nats_url")
	}

	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	pub, err := remote.NewPublisher(url, subject, cfg.FlushInterval())
	if err != nil {
		return err
	}
	defer pub.Close()
	pub.ID = remote.NewProbeID()
	log.Printf("[NATS] Probe %s", pub.ID)

	pubCtx, stopPub := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pub.Run(pubCtx)
		close(done)
	}()

	err = src.Run(ctx, pub)
	// Flush whatever the source produced last before draining the connection.
	stopPub()
	<-done
	return ignoreCancel(err)
}

type StatsCmd struct {
	SourceFlags `embed:""`
	Duration    time.Duration `help:"Stop a live capture after this long." default:"10s"`
	Top         int           `help:"Number of hosts to print." default:"20"`
	Peers       int           `help:"Peers to print per host." default:"3"`
}

func (c *StatsCmd) Run(ctx context.Context) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	if cfg.Capture.Iface != "" && c.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Duration)
		defer cancel()
	}

	queue := traffic.NewQueue()
	registry := traffic.NewRegistry()
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, queue) }()

	var buf []traffic.Observation
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for running := true; running; {
		select {
		case err = <-done:
			running = false
		case <-ticker.C:
		}
		buf = queue.Drain(buf)
		for _, o := range buf {
			registry.Record(o)
		}
	}
	if err := ignoreCancel(err); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	printStats(os.Stdout, registry, c.Top, c.Peers)
	return nil
}

func printStats(out io.Writer, registry *traffic.Registry, top, peers int) {
	fmt.Fprintf(out, "%d packets between %d hosts\n\n", registry.Packets(), registry.Len())
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "HOST\tPKTS SENT\tSENT\tPKTS RECV\tRECV\tTOP PEERS\t")
	for i, h := range registry.Hosts() {
		if top > 0 && i >= top {
			break
		}
		var names []string
		for _, p := range h.TopPeers(peers) {
			names = append(names, fmt.Sprintf("%s (%s)", p.Address, humanize.Bytes(p.Stats.Bytes())))
		}
		t := h.Totals
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\t\n", h.Address, t.PacketsSent, humanize.Bytes(t.BytesSent),
			t.PacketsRecv, humanize.Bytes(t.BytesRecv), strings.Join(names, ", "))
	}
	w.Flush()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var cli struct {
	Devices DevicesCmd `cmd:"" help:"List capture devices."`
	Serve   ServeCmd   `cmd:"" help:"Capture packets and serve them to viewers over websocket."`
	Publish PublishCmd `cmd:"" help:"Capture packets and publish them to NATS."`
	Stats   StatsCmd   `cmd:"" help:"Capture packets and print per-host traffic statistics."`
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx := kong.Parse(&cli,
		kong.Name("packet-probe"),
		kong.Description("Capture IP traffic and feed it to packet-viewer."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	kctx.FatalIfErrorf(kctx.Run())
}
