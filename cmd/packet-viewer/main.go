package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	_ "github.com/silbinarywolf/preferdiscretegpu"

	"github.com/sudorandom/packet-stream/pkg/capture"
	"github.com/sudorandom/packet-stream/pkg/config"
	"github.com/sudorandom/packet-stream/pkg/hostinfo"
	"github.com/sudorandom/packet-stream/pkg/remote"
	"github.com/sudorandom/packet-stream/pkg/traffic"
	"github.com/sudorandom/packet-stream/pkg/trafficengine"
)

var (
	configFlag    = flag.String("config", "", "YAML config file; flags override its values")
	ifaceFlag     = flag.String("iface", "", "Capture live from this interface")
	pcapFlag      = flag.String("pcap", "", "Replay packets from a pcap file")
	paceFlag      = flag.Bool("pace", false, "Replay pcap files at their captured rate")
	bpfFlag       = flag.String("bpf", "", "BPF filter for live capture")
	remoteFlag    = flag.String("remote", "", "Follow a packet-probe websocket feed, e.g. ws://host:8080/ws")
	natsFlag      = flag.String("nats", "", "Follow a NATS subject published by packet-probe")
	subjectFlag   = flag.String("subject", "", "NATS subject (default packets.observed)")
	widthFlag     = flag.Int("width", 0, "Rendering width")
	heightFlag    = flag.Int("height", 0, "Rendering height")
	tpsFlag       = flag.Int("tps", 0, "Ticks per second (engine updates)")
	listFlag      = flag.Bool("list", false, "List capture devices and exit")
	mmdbFlag      = flag.String("mmdb", "", "GeoIP/ASN mmdb database (path or URL) for host enrichment")
	worldFlag     = flag.String("world", "", "World GeoJSON (path or URL) used as the geo layout background")
	cloudFlag     = flag.String("cloud", "", "Comma-separated cloud providers whose ranges label hosts (needs -seen-db)")
	cacheFlag     = flag.String("cache-dir", "", "Directory where downloaded databases are cached")
	seenFlag      = flag.String("seen-db", "", "Directory of the badger database remembering seen hosts and labels")
	highlightFlag = flag.String("highlight", "", "Comma-separated words; hosts whose org or label match are highlighted")
	captureFlag   = flag.String("capture-dir", "", "Directory for frames saved with the S key")
	seedFlag      = flag.Int64("seed", 0, "Random seed for host placement (0 uses the clock)")
)

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFlag != "" {
		var err error
		if cfg, err = config.Load(*configFlag); err != nil {
			return nil, err
		}
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["iface"] {
		cfg.Capture.Iface = *ifaceFlag
	}
	if set["pcap"] {
		cfg.Capture.PcapFile = *pcapFlag
	}
	if set["pace"] {
		cfg.Capture.Pace = *paceFlag
	}
	if set["bpf"] {
		cfg.Capture.BPF = *bpfFlag
	}
	if set["remote"] {
		cfg.Remote.URL = *remoteFlag
	}
	if set["nats"] {
		cfg.Remote.NATSURL = *natsFlag
	}
	if set["subject"] {
		cfg.Remote.NATSSubject = *subjectFlag
	}
	if set["width"] {
		cfg.Engine.Width = *widthFlag
	}
	if set["height"] {
		cfg.Engine.Height = *heightFlag
	}
	if set["tps"] {
		cfg.Engine.TPS = *tpsFlag
	}
	if set["mmdb"] {
		cfg.Hosts.MMDB = *mmdbFlag
	}
	if set["world"] {
		cfg.Hosts.WorldMap = *worldFlag
	}
	if set["seen-db"] {
		cfg.Hosts.SeenDB = *seenFlag
	}
	if set["cache-dir"] {
		cfg.Hosts.CacheDir = *cacheFlag
	}
	if set["cloud"] {
		cfg.Hosts.CloudRanges = strings.Split(*cloudFlag, ",")
	}
	if set["highlight"] {
		cfg.Hosts.Highlight = strings.Split(*highlightFlag, ",")
	}
	if set["capture-dir"] {
		cfg.Engine.CaptureDir = *captureFlag
	}
	return cfg, cfg.Validate()
}

// startFeed connects the one configured packet source to the queue.
func startFeed(ctx context.Context, cfg *config.Config, q *traffic.Queue) (func(), error) {
	switch {
	case cfg.Remote.URL != "":
		client := remote.NewClient(cfg.Remote.URL, q)
		go func() {
			if err := client.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[REMOTE] Feed stopped: %v", err)
			}
		}()
		return func() {}, nil
	case cfg.Remote.NATSURL != "":
		sub, err := remote.Subscribe(cfg.Remote.NATSURL, cfg.Remote.NATSSubject, q)
		if err != nil {
			return nil, err
		}
		return sub.Close, nil
	}

	var src *capture.Source
	var err error
	switch {
	case cfg.Capture.PcapFile != "":
		src, err = capture.Offline(cfg.Capture.PcapFile, cfg.Capture.Pace)
	case cfg.Capture.Iface != "":
		src, err = capture.Live(capture.LiveConfig{
			Iface:       cfg.Capture.Iface,
			SnapLen:     cfg.Capture.SnapLen,
			Promiscuous: cfg.Capture.Promiscuous,
			BPF:         cfg.Capture.BPF,
		})
	default:
		return nil, fmt.Errorf("no packet source: use -iface, -pcap, -remote or -nats (see -list)")
	}
	if err != nil {
		return nil, err
	}
	go func() {
		if err := src.Run(ctx, q); err != nil && ctx.Err() == nil {
			log.Printf("[CAPTURE] Capture stopped: %v", err)
		}
		st := src.Stats()
		log.Printf("[CAPTURE] %d packets read, %d observed, %d skipped", st.Packets, st.Observed, st.Skipped)
	}()
	return src.Close, nil
}

// openResolver returns nil when no enrichment is configured.
func openResolver(ctx context.Context, cfg *config.Config) (*hostinfo.Resolver, error) {
	h := cfg.Hosts
	if h.MMDB == "" && h.SeenDB == "" && len(h.Highlight) == 0 {
		return nil, nil
	}
	mmdb, err := hostinfo.Fetch(ctx, h.MMDB, h.CacheDir, "geo")
	if err != nil {
		return nil, fmt.Errorf("fetch mmdb: %w", err)
	}
	resolver, err := hostinfo.OpenResolver(mmdb, h.SeenDB, h.Highlight)
	if err != nil {
		return nil, err
	}
	if store := resolver.Store(); store != nil {
		if err := hostinfo.ImportCloudRanges(ctx, store, h.CloudRanges, h.CacheDir); err != nil {
			log.Printf("[CLOUD] %v", err)
		}
		if len(h.Labels) > 0 {
			if err := store.SetLabels(h.Labels); err != nil {
				log.Printf("[SEEN] Failed to store labels: %v", err)
			}
		}
	}
	return resolver, nil
}

func listDevices() {
	devices, err := capture.Devices()
	if err != nil {
		log.Fatalf("Failed to list devices: %v", err)
	}
	for _, d := range devices {
		fmt.Printf("%-20s %-40s %s\n", d.Name, d.Description, strings.Join(d.Addresses, ", "))
	}
}

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *listFlag {
		listDevices()
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	seed := *seedFlag
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver, err := openResolver(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open host databases: %v", err)
	}
	if resolver != nil {
		defer resolver.Close()
	}

	queue := traffic.NewQueue()
	closeFeed, err := startFeed(ctx, cfg, queue)
	if err != nil {
		log.Fatalf("Failed to start packet source: %v", err)
	}
	defer closeFeed()

	var engine *trafficengine.Engine
	if resolver != nil {
		engine = trafficengine.NewEngine(cfg.Engine.Width, cfg.Engine.Height, queue, rng, resolver)
	} else {
		engine = trafficengine.NewEngine(cfg.Engine.Width, cfg.Engine.Height, queue, rng, nil)
	}
	defer engine.Close()
	engine.TPS = cfg.Engine.TPS
	engine.FrameCaptureDir = cfg.Engine.CaptureDir

	s := engine.Settings()
	s.MaxVisibleParticles = cfg.Engine.MaxVisibleParticles
	s.LaunchAngleJitter = cfg.Engine.LaunchAngleJitter
	s.LaunchSpeed = cfg.Engine.LaunchSpeed
	s.ArrivalDistance = cfg.Engine.ArrivalDistance
	s.HostRadius = cfg.Engine.HostRadius
	s.GeoLayout = cfg.Engine.GeoLayout

	if cfg.Hosts.WorldMap != "" {
		path, err := hostinfo.Fetch(ctx, cfg.Hosts.WorldMap, cfg.Hosts.CacheDir, "world")
		if err != nil {
			log.Fatalf("Failed to fetch world map: %v", err)
		}
		if err := engine.LoadWorldMap(path); err != nil {
			log.Fatalf("Failed to load world map: %v", err)
		}
	}

	log.Printf("Starting viewer %dx%d at %d TPS (seed %d)", cfg.Engine.Width, cfg.Engine.Height, engine.TPS, seed)
	ebiten.SetTPS(engine.TPS)
	ebiten.SetWindowSize(cfg.Engine.Width, cfg.Engine.Height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowTitle("Packet Stream")
	if err := ebiten.RunGame(engine); err != nil {
		log.Printf("Viewer stopped: %v", err)
	}
}
