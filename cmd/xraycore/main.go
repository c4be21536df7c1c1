// Command xraycore is the process entry point: it wires the detector,
// correction-map registry, controller, Capture Manager, and Event Gateway
// together and serves the control HTTP/WebSocket surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"xraycore/internal/authguard"
	"xraycore/internal/correction"
	"xraycore/internal/detector"
	"xraycore/internal/eventbus"
	"xraycore/internal/livebuffer"
	"xraycore/internal/manager"
)

const liveBufferCapacity = 8

func main() {
	var (
		hostF     = flag.String("host", "localhost", "Server host (valid values: localhost, 0.0.0.0)")
		httpPortF = flag.String("http-port", "8080", "HTTP port")
		widthF    = flag.Int("sim-width", 1024, "Simulated detector frame width")
		heightF   = flag.Int("sim-height", 1024, "Simulated detector frame height")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[xraycore] ", log.Ltime)

	dataDir := os.Getenv("XRAYCORE_DATA_DIR")
	if dataDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			logger.Fatalf("resolving config dir: %v", err)
		}
		dataDir = filepath.Join(configDir, "xraycore")
	}
	logger.Printf("correction maps rooted at %s", dataDir)

	maps := correction.New(dataDir)
	if err := maps.LoadFromDisk(); err != nil {
		logger.Fatalf("loading correction maps: %v", err)
	}
	logger.Printf("loaded %d dark map(s), defect map present: %v", len(maps.DarkExposureTimes()), maps.HasDefect())

	dev := detector.NewSimulatedDetector(*widthF, *heightF)

	hub := eventbus.NewHub(logger)
	live := livebuffer.New(liveBufferCapacity)
	mgr := manager.New(dev, maps, hub, live, logger)
	defer mgr.Close()

	tokens := authguard.NewTokenManager()
	var apiKeys *authguard.APIKeyVerifier
	if v, err := authguard.NewAPIKeyVerifier(); err != nil {
		logger.Printf("operator API key not configured, token minting endpoint disabled: %v", err)
	} else {
		apiKeys = v
	}

	server := &gatewayServer{
		manager: mgr,
		hub:     hub,
		tokens:  tokens,
		apiKeys: apiKeys,
		logger:  logger,
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	addr := fmt.Sprintf("http://%s:%s", *hostF, *httpPortF)
	u, err := url.Parse(addr)
	if err != nil {
		logger.Fatalf("invalid URL %#v: %s", addr, err)
	}
	if u.Port() == "" {
		h, _, _ := net.SplitHostPort(u.Host)
		u.Host = net.JoinHostPort(h, "8080")
	}

	handleHTTPServer(ctx, u, server, &wg, errc, logger)

	logger.Printf("exiting (%v)", <-errc)
	cancel()
	wg.Wait()
	logger.Println("exited")
}
