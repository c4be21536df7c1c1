package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"xraycore/internal/advanced"
	"xraycore/internal/authguard"
	"xraycore/internal/eventbus"
	"xraycore/internal/livebuffer"
	"xraycore/internal/manager"
)

// gatewayServer holds everything the HTTP handlers need: the Capture
// Manager, the Event Gateway hub, and the auth guard components.
type gatewayServer struct {
	manager *manager.Manager
	hub     *eventbus.Hub
	tokens  *authguard.TokenManager
	apiKeys *authguard.APIKeyVerifier
	logger  *log.Logger
}

// handleHTTPServer configures and starts the HTTP server on u, relaying any
// listen error onto errc so main's shutdown sequence can react to it. When
// ctx is canceled, the server is given a few seconds to drain in-flight
// requests before wg.Done() fires.
func handleHTTPServer(ctx context.Context, u *url.URL, srv *gatewayServer, wg *sync.WaitGroup, errc chan error, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", srv.handleEvents)
	mux.HandleFunc("/token", srv.handleMintToken)
	mux.HandleFunc("/capture/start/live", srv.handleStartLive)
	mux.HandleFunc("/capture/start/multi", srv.handleStartMulti)
	mux.HandleFunc("/capture/start/smart", srv.handleStartSmartCapture)
	mux.HandleFunc("/capture/start/accumulate", srv.handleStartSignalAccumulation)
	mux.HandleFunc("/capture/stop", srv.handleStopCapture)
	mux.HandleFunc("/calibrate/dark", srv.handleGenerateDarkMaps)
	mux.HandleFunc("/calibrate/defect", srv.handleGenerateDefectMap)
	mux.HandleFunc("/status", srv.handleStatus)
	mux.HandleFunc("/frame", srv.handlePullFrame)

	httpServer := &http.Server{Addr: u.Host, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP server shutdown: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Printf("HTTP server listening on %s", u.Host)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
}

// handleEvents upgrades a request to a WebSocket subscription after
// validating the presented bearer token.
func (s *gatewayServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if _, err := s.tokens.ValidateToken(token); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := s.hub.Upgrade(w, r)
	if err != nil {
		s.logger.Printf("[eventgw] upgrade failed: %v", err)
		return
	}
	go func() {
		defer conn.Close()
		defer s.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// handleMintToken issues a bearer token to an operator who presents a valid
// API key — the handshake gate in front of the Event Gateway subscription.
func (s *gatewayServer) handleMintToken(w http.ResponseWriter, r *http.Request) {
	if s.apiKeys == nil {
		http.Error(w, "token minting is not configured", http.StatusServiceUnavailable)
		return
	}
	key := r.Header.Get("X-Api-Key")
	if err := s.apiKeys.Verify(key); err != nil {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := s.tokens.IssueToken("operator")
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"token": token, "expires_at": expiresAt})
}

func (s *gatewayServer) handleStartLive(w http.ResponseWriter, r *http.Request) {
	exp := queryInt(r, "exposure_ms", 100)
	proto := &advanced.Live{ExposureMS: exp, Logger: s.logger}
	s.startAndDrain(w, proto)
}

func (s *gatewayServer) handleStartMulti(w http.ResponseWriter, r *http.Request) {
	exps := queryIntList(r, "exposures_ms")
	frames := queryInt(r, "frames_per_capture", 1)
	proto := &advanced.Multi{ExposureTimesMS: exps, FramesPerCapture: frames, Logger: s.logger}
	s.startAndDrain(w, proto)
}

func (s *gatewayServer) handleStartSmartCapture(w http.ResponseWriter, r *http.Request) {
	exps := queryIntList(r, "exposures_ms")
	frames := queryInt(r, "frames_per_capture", 1)
	window := queryInt(r, "window_size", 16)
	median := r.URL.Query().Get("median_filtered") == "true"
	proto := &advanced.SmartCapture{
		ExposureTimesMS: exps, FramesPerCapture: frames, WindowSize: window, MedianFiltered: median, Logger: s.logger,
	}
	s.startAndDrain(w, proto)
}

func (s *gatewayServer) handleStartSignalAccumulation(w http.ResponseWriter, r *http.Request) {
	exps := queryIntList(r, "exposures_ms")
	frames := queryInt(r, "frames_per_capture", 1)
	proto := &advanced.SignalAccumulation{ExposureTimesMS: exps, FramesPerCapture: frames, Logger: s.logger}
	s.startAndDrain(w, proto)
}

func (s *gatewayServer) startAndDrain(w http.ResponseWriter, proto advanced.Protocol) {
	runID, items, err := s.manager.StartCapture(proto)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	go func() {
		for range items {
		}
	}()
	writeJSON(w, map[string]any{"run_id": runID, "protocol": proto.Name()})
}

func (s *gatewayServer) handleStopCapture(w http.ResponseWriter, r *http.Request) {
	s.manager.StopCapture()
	w.WriteHeader(http.StatusNoContent)
}

func (s *gatewayServer) handleGenerateDarkMaps(w http.ResponseWriter, r *http.Request) {
	exps := queryIntList(r, "exposures_ms")
	frames := queryInt(r, "frames_per_capture", 4)
	if err := s.manager.GenerateDarkMaps(exps, frames); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *gatewayServer) handleGenerateDefectMap(w http.ResponseWriter, r *http.Request) {
	exps := queryIntList(r, "exposures_ms")
	frames := queryInt(r, "frames_per_capture", 4)
	if err := s.manager.GenerateDefectMap(exps, frames); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *gatewayServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": s.manager.Status().String()})
}

func (s *gatewayServer) handlePullFrame(w http.ResponseWriter, r *http.Request) {
	item, ok := s.manager.Pull()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	rendered := livebuffer.Render(item.Image, livebuffer.RenderOptions{})
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Frame-Width", strconv.Itoa(int(rendered.Width)))
	w.Header().Set("X-Frame-Height", strconv.Itoa(int(rendered.Height)))
	w.Write(rendered.RGBA8)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryIntList(r *http.Request, key string) []int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
