// Package daemon implements the per-process local HTTP daemon (§4.8): an
// OAuth callback endpoint that resolves a pending consent future by its
// state nonce, and a Range-aware streaming endpoint that proxies a
// provider's download_file operation. Both are routed through
// gorilla/mux the way rfratto-viceroy routes its own information server
// (cmd/viceroyd/main.go: mux.NewRouter(), promhttp.Handler(), a plain
// http.Server wrapped for graceful shutdown).
package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/internal/util"
	"github.com/cloudkit/cloudkit/provider"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = util.GetLogger("daemon")

// consentResult is what an in-flight AuthorizeLibraryURL wait receives
// once the browser redirect lands on the callback endpoint.
type consentResult struct {
	code string
	err  error
}

// Daemon serves the auth-callback and streaming endpoints on one
// ephemeral local port. One Daemon is shared by every mounted provider
// in a process.
type Daemon struct {
	server *http.Server
	lis    net.Listener

	sharedState string // guards the streaming endpoint against arbitrary local callers

	mu        sync.Mutex
	pending   map[string]chan consentResult
	providers map[string]cloudkit.Provider
}

// New builds a Daemon bound to addr (empty host, "0" or "" port picks an
// ephemeral one) and registers metrics at /metrics via promhttp, matching
// rfratto-viceroy's own information-server wiring.
func New(addr, sharedState string) (*Daemon, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("daemon: listen on %s: %w", addr, err)
	}

	d := &Daemon{
		lis:         lis,
		sharedState: sharedState,
		pending:     map[string]chan consentResult{},
		providers:   map[string]cloudkit.Provider{},
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/", d.handleRoot)
	d.server = &http.Server{
		Handler:  r,
		ErrorLog: util.NewLogLogger("daemon", util.ErrorLevel),
	}

	return d, nil
}

// Port returns the port the daemon bound to, for RedirectURI/streaming
// URL construction.
func (d *Daemon) Port() int {
	return d.lis.Addr().(*net.TCPAddr).Port
}

// Serve runs the HTTP server until Shutdown is called; intended to be run
// in its own goroutine (or as an oklog/run actor alongside the VFS's
// cleanup and cancellation workers).
func (d *Daemon) Serve() error {
	log.Info().Int("port", d.Port()).Msg("daemon listening")
	err := d.server.Serve(d.lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, waiting up to 10s for in-flight
// requests to drain.
func (d *Daemon) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.server.Shutdown(ctx)
}

// RegisterProvider makes label resolvable by the streaming endpoint's
// opaque item IDs.
func (d *Daemon) RegisterProvider(label string, p cloudkit.Provider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[label] = p
}

// AwaitCode registers state as a pending consent wait and blocks until
// the matching callback request arrives or ctx is done.
func (d *Daemon) AwaitCode(ctx context.Context, state string) (string, error) {
	ch := make(chan consentResult, 1)
	d.mu.Lock()
	d.pending[state] = ch
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, state)
		d.mu.Unlock()
	}()

	select {
	case res := <-ch:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// handleRoot dispatches on which query parameters are present: "code"
// means an auth callback, "id" means a streaming request. Handler
// signatures only ever read query params, one header (Range), the
// method, and the URL, matching the narrow surface original_source's
// HttpServerMock.h models for a test HTTP server.
func (d *Daemon) handleRoot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("code") != "":
		d.handleCallback(w, q)
	case q.Get("id") != "":
		d.handleStream(w, r, q)
	default:
		http.Error(w, "missing code or id parameter", http.StatusBadRequest)
	}
}

func (d *Daemon) handleCallback(w http.ResponseWriter, q map[string][]string) {
	state := first(q, "state")
	code := first(q, "code")
	if state == "" {
		http.Error(w, "missing state parameter", http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	ch, ok := d.pending[state]
	d.mu.Unlock()
	if !ok {
		http.Error(w, "unknown or expired state", http.StatusBadRequest)
		return
	}

	ch <- consentResult{code: code}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("authorization received, you may close this window"))
}

func (d *Daemon) handleStream(w http.ResponseWriter, r *http.Request, q map[string][]string) {
	if first(q, "state") != d.sharedState {
		http.Error(w, "invalid state", http.StatusForbidden)
		return
	}

	label, itemID, err := provider.DecodeOpaqueID(first(q, "id"))
	if err != nil {
		http.Error(w, "malformed id parameter", http.StatusBadRequest)
		return
	}

	sizeStr := first(q, "size")
	total, err := strconv.ParseUint(sizeStr, 10, 64)
	if err != nil {
		http.Error(w, "malformed size parameter", http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	p, ok := d.providers[label]
	d.mu.Unlock()
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	rng, status, err := parseRangeHeader(r.Header.Get("Range"), total)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", total))
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if status == http.StatusPartialContent {
		end, _ := rng.End()
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, end-1, total))
		w.Header().Set("Content-Length", strconv.FormatUint(end-rng.Start, 10))
	} else {
		w.Header().Set("Content-Length", strconv.FormatUint(total, 10))
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(status)

	item := cloudkit.Item{ID: itemID}
	res := p.DownloadFile(r.Context(), item, rng, w).Result(r.Context())
	if !res.IsOk() {
		log.Warn().Str("provider", label).Str("item", itemID).Err(res.Err).Msg("stream download failed mid-transfer")
	}
}

// parseRangeHeader parses a single-range "bytes=a-b" / "bytes=a-" header,
// or reports a full-item range when h is empty. status is 206 for an
// explicit range and 200 otherwise; an error means the range is
// unsatisfiable against total.
func parseRangeHeader(h string, total uint64) (cloudkit.Range, int, error) {
	if h == "" {
		return cloudkit.Range{Start: 0, Size: cloudkit.FullRange}, http.StatusOK, nil
	}

	spec, ok := strings.CutPrefix(h, "bytes=")
	if !ok {
		return cloudkit.Range{}, 0, fmt.Errorf("unsupported range unit")
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return cloudkit.Range{}, 0, fmt.Errorf("malformed range")
	}

	start, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return cloudkit.Range{}, 0, fmt.Errorf("malformed range start")
	}
	if start >= total {
		return cloudkit.Range{}, 0, fmt.Errorf("range start beyond item size")
	}

	if parts[1] == "" {
		return cloudkit.Range{Start: start, Size: total - start}, http.StatusPartialContent, nil
	}
	end, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || end < start {
		return cloudkit.Range{}, 0, fmt.Errorf("malformed range end")
	}
	if end >= total {
		end = total - 1
	}
	return cloudkit.Range{Start: start, Size: end - start + 1}, http.StatusPartialContent, nil
}

func first(q map[string][]string, key string) string {
	if v, ok := q[key]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}
