// Package edge hosts the public HTTP front: a TLS-terminating reverse
// proxy, an HTTP to HTTPS redirect service, and a loopback application
// server that can be hot-swapped between two sibling ports without
// dropping in-flight requests.
package edge

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
)

// Settings carries the listen configuration for the edge front.
type Settings struct {
	// CertDir holds the TLS certificate and key. When it contains no
	// usable pair the public listeners are not bound and only the
	// loopback application starts.
	CertDir string

	// HTTPPort and HTTPSPort are the public listen ports.
	HTTPPort  int
	HTTPSPort int

	// AppPortA and AppPortB are the two loopback ports the application
	// server alternates between on hot reload.
	AppPortA int
	AppPortB int
}

// MakeRouter builds a fresh application handler. It is called once at
// start and once per hot reload.
type MakeRouter func() http.Handler

// backendCell is the single shared slot the proxy reads its upstream
// address from on every request.
type backendCell struct {
	mu   sync.RWMutex
	addr string
}

func (c *backendCell) load() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addr
}

func (c *backendCell) store(addr string) {
	c.mu.Lock()
	c.addr = addr
	c.mu.Unlock()
}

// appInstance is one bound application server plus its drain signal.
type appInstance struct {
	server *http.Server
	port   int
	done   chan struct{}
}

// Handle controls a running edge front.
type Handle struct {
	mu       sync.Mutex
	settings Settings
	cell     *backendCell
	app      *appInstance
	proxy    *http.Server
	redirect *http.Server
}

// Start binds the application server on loopback port A and, when a
// certificate pair is present, the public HTTPS proxy and HTTP redirect
// listeners. Without certificates only the loopback application runs so
// an operator can remediate.
func Start(settings Settings, makeRouter MakeRouter) (*Handle, error) {
	cell := &backendCell{}

	app, err := bindApp(settings.AppPortA, makeRouter())
	if err != nil {
		return nil, fmt.Errorf("binding application server: %w", err)
	}
	cell.store(fmt.Sprintf("127.0.0.1:%d", app.port))

	h := &Handle{settings: settings, cell: cell, app: app}

	certFile, keyFile, ok := certPair(settings.CertDir)
	if !ok {
		logger.Warn("no certificate pair found, public listeners not bound",
			"cert_dir", settings.CertDir)
		return h, nil
	}

	h.proxy = &http.Server{
		Addr:      fmt.Sprintf(":%d", settings.HTTPSPort),
		Handler:   newProxy(cell),
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	go func() {
		err := h.proxy.ListenAndServeTLS(certFile, keyFile)
		if err != nil && err != http.ErrServerClosed {
			logger.Error("https proxy stopped", "error", err)
		}
	}()

	h.redirect = &http.Server{
		Addr:    fmt.Sprintf(":%d", settings.HTTPPort),
		Handler: RedirectHandler(settings.HTTPSPort),
	}
	go func() {
		err := h.redirect.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.Error("redirect service stopped", "error", err)
		}
	}()

	logger.Info("edge started",
		"https_port", settings.HTTPSPort,
		"http_port", settings.HTTPPort,
		"backend", cell.load())
	return h, nil
}

// BackendAddr reports the loopback address the proxy currently targets.
func (h *Handle) BackendAddr() string {
	return h.cell.load()
}

// HotReload binds a fresh application on the sibling loopback port,
// points the proxy at it, and drains the old instance. In-flight
// requests on the old backend complete with the old backend's response.
// The returned channel closes once the old instance has drained.
func (h *Handle) HotReload(makeRouter MakeRouter) (<-chan struct{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.settings.AppPortA
	if h.app.port == h.settings.AppPortA {
		next = h.settings.AppPortB
	}

	app, err := bindApp(next, makeRouter())
	if err != nil {
		return nil, fmt.Errorf("binding replacement server: %w", err)
	}

	old := h.app
	h.app = app
	h.cell.store(fmt.Sprintf("127.0.0.1:%d", app.port))

	go func() {
		if err := old.server.Shutdown(context.Background()); err != nil {
			logger.Error("draining old backend", "port", old.port, "error", err)
		}
		close(old.done)
		logger.Info("old backend drained", "port", old.port)
	}()

	logger.Info("hot reload complete", "backend", h.cell.load())
	return old.done, nil
}

// Shutdown stops the public listeners and drains the application.
func (h *Handle) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for _, srv := range []*http.Server{h.proxy, h.redirect, h.app.server} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func bindApp(port int, handler http.Handler) (*appInstance, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, err
	}
	app := &appInstance{
		server: &http.Server{Handler: handler},
		port:   ln.Addr().(*net.TCPAddr).Port,
		done:   make(chan struct{}),
	}
	go func() {
		err := app.server.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			logger.Error("application server stopped", "port", app.port, "error", err)
		}
	}()
	return app, nil
}

// newProxy builds a reverse proxy that re-resolves its upstream from the
// shared cell on every request, so a cell flip takes effect immediately.
func newProxy(cell *backendCell) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(&url.URL{Scheme: "http", Host: cell.load()})
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("proxy upstream error", "path", r.URL.Path, "error", err)
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		},
	}
}

// RedirectHandler answers every request with a 301 to the HTTPS origin,
// preserving host, path and query. Port 443 is omitted from the
// Location header.
func RedirectHandler(httpsPort int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if i := strings.LastIndex(host, ":"); i >= 0 && !strings.HasSuffix(host, "]") {
			host = host[:i]
		}
		if httpsPort != 443 {
			host = net.JoinHostPort(host, strconv.Itoa(httpsPort))
		}
		target := "https://" + host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

// certPair looks for a usable certificate and key in dir. Common
// filename pairs are tried in order.
func certPair(dir string) (certFile, keyFile string, ok bool) {
	pairs := [][2]string{
		{"fullchain.pem", "privkey.pem"},
		{"cert.pem", "key.pem"},
	}
	for _, p := range pairs {
		cert := filepath.Join(dir, p[0])
		key := filepath.Join(dir, p[1])
		if fileExists(cert) && fileExists(key) {
			return cert, key, true
		}
	}
	return "", "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// WaitReachable polls an address until a TCP connection succeeds or the
// deadline passes. Intended for startup coordination.
func WaitReachable(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("backend %s not reachable: %w", addr, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
