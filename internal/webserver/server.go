package webserver

import (
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agusx1211/swarmix/internal/debug"
	"github.com/agusx1211/swarmix/internal/store"
)

//go:embed static
var staticFS embed.FS

const (
	defaultHost = "127.0.0.1"
	defaultPort = 8080
)

// Options carries the listener address and security settings for New.
type Options struct {
	Host      string
	Port      int
	TLSMode   string
	CertFile  string
	KeyFile   string
	AuthToken string
	RateLimit float64
}

// Server hosts the round history API and the live event stream bridge for
// one repository.
type Server struct {
	store      *store.Store
	repoRoot   string
	runRoot    string
	httpServer *http.Server
	host       string
	port       int
	tlsMode    string
	certFile   string
	keyFile    string
	authToken  string
	rateLimit  float64
}

// New constructs a web server over a repository's store. The live event
// bridge watches the store root for an active run's control socket.
func New(s *store.Store, repoRoot string, opts Options) *Server {
	srv := &Server{
		store:     s,
		repoRoot:  repoRoot,
		runRoot:   s.Root(),
		host:      strings.TrimSpace(opts.Host),
		port:      opts.Port,
		tlsMode:   strings.TrimSpace(opts.TLSMode),
		certFile:  strings.TrimSpace(opts.CertFile),
		keyFile:   strings.TrimSpace(opts.KeyFile),
		authToken: strings.TrimSpace(opts.AuthToken),
		rateLimit: opts.RateLimit,
	}
	if srv.host == "" {
		srv.host = defaultHost
	}
	if srv.port <= 0 {
		srv.port = defaultPort
	}

	mux := http.NewServeMux()
	srv.registerAPI(mux)
	srv.registerUI(mux)

	srv.httpServer = &http.Server{
		Addr:              srv.Addr(),
		Handler:           corsMiddleware(logMiddleware(rateLimitMiddleware(srv.rateLimit, authMiddleware(srv.authToken, mux)))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Start binds the listener and serves in a background goroutine. With port 0
// the kernel-assigned port is readable through Addr afterwards.
func (srv *Server) Start() error {
	if srv.httpServer == nil {
		return fmt.Errorf("server not constructed")
	}

	tlsCfg, err := srv.tlsConfig()
	if err != nil {
		return err
	}
	srv.httpServer.TLSConfig = tlsCfg

	ln, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		srv.port = tcpAddr.Port
		srv.httpServer.Addr = srv.Addr()
	}

	go func() {
		serve := srv.httpServer.Serve
		if tlsCfg != nil {
			serve = func(l net.Listener) error { return srv.httpServer.ServeTLS(l, "", "") }
		}
		if err := serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.LogKV("webserver", "serve loop exited", "error", err)
		}
	}()
	return nil
}

// tlsConfig builds the TLS setup for the configured mode, nil for plain HTTP.
func (srv *Server) tlsConfig() (*tls.Config, error) {
	var cert tls.Certificate
	var err error
	switch srv.tlsMode {
	case "":
		return nil, nil
	case "self-signed":
		if cert, err = generateSelfSignedCert(srv.host); err != nil {
			return nil, fmt.Errorf("generating self-signed certificate: %w", err)
		}
	case "custom":
		if cert, err = tls.LoadX509KeyPair(srv.certFile, srv.keyFile); err != nil {
			return nil, fmt.Errorf("loading TLS certificate: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported TLS mode: %q", srv.tlsMode)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

// Shutdown drains in-flight requests and closes the listener.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.httpServer == nil {
		return nil
	}
	return srv.httpServer.Shutdown(ctx)
}

// Addr reports the host:port the server listens on.
func (srv *Server) Addr() string {
	return net.JoinHostPort(srv.host, strconv.Itoa(srv.port))
}

// Scheme is "https" when a TLS mode is set, "http" otherwise.
func (srv *Server) Scheme() string {
	if srv.tlsMode != "" {
		return "https"
	}
	return "http"
}

func (srv *Server) registerAPI(mux *http.ServeMux) {
	// Run control and history
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("POST /api/cancel", srv.handleCancel)
	mux.HandleFunc("GET /api/rounds", srv.handleRounds)
	mux.HandleFunc("GET /api/rounds/{id}", srv.handleRoundByID)
	mux.HandleFunc("GET /api/rounds/{id}/usage", srv.handleRoundUsage)
	mux.HandleFunc("GET /api/sessions", srv.handleLiveSessions)

	// Live streams
	mux.HandleFunc("GET /ws", srv.handleEventsWebSocket)
	mux.HandleFunc("GET /ws/terminal", srv.handleTerminalWebSocket)

	// Unknown API routes answer JSON, not the index page.
	mux.HandleFunc("GET /api/{rest...}", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (srv *Server) registerUI(mux *http.ServeMux) {
	mux.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("GET /", serveIndex)
}

func serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "index unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}
