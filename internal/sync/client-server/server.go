package clientserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/victorvcruz/clipsync/internal/clipboard"
	syncTypes "github.com/victorvcruz/clipsync/internal/sync"
)

const (
	DefaultShutdownTimeout = 5 * time.Second

	maxBodyBytes = syncTypes.MaxRequestBytes
)

type ServerOptions struct {
	// Addr is the listen address, e.g. ":5000". Port 0 picks a free port.
	Addr            string
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	Stats           *syncTypes.Stats
}

// Server accepts clipboard payloads from the peer, decrypts them and
// applies them to the local clipboard.
type Server struct {
	http      *http.Server
	listener  net.Listener
	decrypter syncTypes.Decrypter
	applier   syncTypes.ClipboardApplier
	logger    *slog.Logger
	stats     *syncTypes.Stats
	opts      ServerOptions
	serveDone chan struct{}
}

func NewServer(decrypter syncTypes.Decrypter, applier syncTypes.ClipboardApplier, opts ServerOptions) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stats == nil {
		opts.Stats = syncTypes.NewStats()
	}

	ss := &Server{
		decrypter: decrypter,
		applier:   applier,
		logger:    opts.Logger,
		stats:     opts.Stats,
		opts:      opts,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(syncTypes.ClipboardPath, ss.handleClipboard)
	mux.HandleFunc(syncTypes.HealthPath, ss.handleHealth)

	ss.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           ss.recoverPanics(ss.logRequests(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(opts.Logger.Handler(), slog.LevelWarn),
	}
	return ss
}

// Handler exposes the routes without a listener.
func (ss *Server) Handler() http.Handler {
	return ss.http.Handler
}

// Start binds the listen address and serves in the background. A bind
// failure is returned here so startup can abort.
func (ss *Server) Start() error {
	listener, err := net.Listen("tcp", ss.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ss.opts.Addr, err)
	}
	ss.listener = listener
	ss.serveDone = make(chan struct{})

	ss.logger.Info("sync server listening", "addr", listener.Addr().String())
	go func() {
		defer close(ss.serveDone)
		if err := ss.http.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			ss.logger.Error("sync server stopped unexpectedly", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (ss *Server) Addr() net.Addr {
	if ss.listener == nil {
		return nil
	}
	return ss.listener.Addr()
}

// Stop stops accepting connections and waits up to ShutdownTimeout for
// in-flight requests. Connections still open after that are closed.
func (ss *Server) Stop(ctx context.Context) error {
	if ss.listener == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, ss.opts.ShutdownTimeout)
	defer cancel()

	err := ss.http.Shutdown(ctx)
	if err != nil {
		ss.logger.Warn("grace period expired, closing remaining connections", "error", err)
		ss.http.Close() //nolint:errcheck
	}
	<-ss.serveDone
	ss.logger.Info("sync server stopped")
	return err
}

func (ss *Server) handleClipboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, syncTypes.CodeMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Data *string `json:"data"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(&req)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		ss.stats.IncRejected()
		ss.logger.Warn("rejected clipboard request", "remote", r.RemoteAddr, "reason", syncTypes.CodePayloadTooLarge, "limit", tooLarge.Limit)
		writeError(w, http.StatusRequestEntityTooLarge, syncTypes.CodePayloadTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	if err != nil || req.Data == nil {
		ss.stats.IncRejected()
		ss.logger.Warn("rejected clipboard request", "remote", r.RemoteAddr, "reason", syncTypes.CodeMissingData)
		writeError(w, http.StatusBadRequest, syncTypes.CodeMissingData, syncTypes.MissingDataMessage)
		return
	}

	content, err := ss.decrypter.Decrypt(*req.Data)
	if err != nil {
		ss.stats.IncRejected()
		ss.logger.Warn("rejected clipboard request", "remote", r.RemoteAddr, "reason", syncTypes.CodeDecryptFailed, "error", err)
		writeError(w, http.StatusInternalServerError, syncTypes.CodeDecryptFailed, err.Error())
		return
	}

	if err := ss.applier.SetClipboardExternal(content); err != nil {
		ss.stats.IncRejected()
		ss.logger.Error("failed to set clipboard", "remote", r.RemoteAddr, "error", err)
		writeError(w, http.StatusInternalServerError, syncTypes.CodeClipboardWriteFailed, err.Error())
		return
	}

	ss.stats.IncReceived()
	ss.logger.Info("received clipboard",
		"remote", r.RemoteAddr,
		"length", len(content),
		"fingerprint", clipboard.Fingerprint(content),
	)
	writeJSON(w, http.StatusOK, syncTypes.ClipboardResponse{Status: syncTypes.StatusSuccess})
}

func (ss *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, syncTypes.CodeMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, ss.stats.Health())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (ss *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		ss.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (ss *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				ss.logger.Error("panic in handler", "path", r.URL.Path, "panic", v)
				writeError(w, http.StatusInternalServerError, "", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, syncTypes.ErrorResponse{Error: message, Code: code})
}
