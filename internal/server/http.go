package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coffersTech/logvault/internal/hub"
	"github.com/coffersTech/logvault/internal/metrics"
	"github.com/coffersTech/logvault/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fastjson"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const defaultMaxBodyBytes = 10 << 20

// Options configures a Server. The zero value serves the API without auth,
// rate limiting or static files.
type Options struct {
	// WebDir is served at / when set.
	WebDir string
	// APIKeyHash is a bcrypt hash; when set every /api request must carry the
	// matching token.
	APIKeyHash string
	// IngestRate is the sustained ingest requests per second; 0 disables limiting.
	IngestRate  float64
	IngestBurst int
	// MaxBodyBytes caps request bodies; 0 means 10 MiB.
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// Server exposes a Store over HTTP.
type Server struct {
	store   *storage.Store
	hub     *hub.Hub
	opts    Options
	logger  *slog.Logger
	limiter *rate.Limiter
	parser  fastjson.ParserPool
	srv     *http.Server

	tokensMu sync.RWMutex
	tokens   map[string]struct{}
}

// NewServer wires a store and a live-tail hub into an HTTP API.
// h may be nil, in which case the stream endpoint is not registered.
func NewServer(store *storage.Store, h *hub.Hub, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		store:  store,
		hub:    h,
		opts:   opts,
		logger: logger.With("component", "http"),
		tokens: make(map[string]struct{}),
	}
	if opts.IngestRate > 0 {
		burst := opts.IngestBurst
		if burst < 1 {
			burst = int(opts.IngestRate)
			if burst < 1 {
				burst = 1
			}
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.IngestRate), burst)
	}
	return s
}

// Handler returns the fully wired request handler.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.Handle("POST /api/logs", s.rateLimit(http.HandlerFunc(s.handleCreate)))
	api.HandleFunc("GET /api/logs", s.handleList)
	api.Handle("POST /api/logs/bulk", s.rateLimit(http.HandlerFunc(s.handleBulk)))
	api.HandleFunc("GET /api/logs/stats/overview", s.handleStats)
	api.HandleFunc("GET /api/logs/stats/histogram", s.handleHistogram)
	api.HandleFunc("GET /api/logs/{id}", s.handleGet)
	api.HandleFunc("PUT /api/logs/{id}", s.handleUpdate)
	api.HandleFunc("DELETE /api/logs/{id}", s.handleDelete)
	if s.hub != nil {
		api.HandleFunc("GET /api/logs/stream", s.handleStream)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(api))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.opts.WebDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.opts.WebDir)))
	}

	return s.metricsMiddleware(mux)
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// authMiddleware checks for a valid token in the Authorization header or the
// token query parameter. Verified tokens are cached since bcrypt is slow.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.opts.APIKeyHash == "" {
		return next
	}
	hash := []byte(s.opts.APIKeyHash)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="logvault"`)
			writeError(w, http.StatusUnauthorized, "Unauthorized: missing token", "")
			return
		}

		s.tokensMu.RLock()
		_, ok := s.tokens[token]
		s.tokensMu.RUnlock()

		if !ok {
			if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="logvault"`)
				writeError(w, http.StatusUnauthorized, "Unauthorized: invalid token", "")
				return
			}
			s.tokensMu.Lock()
			s.tokens[token] = struct{}{}
			s.tokensMu.Unlock()
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects ingest requests beyond the configured rate with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			metrics.IngestRejected.WithLabelValues("rate_limited").Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Too many requests", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
