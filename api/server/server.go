// Package server exposes the registry over HTTP: signed transaction
// submission, record and event queries, a live event stream and the node's
// health endpoints.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"aidledger/core/notify"
	"aidledger/core/program"
	"aidledger/core/storage"
	"aidledger/core/validation"
)

// StatsSource reports store contents for /status.
type StatsSource interface {
	Stats() (storage.Stats, error)
}

type Options struct {
	ListenAddr      string
	JWTSecret       string
	RateLimitPerMin int
	TLSCertPath     string
	TLSKeyPath      string
	EventBuffer     int
	Gatherer        prometheus.Gatherer
	Logger          zerolog.Logger

	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is
	// believed. Requests from anywhere else are keyed on the socket address.
	TrustedProxies []string
}

type Server struct {
	prog      *program.Program
	stats     StatsSource
	hub       *notify.Hub
	validator *validation.Validator
	limiter   *rateLimiter
	proxies   []netip.Prefix
	opts      Options
	logger    zerolog.Logger
	startTime time.Time
	ready     func() bool

	replayPage int
}

func NewServer(prog *program.Program, stats StatsSource, hub *notify.Hub, v *validation.Validator, opts Options) *Server {
	s := &Server{
		prog:      prog,
		stats:     stats,
		hub:       hub,
		validator: v,
		opts:      opts,
		logger:    opts.Logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),

		replayPage: maxEventLimit,
	}
	if opts.RateLimitPerMin > 0 {
		s.limiter = newRateLimiter(opts.RateLimitPerMin)
	}
	for _, p := range opts.TrustedProxies {
		prefix, err := ParseProxy(p)
		if err != nil {
			s.logger.Warn().Err(err).Str("proxy", p).Msg("ignoring trusted proxy")
			continue
		}
		s.proxies = append(s.proxies, prefix)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/tx", s.requireJWT(http.HandlerFunc(s.handleSubmitTx)))
	mux.HandleFunc("POST /api/v1/tx/inspect", s.handleInspectTx)

	mux.HandleFunc("GET /api/v1/ngo/{address}", s.handleGetNgo)
	mux.HandleFunc("GET /api/v1/ngo/admin/{admin}", s.handleGetNgoByAdmin)
	mux.HandleFunc("GET /api/v1/ngo/{address}/batch/{index}", s.handleGetBatchByIndex)
	mux.HandleFunc("GET /api/v1/batch/{address}", s.handleGetBatch)
	mux.HandleFunc("GET /api/v1/accounts", s.handleListAccounts)
	mux.HandleFunc("GET /api/v1/events", s.handleListEvents)
	mux.HandleFunc("GET /api/v1/events/stream", s.handleEventStream)

	mux.HandleFunc("GET /nodehealth", s.HandleNodeHealth)
	mux.HandleFunc("GET /health/liveness", s.HandleLiveness)
	mux.HandleFunc("GET /health/readiness", s.HandleReadiness)
	mux.HandleFunc("GET /status", s.HandleStatus)

	gatherer := s.opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return s.logRequests(s.rateLimit(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.opts.TLSCertPath != "" {
			s.logger.Info().Str("addr", s.opts.ListenAddr).Str("cert", s.opts.TLSCertPath).Msg("API server listening (HTTPS)")
			errCh <- srv.ListenAndServeTLS(s.opts.TLSCertPath, s.opts.TLSKeyPath)
			return
		}
		s.logger.Info().Str("addr", s.opts.ListenAddr).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// SetReadiness overrides the readiness probe.
func (s *Server) SetReadiness(fn func() bool) { s.ready = fn }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets the event stream push through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("client", s.clientIP(r)).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := s.clientIP(r)
		if ok, banned := s.limiter.Allow(client); !ok {
			s.logger.Warn().Str("client", client).Dur("banned_for", banned).Msg("rate limited")
			w.Header().Set("Retry-After", retryAfter(banned))
			writeError(w, http.StatusTooManyRequests, "RateLimited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ParseProxy accepts a single IP or a CIDR.
func ParseProxy(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (s *Server) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP is the socket peer, unless that peer is a trusted proxy: then it is
// the nearest X-Forwarded-For hop that is not itself a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !s.trusted(peer) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}
		peer = hop
		if !s.trusted(hop) {
			break
		}
	}
	return peer
}
