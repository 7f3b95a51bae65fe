// Package servers implements the bus's server-plugin contract for an HTTP
// listener: started from START, drained from STOP, reporting readiness at
// /healthz once it has bound its listening socket.
package servers

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/cherrypy/magicbus"
)

// LogFunc is how the server reports request activity and lifecycle events;
// typically bus.Log.
type LogFunc func(msg string, level magicbus.LogLevel, traceback bool)

// Server is an HTTP server plugin: Router() lets a caller register
// application routes before Start; StartListener/StopListener wire its
// lifecycle to the bus's START/STOP channels.
type Server struct {
	addr       string
	router     chi.Router
	httpServer *http.Server
	log        LogFunc

	ready    atomic.Bool
	listener net.Listener
}

// Option customizes Server construction.
type Option func(*Server)

// WithAllowedOrigins configures CORS; without this option, cross-origin
// requests are rejected.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"*"},
		}))
	}
}

// WithLogFunc overrides the logger used for request/lifecycle logging
// (a no-op logger by default).
func WithLogFunc(fn LogFunc) Option {
	return func(s *Server) { s.log = fn }
}

// NewServer returns a Server bound to addr (not yet listening — see
// StartListener). Register application routes on Router() before
// subscribing StartListener to a bus.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		router: chi.NewRouter(),
		log:    func(string, magicbus.LogLevel, bool) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router.Use(s.requestLogger)
	s.router.Get("/healthz", s.handleHealthz)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s
}

// Router exposes the chi router so callers can register application
// routes before the server starts.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"status":"not ready"}`))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		level := magicbus.LevelInfo
		if rec.status >= 500 {
			level = magicbus.LevelError
		} else if rec.status >= 400 {
			level = magicbus.LevelWarn
		}
		s.log(requestID+" "+r.Method+" "+r.URL.Path+" "+http.StatusText(rec.status)+" "+time.Since(start).String(),
			level, false)
	})
}

// ServerPlugin is the contract any server-shaped bus collaborator can
// satisfy to be driven from START/STOP listeners; Server is the concrete
// HTTP implementation.
type ServerPlugin interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ready() bool
}

var _ ServerPlugin = (*Server)(nil)

// Start binds the listening socket and begins serving. It returns once the
// socket is bound, before Serve's accept loop has necessarily run —
// readiness only flips true after the bind succeeds, so a liveness check
// racing Start will correctly report not-ready rather than
// connection-refused-as-success.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.ready.Store(true)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log("http server stopped: "+err.Error(), magicbus.LevelError, false)
		}
	}()
	s.log("http server listening on "+ln.Addr().String(), magicbus.LevelInfo, false)
	return nil
}

// Stop drains in-flight requests and closes the listening socket.
func (s *Server) Stop(ctx context.Context) error {
	s.ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Ready reports whether the server has bound its listening socket.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// StartListener returns a START-channel subscriber wrapping Start.
func (s *Server) StartListener() magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		return nil, s.Start(context.Background())
	}
}

// StopListener returns a STOP-channel subscriber wrapping Stop.
func (s *Server) StopListener() magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		return nil, s.Stop(context.Background())
	}
}
