// Package web serves the JSON control API used by the browser UI.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tinygo.org/x/drivers"

	"switchcontrol/types"
	"switchcontrol/x/logx"
)

// Controller is the live switch controller.
type Controller interface {
	UpdateChannel(cfg types.ChannelConfig)
	RequestSwitchChange(actions []types.SwitchAction)
	ForceSwitchChange(action types.SwitchAction)
	GenerateStatus() []types.ServoStatus
}

// Store is the persistent channel configuration.
type Store interface {
	GetConfig(id types.ChannelID) (types.ChannelConfig, error)
	SetConfig(cfg types.ChannelConfig) error
	Channels() []types.ChannelConfig
	Size() int64
}

type Options struct {
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer // /metrics source; nil disables the route
	I2C      drivers.I2C         // bus scanned by /api/i2c; nil reports unsupported
	Name     string
	Version  string
	Started  time.Time
	System   SystemInfoFunc // defaults to gopsutil
}

type Server struct {
	ctl    Controller
	store  Store
	opts   Options
	log    *slog.Logger
	router *mux.Router

	// serialises edits so the store and the controller never disagree
	cfgMu sync.Mutex
	i2cMu sync.Mutex
}

func New(ctl Controller, store Store, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "switchcontrol"
	}
	if opts.Started.IsZero() {
		opts.Started = time.Now()
	}
	if opts.System == nil {
		opts.System = HostSystemInfo
	}
	s := &Server{
		ctl:   ctl,
		store: store,
		opts:  opts,
		log:   logx.OrDiscard(opts.Logger).With("component", "web"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests, cors)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", s.getConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.postConfig).Methods(http.MethodPost)
	api.HandleFunc("/channel", s.getChannels).Methods(http.MethodGet)
	api.HandleFunc("/channel", s.postChannel).Methods(http.MethodPost)
	api.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/i2c", s.getI2C).Methods(http.MethodGet)

	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.Methods(http.MethodOptions).HandlerFunc(preflight)
	return r
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("http listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func preflight(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.code, "took", time.Since(start))
	})
}
