// Package httpapi is the admin REST surface of the farm.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/config"
	"jordanella.com/paws-farm-go/internal/database"
	"jordanella.com/paws-farm-go/internal/logging"
	"jordanella.com/paws-farm-go/internal/optimizer"
)

// Engine is the part of the automation engine exposed over HTTP.
type Engine interface {
	Registry() *account.Registry
	Tunables() *config.Tunables
	Bootstrap(ctx context.Context, id int64) (*account.Account, error)
	Cancel(id int64) (bool, error)
	Ban(id int64, note string) error
	RankedCatalog(ctx context.Context, id int64) ([]optimizer.Ranked, error)
}

// Store is the persistence read and written by the handlers.
type Store interface {
	GetAccountByID(id int64) (*database.Account, error)
	SaveLoginInfo(accountID int64, loginParam, source string) error
	ListPendingLoginRequests() ([]*database.LoginRequest, error)
	ListUpgrades(accountID int64, limit int) ([]*database.UpgradeRecord, error)
	ListMining(accountID int64, limit int) ([]*database.MiningRecord, error)
	GetStats() (map[string]int64, error)
	GetRecentErrors(limit int) ([]*database.ErrorLog, error)
}

// Options configure the router.
type Options struct {
	Metrics     http.Handler
	MetricsPath string
}

// NewRouter wires every admin route.
func NewRouter(eng Engine, store Store, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics)
	}

	h := &handler{eng: eng, store: store, logger: logging.NewLogger("HTTP")}
	r.Get("/stats", h.stats)

	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Get("/{id}", h.getAccount)
		r.Post("/{id}/bootstrap", h.bootstrap)
		r.Post("/{id}/cancel", h.cancel)
		r.Post("/{id}/ban", h.ban)
		r.Post("/{id}/login", h.login)
		r.Get("/{id}/upgrades", h.rankedCatalog)
		r.Get("/{id}/upgrade-log", h.upgradeLog)
		r.Get("/{id}/mining", h.miningLog)
	})

	r.Get("/login-requests", h.pendingLogins)
	r.Get("/errors", h.recentErrors)

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.getSettings)
		r.Put("/mine-count", h.setMineCount)
		r.Put("/upgrade-ceiling", h.setCeiling)
	})

	return r
}

// Server runs the router until Shutdown.
type Server struct {
	srv    *http.Server
	logger *logging.Logger
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logging.NewLogger("HTTP"),
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.InfoWithContext("admin API listening", map[string]interface{}{"addr": s.srv.Addr})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin API stopped", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
