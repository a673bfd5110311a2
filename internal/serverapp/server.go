// Package serverapp assembles the HTTP server: store backend selection,
// derivation triggers, services and routes.
package serverapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"scheda/internal/bazaar"
	"scheda/internal/config"
	"scheda/internal/derive"
	"scheda/internal/dm"
	"scheda/internal/docstore"
	"scheda/internal/httpmw"
	"scheda/internal/server"
	"scheda/internal/varie"
)

type Options struct {
	Config *config.Config
	Logger *log.Logger
}

// NewHandler wires the full application. The returned App owns the store;
// callers close it on shutdown.
func NewHandler(opts Options) (http.Handler, *server.App, error) {
	if opts.Config == nil {
		return nil, nil, errors.New("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	cfg := opts.Config

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	varieSource := varie.NewSource(store, varie.NewCache[string, varie.Doc](cfg.Utils.CacheTTL))
	derive.NewTriggers(store, varieSource, opts.Logger).Register()

	app := &server.App{
		Store:   store,
		Config:  cfg,
		Bazaar:  bazaar.NewService(store, opts.Logger),
		DM:      dm.NewService(store, varieSource, cfg.Leveling.MaxLevel, opts.Logger),
		Varie:   varieSource,
		Logger:  opts.Logger,
		BootNow: time.Now().UTC(),
	}

	mux := http.NewServeMux()
	rr := &server.RouteRegistry{}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "scheda",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := store.List(r.Context(), varie.Collection); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":    false,
				"error": "document store unavailable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "scheda",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	server.RegisterAPIRoutes(mux, rr, app)
	server.RegisterLiveRoutes(mux, rr, app)
	server.RegisterAdminUI(mux, rr)

	handler := httpmw.Chain(
		mux,
		httpmw.WithAccessLog(opts.Logger),
		httpmw.WithRequestID,
		httpmw.WithRecover(opts.Logger),
	)
	return handler, app, nil
}

func openStore(cfg *config.Config) (*docstore.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return docstore.NewMemoryStore(), nil
	case "file":
		return docstore.OpenFileStore(cfg.Store.DataDir)
	case "sqlite":
		return docstore.OpenSQLiteStore(cfg.Store.SQLitePath)
	case "postgres":
		return docstore.OpenPostgresStore(cfg.Store.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
