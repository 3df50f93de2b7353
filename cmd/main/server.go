package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CTAG07/Sluice/pkg/compiler"
	"github.com/CTAG07/Sluice/pkg/render"
	"github.com/CTAG07/Sluice/pkg/versions"
)

type Server struct {
	cm          *ConfigManager
	db          *sql.DB
	logger      *slog.Logger
	compiler    *compiler.Compiler
	store       *versions.Store
	renderer    render.Renderer
	assets      *AssetEncoder
	authAPI     *AuthAPI
	templateAPI *TemplateAPI
	statsAPI    *StatsAPI
	serverAPI   *ServerAPI
	apiMux      *http.ServeMux
	actionChan  chan string
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	config := cm.Get()

	store, err := versions.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("error creating version store: %w", err)
	}
	store.SetLogger(logger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Persisted versions are only trusted when the operator says the sources
	// are unchanged; otherwise the table restarts empty with this session.
	cache := versions.NewCache(store)
	if config.Server.SeedVersions {
		n, err := cache.Seed(ctx)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to seed version cache: %w", err)
		}
		logger.Info("Version cache seeded from database", "templates", n)
	} else if err = cache.Reset(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to reset version table: %w", err)
	}

	c := compiler.NewCompiler(logger, compiler.NewFileLoader(config.Server.TemplateDir), cache, *config.Compiler)

	local := render.NewLocalHost(c, logger, config.Render.TemplateRoot)
	var renderer render.Renderer = local
	if config.Render.Mode == renderModeRemote {
		renderer = render.NewRemoteHost(c, config.Render.RemoteConfig(), logger)
	}

	assets := NewAssetEncoder(config.Server.MinifyBundles, config.Server.CompressOutput, logger)

	// api initialization
	statsAPI := NewStatsAPI(db, logger)
	authAPI := NewAuthAPI(db, logger)
	serverAPI := NewServerAPI(cm, actionChan, logger)

	server := &Server{
		cm:         cm,
		db:         db,
		logger:     logger,
		compiler:   c,
		store:      store,
		renderer:   renderer,
		assets:     assets,
		authAPI:    authAPI,
		statsAPI:   statsAPI,
		serverAPI:  serverAPI,
		apiMux:     http.NewServeMux(),
		actionChan: actionChan,
	}
	server.templateAPI = NewTemplateAPI(c, renderer, local, assets, statsAPI, server.ReloadTemplates, logger)

	apiMux := http.NewServeMux()

	server.authAPI.RegisterRoutes(apiMux)
	server.templateAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Make sure api functions must pass through authentication first
	authedAPI := server.authAPI.Authenticate(apiMux)
	// ... except for the health check, which is unauthed so something like docker can use it
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", authedAPI)

	return server, nil
}

// Precompile writes the bundles listed in the config to the bundle directory.
func (s *Server) Precompile() {
	config := s.cm.Get()
	n, err := precompileBundles(s.compiler, s.assets, config.Server.Precompile, config.Server.BundleDir, config.Server.CompressOutput, s.logger)
	if err != nil {
		s.logger.Error("Failed to precompile bundles", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Precompiled bundles", "count", n, "dir", config.Server.BundleDir)
	}
}

// ReloadTemplates forgets every persisted version and restarts the server
// cycle, so the next compilation session reads sources from disk again. A
// compilation session never recompiles a template it has already seen.
func (s *Server) ReloadTemplates(ctx context.Context) error {
	if err := s.store.ReplaceAll(ctx, map[string]compiler.DependencyMap{}); err != nil {
		return fmt.Errorf("failed to clear version table: %w", err)
	}
	select {
	case s.actionChan <- actionRestart:
		s.logger.Info("Template reload requested, restarting")
	default:
		// an action is already pending
	}
	return nil
}

// Close releases the server's prepared statements.
func (s *Server) Close() {
	s.store.Close()
}
