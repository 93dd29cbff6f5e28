package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "modernc.org/sqlite"

	"github.com/vango-dev/smarthttp/internal/config"
	"github.com/vango-dev/smarthttp/internal/dev"
	"github.com/vango-dev/smarthttp/pkg/admin"
	"github.com/vango-dev/smarthttp/pkg/docroot"
	"github.com/vango-dev/smarthttp/pkg/middleware"
	"github.com/vango-dev/smarthttp/pkg/server"
	"github.com/vango-dev/smarthttp/pkg/session"
	"github.com/vango-dev/smarthttp/pkg/workers"
)

// app is a fully wired server process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	root     docroot.Root
	store    session.Store
	db       *sql.DB
	sessions *session.Manager
	registry *workers.Registry
	server   *server.Server
	metrics  *prometheus.Registry

	reload  *dev.ReloadServer
	watcher *dev.Watcher
	admin   *http.Server
}

// newApp builds every component described by cfg. Nothing listens yet.
func newApp(cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.root, err = openRoot(cfg); err != nil {
		return nil, err
	}
	if err = a.openSessions(); err != nil {
		return nil, err
	}

	a.registry = workers.Default()
	bindings, err := cfg.WorkerBindings()
	if err != nil {
		return nil, err
	}
	if err = a.registry.BindAll(bindings); err != nil {
		return nil, err
	}

	serverCfg, err := serverConfig(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Dev.Watch && cfg.Admin.Address != "" {
		serverCfg.DevScriptURL = devScriptURL(cfg.Admin.Address)
		if serverCfg.DevScriptURL == "" {
			logger.Warn("admin address has no fixed port; reload script not injected",
				"address", cfg.Admin.Address)
		}
	}

	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.server = server.New(serverCfg, a.root, a.sessions,
		server.WithLogger(logger),
		server.WithRegistry(a.registry),
		server.WithMiddleware(
			middleware.OpenTelemetry(),
			middleware.Prometheus(
				middleware.WithRegistry(a.metrics),
				middleware.WithSessionCount(func() int { return a.sessions.Stats().Total }),
			),
		),
	)

	if cfg.Dev.Watch {
		a.reload = dev.NewReloadServer()
		if dir, ok := a.root.(*docroot.Dir); ok {
			a.watcher = dev.NewWatcher(dev.WatcherConfig{
				Root:      dir.Path(),
				ScriptExt: serverCfg.ScriptExtension,
			}, a.server.Cache(), a.reload, logger)
		} else {
			logger.Warn("dev.watch needs a directory document root; file watching disabled",
				"storage", cfg.Storage.Kind)
		}
	}

	if cfg.Admin.Address != "" {
		a.admin = &http.Server{
			Addr: cfg.Admin.Address,
			Handler: admin.NewRouter(admin.Config{
				Gatherer: a.metrics,
				Sessions: a.sessions,
				Reload:   a.reload,
				Logger:   logger,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

func openRoot(cfg *config.Config) (docroot.Root, error) {
	if cfg.Storage.Kind == "s3" {
		client := docroot.NewS3Client(docroot.S3Config{
			Bucket:   cfg.Storage.Bucket,
			Prefix:   cfg.Storage.Prefix,
			Region:   cfg.Storage.Region,
			Endpoint: cfg.Storage.Endpoint,
		})
		return docroot.NewS3(client, cfg.Storage.Bucket, cfg.Storage.Prefix), nil
	}
	return docroot.NewDir(cfg.DocumentRootPath())
}

func (a *app) openSessions() error {
	timeout, err := a.cfg.SessionTimeout()
	if err != nil {
		return err
	}
	cleanup, err := a.cfg.CleanupInterval()
	if err != nil {
		return err
	}
	kind, arg, err := a.cfg.SessionStore()
	if err != nil {
		return err
	}

	switch kind {
	case "memory":
		a.store = session.NewMemoryStore(session.WithCleanupInterval(cleanup))
	case "sqlite":
		if a.db, err = sql.Open("sqlite", arg); err != nil {
			return err
		}
		// one connection keeps :memory: databases coherent
		a.db.SetMaxOpenConns(1)
		store := session.NewSQLStore(a.db,
			session.WithSQLDialect(session.DialectSQLite),
			session.WithSQLCleanupInterval(cleanup))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.CreateTable(ctx); err != nil {
			store.Close()
			return err
		}
		a.store = store
	}

	a.sessions = session.NewManager(a.store, session.Config{
		Timeout:         timeout,
		CleanupInterval: cleanup,
	}, a.logger)
	return nil
}

func serverConfig(cfg *config.Config) (server.Config, error) {
	readTimeout, err := cfg.ReadTimeout()
	if err != nil {
		return server.Config{}, err
	}
	mimeTypes, err := cfg.MimeTypes()
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Domain:          cfg.Server.Domain,
		Workers:         cfg.Server.Workers,
		PrivatePrefix:   cfg.Server.PrivatePrefix,
		ScriptExtension: cfg.Server.ScriptExtension,
		MaxHeaderBytes:  cfg.Server.MaxHeaderBytes,
		ReadTimeout:     readTimeout,
		MimeTypes:       mimeTypes,
	}, nil
}

// devScriptURL returns where pages load the reload client from, or "" if
// the admin port is not known before listening.
func devScriptURL(adminAddr string) string {
	host, port, err := net.SplitHostPort(adminAddr)
	if err != nil || port == "" || port == "0" {
		return ""
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + admin.ClientScriptPath
}

// run starts the side services, then serves pages until a signal arrives.
func (a *app) run(ctx context.Context) error {
	defer a.close()

	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return err
		}
		a.logger.Info("watching for changes", "root", a.cfg.DocumentRootPath())
	}

	if a.admin != nil {
		ln, err := net.Listen("tcp", a.admin.Addr)
		if err != nil {
			return err
		}
		a.logger.Info("admin listening", "address", ln.Addr().String())
		go func() {
			if err := a.admin.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				a.logger.Error("admin server failed", "error", err)
			}
		}()
	}

	a.logger.Info("listening",
		"address", a.cfg.ListenAddress(),
		"domain", a.cfg.Server.Domain,
		"workers", a.cfg.Server.Workers)
	return a.server.Run(a.cfg.ListenAddress())
}

// close releases everything newApp acquired. Manager shutdown is
// idempotent, so it is safe after the page server already ran it.
func (a *app) close() {
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.reload != nil {
		a.reload.Close()
	}
	if a.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.admin.Shutdown(ctx)
		cancel()
	}
	if a.sessions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.sessions.Shutdown(ctx)
		cancel()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
