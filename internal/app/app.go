package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"authflow-go/internal/auth"
	"authflow-go/internal/config"
	"authflow-go/internal/logging"
	"authflow-go/internal/session"
	"authflow-go/internal/storage"
	"authflow-go/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Application holds all the major components of the service.
type Application struct {
	Config        *config.Config
	Logger        *logrus.Logger
	Flows         *auth.FlowInitiator
	Callbacks     *auth.CallbackCompleter
	FlowKV        storage.Storage
	DB            *storage.SQLiteKV
	SessionStore  session.Store
	HttpServer    *http.Server
	MetricsServer *http.Server
	WorkerPool    *worker.WorkerPool
	Sweeper       *worker.Sweeper

	logCloser io.Closer
}

// New creates and initializes a new Application instance.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	logger, logCloser, err := logging.New(logging.Options{
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		JSON:      cfg.Log.Format == "json",
	})
	if err != nil {
		return nil, err
	}

	app := &Application{
		Config:       cfg,
		Logger:       logger,
		SessionStore: session.NewInMemoryStore(),
		logCloser:    logCloser,
	}

	// Setup: Flow store
	switch cfg.Store.Driver {
	case "sqlite":
		dbCfg := storage.DefaultConfig()
		dbCfg.Path = cfg.Store.DBPath
		dbCfg.EncryptionKey = []byte(cfg.Store.EncryptionKey)
		db, err := storage.OpenDatabase(ctx, dbCfg)
		if err != nil {
			logCloser.Close()
			return nil, fmt.Errorf("failed to open flow store: %w", err)
		}
		app.DB = db
		app.FlowKV = db
	default:
		app.FlowKV = auth.NewInMemoryKV()
	}
	flowStore := auth.NewKVFlowStore(app.FlowKV, cfg.Store.FlowTTL.Duration)

	// Setup: Flow initiator and callback completer
	flowCfg := auth.FlowConfig{
		AuthorizationURL: cfg.OAuth.AuthorizationURL,
		TokenURL:         cfg.OAuth.TokenURL,
		ClientID:         cfg.OAuth.ClientID,
		ClientSecret:     cfg.OAuth.ClientSecret,
		RedirectURI:      cfg.OAuth.RedirectURI,
		VerifierLength:   cfg.OAuth.VerifierLength,
		SingleFlow:       cfg.OAuth.SingleFlow,
	}
	app.Flows, err = auth.NewFlowInitiator(flowCfg, flowStore, auth.WithLogger(logger))
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to create flow initiator: %w", err)
	}

	var signingKey []byte
	if cfg.OAuth.IDTokenSigningKey != "" {
		signingKey = []byte(cfg.OAuth.IDTokenSigningKey)
	}
	app.Callbacks = auth.NewCallbackCompleter(flowCfg.OAuth2Config(), flowStore,
		auth.NewHMACIDTokenVerifier(signingKey, cfg.OAuth.ClientID), logger)

	// Setup: WorkerPool and sweeper
	app.WorkerPool = worker.NewWorkerPool(cfg.Worker.NumWorkers)
	app.Sweeper = worker.NewSweeper(app.WorkerPool, cfg.Store.SweepInterval.Duration, logger)
	app.Sweeper.Register("flows", app.FlowKV)
	app.Sweeper.Register("sessions", app.SessionStore)

	// Setup: HTTP Server for metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	app.MetricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Setup: Main HTTP Server
	app.HttpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return app, nil
}

// Routes returns the main HTTP handler.
func (a *Application) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", a.handleLogin)
	mux.HandleFunc("GET /callback", a.handleCallback)
	mux.HandleFunc("GET /logout", a.handleLogout)
	mux.HandleFunc("GET /healthz", a.handleHealthz)

	// Protected routes
	mux.Handle("GET /dashboard", a.requireAuth(http.HandlerFunc(a.handleDashboard)))
	mux.Handle("GET /{$}", a.requireAuth(http.RedirectHandler("/dashboard", http.StatusSeeOther)))

	return a.logRequests(mux)
}

// Start begins the application's services. Listener failures are reported on
// the returned channel.
func (a *Application) Start(ctx context.Context) (<-chan error, error) {
	a.Logger.Info("Starting application services...")

	a.WorkerPool.Start()
	if err := a.Sweeper.Start(ctx); err != nil {
		a.WorkerPool.Stop()
		return nil, err
	}
	a.Logger.WithField("interval", a.Config.Store.SweepInterval.Duration).Info("Sweeper started")

	httpLn, err := net.Listen("tcp", a.HttpServer.Addr)
	if err != nil {
		a.Sweeper.Stop()
		a.WorkerPool.Stop()
		return nil, fmt.Errorf("failed to listen on %s: %w", a.HttpServer.Addr, err)
	}
	metricsLn, err := net.Listen("tcp", a.MetricsServer.Addr)
	if err != nil {
		httpLn.Close()
		a.Sweeper.Stop()
		a.WorkerPool.Stop()
		return nil, fmt.Errorf("failed to listen on %s: %w", a.MetricsServer.Addr, err)
	}

	errc := make(chan error, 2)
	serve := func(name string, srv *http.Server, ln net.Listener) {
		a.Logger.WithField("addr", ln.Addr().String()).Infof("Starting %s server", name)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.WithError(err).Errorf("%s server stopped", name)
			errc <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go serve("metrics", a.MetricsServer, metricsLn)
	go serve("HTTP", a.HttpServer, httpLn)

	return errc, nil
}

// Stop gracefully shuts down the application's services.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Info("Stopping application services...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.WithError(err).Error("HTTP server shutdown error")
		errs = append(errs, err)
	}
	if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.WithError(err).Error("Metrics server shutdown error")
		errs = append(errs, err)
	}

	a.Sweeper.Stop()
	a.WorkerPool.Stop()
	a.Logger.Info("Worker pool stopped.")

	if err := a.closeStores(); err != nil {
		a.Logger.WithError(err).Error("Error closing database")
		errs = append(errs, err)
	}

	a.Logger.Info("Application stopped gracefully.")
	a.logCloser.Close()
	return errors.Join(errs...)
}

// Close releases resources without going through the servers; used when the
// application was built but never started.
func (a *Application) Close() error {
	err := a.closeStores()
	a.logCloser.Close()
	return err
}

func (a *Application) closeStores() error {
	if a.DB == nil {
		return nil
	}
	err := a.DB.Close()
	a.DB = nil
	return err
}
