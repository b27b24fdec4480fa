package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eugenenazirov/stock-packs/internal/api"
	"github.com/eugenenazirov/stock-packs/internal/calculator"
	"github.com/eugenenazirov/stock-packs/internal/config"
	"github.com/eugenenazirov/stock-packs/internal/feed"
	"github.com/eugenenazirov/stock-packs/internal/fulfillment"
	"github.com/eugenenazirov/stock-packs/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage    storage.Storage
	calculator calculator.Calculator
	feed       *feed.Feed
	handler    *api.Handler
	router     http.Handler
	logger     *zap.Logger
	server     *http.Server

	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
	runErr   error

	closeOnce sync.Once
	closeErr  error
}

// New initializes the application with all dependencies from the provided configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	mode, err := fulfillment.ParseMode(cfg.DeductionMode)
	if err != nil {
		return nil, err
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	store, err := OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	watcher, ok := store.(storage.Watcher)
	if !ok {
		_ = store.Close()
		return nil, fmt.Errorf("storage backend %s cannot stream changes", cfg.Storage.Backend)
	}

	calc := calculator.New(cfg.Rules)
	snapshots := feed.New(store, watcher, feed.NewCache(), feed.WithLogger(logger.Named("feed")))
	applier := fulfillment.NewApplier(store,
		fulfillment.WithMode(mode),
		fulfillment.WithLogger(logger.Named("fulfillment")),
	)
	handler := api.NewHandler(calc, store,
		api.WithFeed(snapshots),
		api.WithApplier(applier),
		api.WithRules(cfg.Rules),
		api.WithLogger(logger),
	)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		storage:    store,
		calculator: calc,
		feed:       snapshots,
		handler:    handler,
		router:     apiRouter,
		logger:     logger,
		server:     NewServer(cfg, BuildRootHandler(apiRouter)),
	}, nil
}

// OpenStorage opens the inventory store selected by cfg.Backend.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return storage.NewMemoryStorage(), nil
	case config.BackendFile:
		store, err := storage.OpenFile(cfg.FilePath, storage.WithFileLogger(logger.Named("storage")))
		if err != nil {
			return nil, fmt.Errorf("open inventory file: %w", err)
		}
		return store, nil
	case config.BackendSQLite:
		store, err := storage.OpenSQLite(ctx, cfg.SQLitePath, cfg.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		store, err := storage.OpenPostgres(ctx, cfg.DatabaseURL, cfg.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.BackendFirestore:
		store, err := storage.OpenFirestore(ctx, storage.FirestoreConfig{
			ProjectID:       cfg.FirestoreProjectID,
			Collection:      cfg.FirestoreCollection,
			CredentialsFile: cfg.FirestoreCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("open firestore store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// BuildRootHandler mounts the API under /api/ and answers / with a short
// service description. Other paths return 404.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"service":"stock-packs","health":"/api/health","catalog":"/api/catalog","inventory":"/api/inventory"}` + "\n"))
	}))
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start binds the listen address, then serves HTTP and runs the inventory
// feed in the background until Shutdown or until either of them fails.
func (a *App) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	a.listener = ln

	if _, err := a.feed.Refresh(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return a.feed.Run(gctx)
	})
	g.Go(func() error {
		a.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	go func() {
		a.runErr = g.Wait()
		close(a.done)
	}()
	return nil
}

// Done is closed once the server and feed have both stopped.
func (a *App) Done() <-chan struct{} {
	return a.done
}

// Err returns the error that stopped the app, valid after Done is closed.
func (a *App) Err() error {
	return a.runErr
}

// Addr returns the bound listen address, or the configured one before Start.
func (a *App) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.server.Addr
}

// Server returns the HTTP server instance.
func (a *App) Server() *http.Server {
	return a.server
}

// Shutdown drains in-flight requests, stops the feed and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.done != nil {
		select {
		case <-a.done:
			if a.runErr != nil {
				errs = append(errs, a.runErr)
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for background tasks: %w", ctx.Err()))
		}
	}
	if err := a.closeStorage(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close stops everything immediately without draining requests.
func (a *App) Close() error {
	var errs []error
	if err := a.server.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close http server: %w", err))
	}
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.closeStorage(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeStorage() error {
	a.closeOnce.Do(func() {
		if err := a.storage.Close(); err != nil {
			a.closeErr = fmt.Errorf("close storage: %w", err)
		}
	})
	return a.closeErr
}
