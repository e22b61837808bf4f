// Package app provides the application lifecycle for partwise: the shared
// resources used by the plan mode and the gRPC plan service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc"

	grpcapi "github.com/partwise/partwise/internal/api/grpc"
	"github.com/partwise/partwise/internal/catalog"
	"github.com/partwise/partwise/internal/config"
	"github.com/partwise/partwise/internal/manifest"
	"github.com/partwise/partwise/internal/planner"
	"github.com/partwise/partwise/internal/server"
	"github.com/partwise/partwise/internal/storage"
)

// App manages the partwise resources and, in serve mode, the gRPC service.
type App struct {
	cfg *config.Config

	// Shared resources
	pool         *pgxpool.Pool
	introspector *catalog.Introspector
	storage      storage.ObjectStorage
	catalog      *manifest.SQLiteCatalog
	shutdown     *server.ShutdownManager

	// Service components
	grpcServer   *grpc.Server
	grpcListener net.Listener
	planServer   *grpcapi.PlanServer

	// Lifecycle
	mu      sync.Mutex
	opened  bool
	running bool
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{
		cfg:      cfg,
		shutdown: server.NewShutdownManager(server.DefaultShutdownConfig()),
	}, nil
}

// Open initializes the database pool, script storage and manifest. It is
// called by Start and Plan and is a no-op once resources are open.
func (a *App) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}

	store, err := OpenStorage(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	a.storage = store
	log.Printf("app: storage initialized: type=%s", a.cfg.Storage.Type)
	if a.cfg.Storage.Type == "s3" {
		log.Printf("app: S3 config: bucket=%s, region=%s, endpoint=%s",
			a.cfg.Storage.S3.Bucket, a.cfg.Storage.S3.Region, a.cfg.Storage.S3.Endpoint)
	}

	cat, err := manifest.NewCatalog(a.cfg.ManifestPath())
	if err != nil {
		return fmt.Errorf("failed to initialize manifest catalog: %w", err)
	}
	a.catalog = cat
	log.Printf("app: manifest catalog initialized: %s", a.cfg.ManifestPath())

	pool, err := OpenPool(ctx, a.cfg.Database)
	if err != nil {
		cat.Close()
		return err
	}
	a.pool = pool
	a.introspector = catalog.NewIntrospector(pool, a.cfg.Database.DefaultSchema)

	// Closers run in reverse order: the pool goes first, the manifest last.
	a.shutdown.RegisterCloser(a.catalog)
	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		a.pool.Close()
		return nil
	}))

	a.opened = true
	return nil
}

// OpenStorage creates the script store described by cfg.
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		store, err := storage.NewLocalStorage(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if cfg.S3.Region != "" {
			s3Cfg.Region = cfg.S3.Region
		}
		s3Cfg.Endpoint = cfg.S3.Endpoint
		s3Cfg.UsePathStyle = cfg.S3.UsePathStyle
		store, err := storage.NewS3Storage(ctx, cfg.S3.Bucket, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// OpenPool connects to PostgreSQL and verifies the connection.
func OpenPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return nil, fmt.Errorf("failed to connect to database (SQLSTATE %s): %w", pgErr.Code, err)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Printf("app: connected to %s@%s (max %d connections)",
		poolCfg.ConnConfig.Database, poolCfg.ConnConfig.Host, poolCfg.MaxConns)
	return pool, nil
}

// Plan reconciles the configured tables against the database, then records
// and publishes the plan. Returns the plan and its script's object path.
func (a *App) Plan(ctx context.Context) (*planner.Plan, string, error) {
	if err := a.Open(ctx); err != nil {
		return nil, "", err
	}

	specs, err := a.cfg.TableSpecs()
	if err != nil {
		return nil, "", err
	}
	plan, err := planner.New(a.introspector).Plan(ctx, specs)
	if err != nil {
		return nil, "", err
	}

	objectPath, err := manifest.Publish(ctx, a.catalog, a.storage, plan)
	if err != nil {
		return plan, "", err
	}
	a.prunePlans(ctx)
	return plan, objectPath, nil
}

// Start opens shared resources and starts the gRPC plan service.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	if err := a.Open(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	a.checkManifest(ctx)
	a.prunePlans(ctx)

	if a.cfg.GRPC.Enabled {
		if err := a.startGRPCService(); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start gRPC service: %w", err)
		}
	}

	log.Printf("partwise started in %s mode", a.cfg.Mode)
	return nil
}

// checkManifest logs plans and scripts that disagree between the manifest
// and storage. Failures are not fatal.
func (a *App) checkManifest(ctx context.Context) {
	report, err := manifest.Reconcile(ctx, a.catalog, a.storage, storage.ScriptPrefix)
	if err != nil {
		log.Printf("app: [WARN] manifest reconciliation failed: %v", err)
		return
	}
	if report.HasIssues() || len(report.Unpublished) > 0 {
		log.Printf("app: [WARN] manifest reconciliation: %d dangling, %d orphaned, %d unpublished",
			len(report.DanglingEntries), len(report.OrphanedObjects), len(report.Unpublished))
	}
}

func (a *App) startGRPCService() error {
	a.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(server.UnaryInterceptor(a.shutdown)))
	a.planServer = grpcapi.NewPlanServer(a.introspector, a.catalog, a.storage)
	grpcapi.RegisterPlanServiceServer(a.grpcServer, a.planServer)

	var err error
	a.grpcListener, err = net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Addr, err)
	}

	graceful := server.NewGracefulGRPCServer(a.grpcServer, a.shutdown)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("app: gRPC plan service listening on %s", a.grpcListener.Addr())
		if err := graceful.Serve(a.grpcListener); err != nil {
			log.Printf("app: gRPC server error: %v", err)
		}
	}()

	a.wg.Add(1)
	go a.maintain(5 * time.Minute)
	a.shutdown.OnShutdownStart(a.logStats)
	return nil
}

// maintain drops stale plan statistics and applies plan retention until
// shutdown begins.
func (a *App) maintain(interval time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.shutdown.ShutdownCh():
			return
		case <-ticker.C:
			a.planServer.Stats().Prune()
			a.prunePlans(context.Background())
		}
	}
}

// prunePlans removes plans older than the configured retention.
func (a *App) prunePlans(ctx context.Context) {
	if a.cfg.Manifest.Retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-a.cfg.Manifest.Retention)
	result, err := manifest.NewPruner(a.catalog, a.storage).PruneBefore(ctx, cutoff, a.cfg.Manifest.KeepLatest)
	if err != nil {
		log.Printf("app: [WARN] plan retention failed: %v", err)
		return
	}
	if len(result.FailedScripts) > 0 {
		log.Printf("app: [WARN] %d scripts of pruned plans could not be deleted", len(result.FailedScripts))
	}
}

// logStats logs the most planned tables and those pending a rebuild.
func (a *App) logStats() {
	stats := a.planServer.Stats()
	for _, s := range stats.Top(5) {
		log.Printf("app: %s planned %d times, last delta %s", s.Table, s.Plans, s.LastDelta)
	}
	if rebuilding := stats.Rebuilding(); len(rebuilding) > 0 {
		log.Printf("app: [WARN] tables last planned for a rebuild: %v", rebuilding)
	}
}

// Stop drains in-flight calls, stops the gRPC server and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	log.Printf("app: initiating graceful shutdown...")
	err := a.shutdown.Shutdown(ctx, "stop requested")
	a.wg.Wait()
	log.Printf("partwise stopped")
	return err
}

// cleanup releases shared resources after a failed start.
func (a *App) cleanup() {
	if a.grpcListener != nil {
		a.grpcListener.Close()
	}
	if err := a.shutdown.Shutdown(context.Background(), "startup failed"); err != nil {
		log.Printf("app: [WARN] cleanup: %v", err)
	}
}

// WaitForShutdown blocks until a shutdown signal is received or ctx ends,
// then shuts down.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	a.wg.Wait()
	return err
}

// Close releases shared resources without serving. Used by the plan mode.
func (a *App) Close() error {
	return a.shutdown.Shutdown(context.Background(), "done")
}
