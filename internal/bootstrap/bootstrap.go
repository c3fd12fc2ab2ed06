// Package bootstrap wires the configured stores, clients and services shared by
// the api server and the petri CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/bryanwahyu/petri/internal/application"
	"github.com/bryanwahyu/petri/internal/application/advisor"
	appindex "github.com/bryanwahyu/petri/internal/application/index"
	"github.com/bryanwahyu/petri/internal/application/lifecycle"
	"github.com/bryanwahyu/petri/internal/application/poller"
	"github.com/bryanwahyu/petri/internal/config"
	"github.com/bryanwahyu/petri/internal/domain/analysis"
	domain "github.com/bryanwahyu/petri/internal/domain/index"
	"github.com/bryanwahyu/petri/internal/infra/ai/openai"
	"github.com/bryanwahyu/petri/internal/infra/ai/prompt"
	"github.com/bryanwahyu/petri/internal/infra/analysisapi"
	mysqlp "github.com/bryanwahyu/petri/internal/infra/db/mysql"
	"github.com/bryanwahyu/petri/internal/infra/db/postgres"
	"github.com/bryanwahyu/petri/internal/infra/db/sqlite"
	"github.com/bryanwahyu/petri/internal/infra/logging"
	minioStore "github.com/bryanwahyu/petri/internal/infra/storage"
	"github.com/bryanwahyu/petri/internal/infra/store/file"
	"github.com/bryanwahyu/petri/internal/infra/store/memory"
	"github.com/bryanwahyu/petri/internal/infra/watch"
	"github.com/bryanwahyu/petri/internal/middleware"
)

// App holds the wired services. Close releases database handles.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     domain.Store
	Index     *appindex.Index
	API       *analysisapi.Client
	Poller    *poller.Poller
	Lifecycle *lifecycle.Service
	Advisor   *advisor.Service
	Checkers  map[string]middleware.HealthChecker

	db *sql.DB
}

// sqlStore is an index store backed by a database table
type sqlStore interface {
	domain.Store
	watch.Fingerprinter
	EnsureSchema(ctx context.Context) error
}

// New builds the App from cfg. Log output goes to logOut.
func New(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	logger := logging.New(logOut, cfg.Log.Level, cfg.Log.JSON)
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Checkers: make(map[string]middleware.HealthChecker),
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	a.Index = appindex.New(a.Store, application.SystemClock{}, logging.For(logger, logging.ChannelIndex))
	a.Checkers["index"] = &middleware.IndexHealthChecker{Store: a.Store}

	a.API = analysisapi.New(cfg.Analysis.BaseURL, cfg.Analysis.Timeout)
	a.Poller = poller.New(a.API, cfg.Analysis.PollInterval, cfg.Analysis.MaxAttempts, logging.For(logger, logging.ChannelPoller))

	useCache := cfg.Analysis.UseCache
	a.Lifecycle = &lifecycle.Service{
		API:    a.API,
		Index:  a.Index,
		Poller: a.Poller,
		Submit: analysis.SubmitOptions{UseCache: &useCache, NumCompletions: cfg.Analysis.NumCompletions},
		Logger: logging.For(logger, logging.ChannelLifecycle),
	}

	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
		a.Lifecycle.Archive = store
		a.Checkers["minio"] = middleware.CheckerFunc(store.Check)
	}

	a.Advisor = advisor.NewService(a.API, newAdvisor(cfg))
	return a, nil
}

// newAdvisor returns nil (not a typed nil) when recommendations are disabled.
func newAdvisor(cfg *config.Config) analysis.Advisor {
	switch cfg.Advisor.Provider {
	case config.AdvisorOpenAI:
		return openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case config.AdvisorHeuristic:
		return prompt.Heuristic{}
	default:
		return nil
	}
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	var (
		st  sqlStore
		err error
	)
	switch cfg.Index.Backend {
	case config.BackendMemory:
		a.Store = memory.New()
		return nil
	case config.BackendFile:
		a.Store = file.New(cfg.Index.Path)
		return nil
	case config.BackendSQLite:
		a.db, err = sqlite.Open(ctx, cfg.Index.Path)
		if err == nil {
			st = sqlite.NewIndexStore(a.db, cfg.Index.StorageKey)
		}
	case config.BackendMySQL:
		a.db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err == nil {
			st = mysqlp.NewIndexStore(a.db, cfg.Index.StorageKey)
		}
	case config.BackendPostgres:
		a.db, err = postgres.Connect(ctx, cfg.PostgresDSN())
		if err == nil {
			st = postgres.NewIndexStore(a.db, cfg.Index.StorageKey)
		}
	default:
		return fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
	if err != nil {
		return fmt.Errorf("%s connect: %w", cfg.Index.Backend, err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		a.Close()
		return fmt.Errorf("%s schema: %w", cfg.Index.Backend, err)
	}
	a.Store = st
	a.Checkers["database"] = &middleware.DatabaseHealthChecker{DB: a.db}
	return nil
}

// Watch follows writes made to the index store by other processes and notifies
// index subscribers. It blocks until ctx is done and returns immediately when
// watching is disabled or the backend lives in memory.
func (a *App) Watch(ctx context.Context) error {
	if !a.Config.Index.Watch {
		return nil
	}
	opts := []watch.Option{watch.WithLogger(logging.For(a.Logger, logging.ChannelWatch))}
	switch st := a.Store.(type) {
	case *file.Store:
		return watch.File(ctx, st.Path(), a.Index.Notify, opts...)
	case watch.Fingerprinter:
		return watch.Store(ctx, st, a.Config.Index.WatchInterval, a.Index.Notify, opts...)
	default:
		return nil
	}
}

// Close releases the database handle, if any
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
