package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"orgchart/api/internal/config"
	"orgchart/api/internal/directory"
	"orgchart/api/internal/export"
	"orgchart/api/internal/orgchart"
	"orgchart/api/internal/search"
	"orgchart/api/internal/session"
	"orgchart/api/internal/store"
)

// Runtime holds the long-lived dependencies built from configuration. Fields
// for optional backends are nil when the backend is not configured.
type Runtime struct {
	Config    config.Config
	Log       logrus.FieldLogger
	DB        *sql.DB
	People    *store.PostgresStore
	Meili     *search.Meili
	Search    *search.Service
	Charts    *session.RedisStore
	Exports   *export.Service
	Directory orgchart.Directory

	closers []func()
}

// Bootstrap connects every backend the configuration names. The postgres
// directory needs the database; the graph directory does not.
func Bootstrap(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Log: log}

	if cfg.Directory.Backend == config.DirectoryPostgres {
		if err := rt.openDatabase(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.MeiliURL != "" {
		rt.Meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		rt.closers = append(rt.closers, rt.Meili.Close)
	}
	var index search.Searcher
	if rt.Meili != nil {
		index = rt.Meili
	}
	var fallback search.PrefixFinder
	if rt.People != nil {
		fallback = rt.People
	}
	rt.Search = search.NewService(index, fallback, log)

	switch cfg.Directory.Backend {
	case config.DirectoryPostgres:
		rt.Directory = directory.NewLocalDirectory(rt.People, rt.Search, cfg.Directory.DefaultUser, cfg.Directory.PageSize)
	case config.DirectoryGraph:
		httpClient, err := directory.NewGraphHTTPClient(ctx, directory.GraphCredentials{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			AccessToken:  cfg.Graph.AccessToken,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("graph client: %w", err)
		}
		rt.Directory = directory.NewGraphClient(cfg.Graph.BaseURL, httpClient,
			directory.WithRateLimit(cfg.Graph.RequestsPerSecond),
			directory.WithDefaultUser(cfg.Directory.DefaultUser),
			directory.WithGraphLogger(log.WithField("component", "graph")),
		)
	default:
		rt.Close()
		return nil, fmt.Errorf("unknown directory backend %q", cfg.Directory.Backend)
	}

	if cfg.RedisURL != "" {
		charts, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.Charts = charts
		rt.closers = append(rt.closers, func() { _ = charts.Close() })
	}

	var uploader export.Uploader
	if cfg.Minio.Endpoint != "" {
		minioUploader, err := export.NewMinioUploader(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.UseSSL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		if err := minioUploader.EnsureBucket(ctx); err != nil {
			log.WithError(err).Warn("app: export bucket not ready, uploads may fail")
		}
		uploader = minioUploader
	}
	var printer export.Printer
	if chrome, err := export.NewChromePrinter(); err != nil {
		log.WithError(err).Info("app: pdf export disabled")
	} else {
		printer = chrome
	}
	rt.Exports = export.NewService(uploader, printer)

	return rt, nil
}

func (rt *Runtime) openDatabase(ctx context.Context) error {
	db, err := store.Open(ctx, rt.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	rt.DB = db
	rt.People = store.NewPostgresStore(db)
	rt.closers = append(rt.closers, func() { _ = db.Close() })
	return nil
}

// Service builds the chart service on top of the runtime's backends.
func (rt *Runtime) Service() *Service {
	opts := Options{
		Policy:      rt.Config.BatchPolicy(),
		Exports:     rt.Exports,
		IdleTimeout: rt.Config.ChartIdleTimeout,
		Checks:      map[string]Pinger{},
		Log:         rt.Log,
	}
	if rt.Charts != nil {
		opts.Charts = rt.Charts
		opts.Checks["redis"] = rt.Charts
	}
	if rt.People != nil {
		opts.Checks["database"] = rt.People
	}
	return New(rt.Directory, opts)
}

// Close releases backends in reverse order of creation.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
