package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/elastic/go-elasticsearch/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/JonMunkholm/gobimport/internal/config"
	"github.com/JonMunkholm/gobimport/internal/connector"
	"github.com/JonMunkholm/gobimport/internal/importer"
	"github.com/JonMunkholm/gobimport/internal/mutations"
	"github.com/JonMunkholm/gobimport/internal/validate"
)

// app holds the clients of one process. Optional backends are only
// connected when configured.
type app struct {
	pool  *pgxpool.Pool
	mongo *mongo.Client

	client    *importer.Client
	mutations *importer.MutationsImport
	service   *importer.Service
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	deps := connector.Deps{
		DataDir: cfg.Import.DataDir,
		HTTP:    &http.Client{Timeout: cfg.Mutations.HTTPTimeout},
	}

	var store mutations.Store = mutations.NewMemoryStore()
	if cfg.Database.URL != "" {
		if a.pool, err = connectPostgres(ctx, cfg.Database); err != nil {
			return nil, err
		}
		pg := mutations.NewPostgresStore(a.pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		store = pg
		deps.DB = a.pool
	} else {
		slog.Warn("no database configured, mutation history is kept in memory")
	}

	if cfg.Storage.Enabled() {
		sess, err := newS3Session(cfg.Storage)
		if err != nil {
			return nil, err
		}
		deps.S3 = s3.New(sess)
		deps.Bucket = cfg.Storage.Bucket
	}

	if len(cfg.Elastic.URLs) > 0 {
		deps.Elastic, err = elasticsearch.NewClient(elasticsearch.Config{
			Addresses: cfg.Elastic.URLs,
			Username:  cfg.Elastic.Username,
			Password:  cfg.Elastic.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("elasticsearch client: %w", err)
		}
	}

	checks, err := loadChecks(cfg.Import.QAChecks)
	if err != nil {
		return nil, err
	}

	opts := importer.Options{
		Deps:      deps,
		Checks:    checks,
		OutputDir: cfg.Import.OutputDir,
		Publisher: importer.FilePublisher{Dir: cfg.Import.OutputDir},
	}
	if cfg.Mongo.URI != "" {
		if a.mongo, err = connector.ConnectMongo(ctx, cfg.Mongo.URI); err != nil {
			return nil, err
		}
		opts.Mongo = a.mongo.Database(cfg.Mongo.Database)
	}

	a.client = importer.NewClient(opts)
	a.mutations = importer.NewMutationsImport(a.client, store, mutations.Options{
		BaseURL:  cfg.Mutations.BaseURL,
		Gemeente: cfg.Mutations.Gemeente,
		Lister:   mutations.NewHTTPLister(deps.HTTP),
	})
	a.service = importer.NewService(a.client, a.mutations,
		importer.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		importer.ServiceConfig{DataDir: cfg.Import.DataDir, Timeout: cfg.Import.Timeout},
	)
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			slog.Warn("disconnect mongodb", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	slog.Info("connected to database", "database", poolConfig.ConnConfig.Database)
	return pool, nil
}

func newS3Session(cfg config.StorageConfig) (*session.Session, error) {
	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithS3ForcePathStyle(cfg.ForcePathStyle)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return sess, nil
}

func loadChecks(path string) (validate.Checks, error) {
	if path == "" {
		return validate.DefaultChecks()
	}
	return validate.LoadChecks(path)
}
