package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/kubenetlabs/watchrule/internal/database"
	"github.com/kubenetlabs/watchrule/internal/samplestore"
	"github.com/kubenetlabs/watchrule/internal/scheduler"
	"github.com/kubenetlabs/watchrule/internal/server"
	"github.com/kubenetlabs/watchrule/pkg/version"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server listen port")
	dbType := flag.String("db-type", "sqlite", "Persistence backend (sqlite, postgres)")
	configDB := flag.String("config-db", "watchrule.db", "Path to SQLite config database (when db-type=sqlite)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string (when db-type=postgres)")
	sampleStoreType := flag.String("sample-store", "memory", "Sample store backend (memory, redis)")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis address (when sample-store=redis)")
	redisPrefix := flag.String("redis-prefix", "watchrule", "Key prefix for the Redis sample store")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("watchrule %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting watch rule engine",
		"port", *port,
		"db_type", *dbType,
		"sample_store", *sampleStoreType,
		"version", version.Version,
	)

	store, err := openStore(*dbType, *configDB, *postgresDSN)
	if err != nil {
		slog.Error("failed to open persistence store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Migrate(context.Background()); err != nil {
		slog.Error("failed to migrate config database", "error", err)
		os.Exit(1)
	}
	breakerStore := database.NewBreakerStore(store)

	samples, err := openSampleStore(*sampleStoreType, *redisAddr, *redisPrefix)
	if err != nil {
		slog.Error("failed to open sample store", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(breakerStore, samples)
	if err := sched.Load(context.Background()); err != nil {
		slog.Error("failed to load schedule from store", "error", err)
		os.Exit(1)
	}
	sched.Start(context.Background())
	defer sched.Stop()

	srv := server.New(server.Config{
		Store:     breakerStore,
		Samples:   samples,
		Scheduler: sched,
	})

	addr := fmt.Sprintf(":%d", *port)
	if err := srv.Run(addr); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func openStore(dbType, sqlitePath, postgresDSN string) (database.Store, error) {
	switch dbType {
	case "postgres":
		if postgresDSN == "" {
			return nil, fmt.Errorf("-postgres-dsn is required when -db-type=postgres")
		}
		return database.NewPostgres(postgresDSN)
	case "sqlite":
		return database.NewSQLite(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown db-type %q (want sqlite or postgres)", dbType)
	}
}

func openSampleStore(kind, redisAddr, redisPrefix string) (samplestore.Store, error) {
	switch kind {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", redisAddr, err)
		}
		return samplestore.NewRedisStore(client, redisPrefix), nil
	case "memory":
		return samplestore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown sample-store %q (want memory or redis)", kind)
	}
}
