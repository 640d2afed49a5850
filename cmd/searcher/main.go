package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/crawlmix"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/filter"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/compiler"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/network"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/planner"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/savepoint"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/summary"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	machines := max(1, len(cfg.Cluster.Peers))
	slog.Info("starting searcher",
		"machine_id", cfg.Cluster.MachineID,
		"machines", machines,
		"rpc_addr", cfg.Server.RPCAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()

	// Cache backend: Redis when configured, process memory otherwise.
	var backend cache.Store = cache.NewMemoryStore()
	if cfg.Redis.Addr == "" {
		slog.Info("redis not configured, caching in memory")
	} else if redisClient, err := pkgredis.NewClient(ctx, cfg.Redis); err != nil {
		slog.Warn("redis unavailable, caching in memory", "addr", cfg.Redis.Addr, "error", err)
	} else {
		defer redisClient.Close()
		backend = redisClient
		checker.RegisterOptional("redis", health.PingCheck(redisClient.Ping))
		slog.Info("redis cache enabled", "addr", cfg.Redis.Addr)
	}

	// Local documents.
	store, err := docstore.OpenSQLite(cfg.Storage.SummaryDBPath)
	if err != nil {
		slog.Error("failed to open summary store", "path", cfg.Storage.SummaryDBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	checker.Register("docstore", health.PingCheck(store.Ping))

	idx := index.NewMemoryIndex(cfg.Cluster.MachineID)
	checker.Register("index", health.CountCheck("documents", idx.DocCount))
	shards, err := shard.NewRouter(cfg.Cluster.MachineID, machines)
	if err != nil {
		slog.Error("invalid cluster topology", "error", err)
		os.Exit(1)
	}
	loader := consumer.NewLoader(idx, store, shards, cfg.Search.DefaultIndex, m)
	if cfg.Storage.SeedFile != "" {
		if _, err := loader.LoadFile(ctx, cfg.Storage.SeedFile); err != nil {
			slog.Error("failed to load seed file", "error", err)
			os.Exit(1)
		}
	}

	// Peers. Every machine, this one included, is reached through the
	// fan-out so that parts are answered the same way everywhere.
	var (
		remote  *docstore.Remote
		peerIDs []int
	)
	plannerOpts := []planner.Option{
		planner.WithSavePoints(savepoint.New(backend, cfg.Cache.SavePointTTL, m)),
	}
	if machines > 1 {
		peers := make([]*grpc.Peer, len(cfg.Cluster.Peers))
		for i, addr := range cfg.Cluster.Peers {
			client := grpc.NewClient(addr)
			defer client.Close()
			peers[i] = &grpc.Peer{MachineID: i, Caller: client}
			if i != cfg.Cluster.MachineID {
				peerIDs = append(peerIDs, i)
			}
		}
		fanout := grpc.NewFanOut(peers, grpc.FanOutConfig{
			Timeout:        cfg.Cluster.PeerTimeout,
			RetryAttempts:  cfg.Cluster.RetryAttempts,
			BreakerFailure: cfg.Cluster.BreakerFailure,
			BreakerReset:   cfg.Cluster.BreakerReset,
		}, m)
		remote = docstore.NewRemote(fanout)
		plannerOpts = append(plannerOpts, planner.WithFanout(network.New(fanout)))
		slog.Info("peer fan-out configured", "peers", cfg.Cluster.Peers)
	}
	summaries := docstore.NewRouter(cfg.Cluster.MachineID, store, remote, peerIDs)

	// Result filter, crawl mixes and analytics.
	overlay := filter.New(m)
	aggregator := analytics.NewAggregator()

	var mixes engine.Mixes = crawlmix.NewStatic()
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		checker.RegisterOptional("postgres", health.PingCheck(db.Ping))

		repo := crawlmix.NewRepository(db, time.Minute)
		if err := repo.Migrate(ctx); err != nil {
			slog.Error("crawl mix migration failed", "error", err)
			os.Exit(1)
		}
		mixes = repo

		snapshots := analytics.NewStore(db, cfg.Cluster.MachineID)
		if err := snapshots.Migrate(ctx); err != nil {
			slog.Error("analytics migration failed", "error", err)
			os.Exit(1)
		}
		snapshots.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
	}

	// With Kafka the aggregator learns from the query topic so that every
	// machine sees the whole cluster's queries; without it, only this one's.
	var trackers []analytics.Tracker
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		collector.Start(ctx)
		defer collector.Close()
		trackers = append(trackers, collector)
	} else {
		trackers = append(trackers, aggregator)
	}

	// Query pipeline.
	ext := tokenizer.NewExtractor(cfg.Search.DefaultLocale)
	pl := planner.New(idx, plannerOpts...)
	engineOpts := []engine.Option{
		engine.WithOverlay(overlay),
		engine.WithMixes(mixes),
		engine.WithPinnedResolver(summaries),
		engine.WithTracker(analytics.Multi(trackers...)),
		engine.WithMetrics(m),
	}
	var results *cache.ResultCache
	if cfg.Cache.Enabled {
		results = cache.New(backend, cache.Config{MaxTTL: cfg.Cache.MaxTTL, MinTTL: cfg.Cache.MinTTL}, overlay, m)
		engineOpts = append(engineOpts, engine.WithResultCache(results))
	}
	eng := engine.New(engine.Config{
		MachineID:         cfg.Cluster.MachineID,
		Machines:          machines,
		DefaultIndex:      cfg.Search.DefaultIndex,
		DefaultLocale:     cfg.Search.DefaultLocale,
		DefaultNum:        cfg.Search.DefaultNum,
		MaxNum:            cfg.Search.MaxNum,
		MinResultsToFetch: cfg.Search.MinResultsToFetch,
		MaxResultsToFetch: cfg.Search.MaxResultsToFetch,
		MaxDescriptionLen: cfg.Search.MaxDescriptionLen,
		MaxQueryLength:    cfg.Search.MaxQueryLength,
		LogSpans:          cfg.Tracing.Enabled,
	},
		parser.NewRewriter(ext, cfg.Search.DefaultLocale),
		compiler.New(ext, cache.NewParseCache(backend, cfg.Cache.ParseTTL, m), cfg.Search.DefaultLocale),
		pl,
		summary.New(summaries, nil, cfg.Summary.MinGroupingSize, m),
		engineOpts...,
	)

	if cfg.Kafka.Enabled {
		machineGroup := fmt.Sprintf("%s-%d", cfg.Kafka.ConsumerGroup, cfg.Cluster.MachineID)
		consumers := []*kafka.Consumer{
			// Every machine replays the full edit history into its overlay.
			kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.FilterEdits, overlay.Handle, m,
				kafka.FromStart(), kafka.WithGroup(machineGroup+"-filter")),
			kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Documents, loader.Handle, m,
				kafka.FromStart(), kafka.WithGroup(machineGroup+"-documents")),
			kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents, analytics.HandleEvent(aggregator), m,
				kafka.WithGroup(machineGroup+"-analytics")),
		}
		if results != nil {
			consumers = append(consumers, kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate,
				func(ctx context.Context, _ []byte, _ []byte) error {
					return results.Invalidate(ctx)
				}, m, kafka.WithGroup(machineGroup+"-invalidate")))
		}
		for _, c := range consumers {
			go func(c *kafka.Consumer) {
				if err := c.Start(ctx); err != nil {
					slog.Error("kafka consumer stopped", "error", err)
				}
			}(c)
		}
		slog.Info("kafka consumers started", "brokers", cfg.Kafka.Brokers, "group", machineGroup)
	}

	// Admin server.
	var shutdownAdmin func(context.Context) error
	if cfg.Metrics.Enabled {
		mux := metrics.NewAdminMux(
			metrics.Route{Pattern: "/debug/query-stats", Handler: analytics.NewHandler(aggregator)},
			metrics.Route{Pattern: "/health/live", Handler: checker.LiveHandler()},
			metrics.Route{Pattern: "/health/ready", Handler: checker.ReadyHandler()},
		)
		shutdownAdmin = metrics.StartServer(cfg.Metrics.Port, middleware.Chain(mux,
			middleware.RequestID,
			middleware.Metrics(m),
			middleware.Timeout(5*time.Second),
		))
	}

	// RPC server.
	rpc := grpc.NewServer()
	handler.New(cfg.Cluster.MachineID, eng, store, checker, idx.DocCount, m).Register(rpc)
	ln, err := net.Listen("tcp", cfg.Server.RPCAddr)
	if err != nil {
		slog.Error("failed to listen", "addr", cfg.Server.RPCAddr, "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		rpc.Stop()
		if shutdownAdmin != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownAdmin(shutdownCtx); err != nil {
				slog.Error("admin server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("searcher listening",
		"addr", ln.Addr().String(),
		"methods", rpc.MethodCount(),
		"documents", idx.DocCount(),
	)
	if err := rpc.ServeListener(ln); err != nil && ctx.Err() == nil {
		slog.Error("rpc server error", "error", err)
		os.Exit(1)
	}

	slog.Info("searcher stopped")
}
