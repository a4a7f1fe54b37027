package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	catalogdb "mercadito/internal/catalogservice/db"
	"mercadito/internal/catalogservice/dedup"
	"mercadito/internal/catalogservice/handler"
	"mercadito/internal/catalogservice/service"
	"mercadito/pkg/config"
	"mercadito/pkg/db"
	"mercadito/pkg/logger"
	"mercadito/pkg/metrics"
	"mercadito/pkg/rabbitmq"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.NewLogger("catalog-service", cfg.Log.Level)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(&cfg.Database, log)
	if err != nil {
		log.Error("startup", "db_connect_failed", "Cannot connect to PostgreSQL", err)
		os.Exit(1)
	}
	defer pool.Close()

	rmq, err := rabbitmq.Connect(&cfg.RabbitMQ, log)
	if err != nil {
		log.Error("startup", "rabbitmq_connect_failed", "Cannot connect to RabbitMQ", err)
		os.Exit(1)
	}
	defer rmq.Close()

	var dd service.Dedup
	if cfg.Redis.Addr != "" {
		redisDedup, err := dedup.NewRedisDedup(&cfg.Redis, log)
		if err != nil {
			log.Error("startup", "redis_connect_failed", "Cannot connect to Redis", err)
			os.Exit(1)
		}
		defer redisDedup.Close()
		dd = redisDedup
	} else {
		dd = dedup.NewMemoryDedup()
	}

	svc := service.NewCatalogService(catalogdb.NewCatalogDB(pool, log), dd, log)

	metrics.Serve(cfg.Service.MetricsAddr, log)

	srv, err := rabbitmq.NewServer(rmq, rabbitmq.QueueCatalog, cfg.Service.Prefetch, log)
	if err != nil {
		log.Error("startup", "rpc_server_failed", "Cannot set up RPC server", err)
		os.Exit(1)
	}
	handler.NewCatalogHandler(svc, log).Register(srv)

	if err := srv.Serve(ctx); err != nil {
		log.Error("shutdown", "serve_failed", "Catalog service stopped with error", err)
		os.Exit(1)
	}
	log.Info("shutdown", "service_stopped", "Catalog service stopped")
}
