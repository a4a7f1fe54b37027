package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	standdb "mercadito/internal/standservice/db"
	"mercadito/internal/standservice/handler"
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

	log := logger.NewLogger("stand-service", cfg.Log.Level)
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

	metrics.Serve(cfg.Service.MetricsAddr, log)

	srv, err := rabbitmq.NewServer(rmq, rabbitmq.QueueStands, cfg.Service.Prefetch, log)
	if err != nil {
		log.Error("startup", "rpc_server_failed", "Cannot set up RPC server", err)
		os.Exit(1)
	}
	handler.NewStandHandler(standdb.NewStandDB(pool, log), log).Register(srv)

	if err := srv.Serve(ctx); err != nil {
		log.Error("shutdown", "serve_failed", "Stand service stopped with error", err)
		os.Exit(1)
	}
	log.Info("shutdown", "service_stopped", "Stand service stopped")
}
