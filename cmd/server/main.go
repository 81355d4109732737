// Command server runs the DOCiD RRID resolution and attachment service.
// main wires high-level dependencies, exposes the HTTP router, and keeps
// the server lifecycle small. Business logic lives in internal packages.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/audit"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/jwttoken"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/config"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/httpserver"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/logger"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/metrics"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/postgres"
	platformredis "github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/redis"
	attachmentservice "github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/service"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/store"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/gateway"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/handler"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/resolver"
	httptransport "github.com/Africa-PID-Alliance/DOCiD-sub001/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx := context.Background()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	kafkaSink, err := audit.NewKafkaSink(cfg.Kafka, log)
	if err != nil {
		log.Error("kafka connection failed", "error", err)
		os.Exit(1)
	}
	if kafkaSink != nil {
		defer kafkaSink.Close()
	}
	auditPub := audit.NewPublisher(audit.NewPostgresStore(db), kafkaSink, log)

	attachments := store.NewPostgres(db)
	searchCache := gateway.NewSearchCache(redisClient, config.SearchCacheTTL, log)
	lookup := gateway.New(cfg.SciCrunch, log,
		gateway.WithMetrics(m),
		gateway.WithSearchCache(searchCache),
	)
	resolveEngine := resolver.New(lookup, attachments, config.ResolveFreshness, log, m)
	lifecycle := attachmentservice.New(attachments, resolveEngine, auditPub, log, m)

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, "docid", "docid-api")
	rridHandler := handler.New(
		lookup,
		resolveEngine,
		lifecycle,
		log,
		m,
		jwttoken.NewJWTServiceAdapter(jwtService),
	)

	router := httptransport.NewRouter(rridHandler)
	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting rrid service", "addr", cfg.Server.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
