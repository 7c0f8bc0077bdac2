package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-storage/internal/api/handlers/image"
	"github.com/aliskhannn/image-storage/internal/api/router"
	"github.com/aliskhannn/image-storage/internal/api/server"
	"github.com/aliskhannn/image-storage/internal/config"
	"github.com/aliskhannn/image-storage/internal/infra/kafka/consumer"
	"github.com/aliskhannn/image-storage/internal/infra/kafka/producer"
	imagemsg "github.com/aliskhannn/image-storage/internal/kafka/handlers/image"
	"github.com/aliskhannn/image-storage/internal/metrics"
	imagerepo "github.com/aliskhannn/image-storage/internal/repository/image"
	imagesvc "github.com/aliskhannn/image-storage/internal/service/image"
	"github.com/aliskhannn/image-storage/internal/storage/file"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := imagerepo.Migrate(cfg.Database.Master.DSN()); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Retry strategy for Kafka.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// The internal client does all I/O; the external one only presigns.
	clients, err := file.NewClients(file.Options{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	}, cfg.Storage.ExternalEndpoint, cfg.Storage.ExternalUseSSL)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create storage clients")
	}

	repo := imagerepo.NewRepository(db.Master)
	m := metrics.New()

	var p *producer.Producer
	if cfg.Kafka.Enabled {
		p = producer.New(&cfg.Kafka, strategy)
	}

	services := make([]*imagesvc.Service, 0, len(cfg.Domains))
	containers := make([]string, 0, len(cfg.Domains))

	for _, d := range cfg.Domains {
		container, err := file.ContainerName(cfg.Storage.BucketPrefix, d.Name)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Str("domain", d.Name).Msg("invalid container name")
		}

		if err := file.EnsureContainer(ctx, clients.Internal, container); err != nil {
			zlog.Logger.Fatal().Err(err).Str("domain", d.Name).Msg("failed to provision container")
		}

		policy, err := d.Policy()
		if err != nil {
			zlog.Logger.Fatal().Err(err).Str("domain", d.Name).Msg("invalid domain policy")
		}

		svcOpts := []imagesvc.Option{
			imagesvc.WithMetrics(m),
			imagesvc.WithTTL(cfg.Storage.PresignTTL),
		}
		if d.Tracked {
			svcOpts = append(svcOpts, imagesvc.WithRecords(repo))
		}
		if p != nil {
			svcOpts = append(svcOpts, imagesvc.WithOrphanReporter(p))
		}

		svcCfg := imagesvc.Config{Name: d.Name, Container: container, Policy: policy}
		services = append(services, imagesvc.NewService(svcCfg, clients.Internal, clients.External, svcOpts...))
		containers = append(containers, container)

		zlog.Logger.Info().
			Str("domain", d.Name).
			Str("container", container).
			Bool("tracked", d.Tracked).
			Msg("image domain ready")
	}

	registry, err := imagesvc.NewRegistry(services...)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("invalid domain configuration")
	}

	imgHandler := image.NewHandler()
	for _, s := range registry.Services() {
		imgHandler.Register(s.Name(), s)
	}

	// Janitor: retries deletion of orphaned objects reported on Kafka.
	var (
		wg sync.WaitGroup
		c  *consumer.Consumer
	)
	if cfg.Kafka.Enabled {
		c = consumer.New(&cfg.Kafka, strategy, imagemsg.NewOrphanHandler(clients.Internal, containers)).
			WithRequeue(p)
		wg.Add(1)
		go c.Consume(ctx, &wg)
	}

	// Start HTTP server in a separate goroutine.
	r := router.Setup(imgHandler, m.Handler())
	s := server.New(cfg.Server, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	wg.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, s := range db.Slaves {
		if err := s.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	if p != nil {
		if err := p.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
		}
	}
	if c != nil {
		if err := c.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
		}
	}
}
