package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/sms-dispatch/internal/cache"
	"github.com/example/sms-dispatch/internal/config"
	"github.com/example/sms-dispatch/internal/handler"
	"github.com/example/sms-dispatch/internal/kafka/producer"
	kafkapublisher "github.com/example/sms-dispatch/internal/kafka/publisher"
	"github.com/example/sms-dispatch/internal/logger"
	"github.com/example/sms-dispatch/internal/models"
	"github.com/example/sms-dispatch/internal/pipeline"
	"github.com/example/sms-dispatch/internal/quota"
	"github.com/example/sms-dispatch/internal/reconciler"
	"github.com/example/sms-dispatch/internal/reporting"
	"github.com/example/sms-dispatch/internal/smpp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "sms-dispatcher").Logger()

	cacheClient := cache.NewMemoryClient()
	queries, err := cache.NewQueries(cacheClient, cache.Names{
		ContactPolicy:   cfg.Caches.ContactPolicy,
		TrxDaily:        cfg.Caches.TrxDaily,
		TrxHist:         cfg.Caches.TrxHist,
		Segment:         cfg.Caches.Segment,
		CustomerDetails: cfg.Caches.CustomerDetails,
		ScenarioMeta:    cfg.Caches.ScenarioMeta,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise cache queries")
	}

	sink, err := reporting.NewSQLiteSink(cfg.Reporting.DSN, cfg.Reporting.Table, queries, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open reporting store")
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close reporting store")
		}
	}()

	kafkaLogger := log.With().Str("component", "kafka").Logger()
	prod, err := producer.New(cfg.Kafka.Brokers, kafkaLogger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	eventPublisher := kafkapublisher.NewResponsePublisher(prod, cfg.Kafka.EventTopic,
		log.With().Str("component", "response-publisher").Logger())
	if eventPublisher == nil {
		log.Fatal().Msg("failed to create response publisher")
	}

	// The live gateway session is injected at the deployment boundary; local
	// and integration runs use the in-memory session.
	session := smpp.Session(smpp.NewMockSession())
	if !cfg.SMPP.UseMockSession {
		log.Warn().
			Str("host", cfg.SMPP.Host).
			Int("port", cfg.SMPP.Port).
			Msg("no gateway driver built in, falling back to in-memory session")
	}
	if err := session.Bind(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to bind gateway session")
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close gateway session")
		}
	}()

	submitter, err := smpp.NewSubmitter(session, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise submitter")
	}

	pipe, err := pipeline.New(pipeline.Config{
		BufferSize:    cfg.Dispatch.BufferSize,
		WorkerCount:   cfg.Dispatch.WorkerCount,
		FlushInterval: time.Duration(cfg.Dispatch.FlushIntervalSeconds) * time.Second,
		PollTimeout:   time.Duration(cfg.Dispatch.PollTimeoutMillis) * time.Millisecond,
	}, pipeline.Dependencies{
		Sink:      sink,
		Publisher: eventPublisher,
		Submitter: submitter,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dispatch pipeline")
	}
	pipe.Start(ctx)

	recon, err := reconciler.New(reconciler.Config{
		FlushInterval: time.Duration(cfg.Reconciler.FlushIntervalMillis) * time.Millisecond,
		BatchSize:     cfg.Reconciler.BatchSize,
		MaxRetries:    cfg.Reconciler.MaxRetries,
	}, sink, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise delivery reconciler")
	}
	submitter.OnReceipt(recon.OnReceipt)
	recon.Start(ctx)

	engine, err := quota.NewEngine(quota.Config{
		RatePerSecond: cfg.Quota.RatePerSecond,
		RateBurst:     cfg.Quota.RateBurst,
	}, queries, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise quota engine")
	}

	reqHandler, err := handler.NewHandler(pipe, strings.Join(cfg.TestActors, ","), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise request handler")
	}
	svc, err := handler.NewService(engine, reqHandler, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise communication service")
	}

	log.Info().
		Int("workers", cfg.Dispatch.WorkerCount).
		Int("buffer", cfg.Dispatch.BufferSize).
		Msg("sms dispatcher started")

	// The real entrypoint (campaign engine callback) is injected at the
	// deployment boundary; the binary itself accepts JSON requests, one per
	// line, on stdin.
	go feedRequests(ctx, svc, log)

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// Drain the dispatch queue first so receipts for the final batch can
	// still be reconciled on the reconciler's closing flush.
	pipe.Close()
	recon.Close()
}

func feedRequests(ctx context.Context, svc *handler.Service, log zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var req models.CommunicationRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			log.Error().Err(err).Msg("malformed request line")
			continue
		}
		outcome := svc.Process(ctx, &req)
		log.Info().
			Str("actor_id", req.ActorID).
			Str("verdict", string(outcome.Reason)).
			Msg("request processed")
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("request feed terminated")
	}
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("sms dispatcher init failed")
}
