package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"curia/internal/audit"
	"curia/internal/audit/publisher"
	auditmem "curia/internal/audit/store/memory"
	auditpg "curia/internal/audit/store/postgres"
	"curia/internal/authz"
	authzmetrics "curia/internal/authz/metrics"
	"curia/internal/casefile"
	casestore "curia/internal/casefile/store"
	"curia/internal/decision"
	decisionmetrics "curia/internal/decision/metrics"
	decstore "curia/internal/decision/store"
	jwttoken "curia/internal/jwt_token"
	"curia/internal/platform/config"
	"curia/internal/platform/httpserver"
	"curia/internal/platform/logger"
	"curia/internal/platform/metrics"
	redisclient "curia/internal/platform/redis"
	"curia/internal/pseudonym"
	pseudostore "curia/internal/pseudonym/store"
	"curia/internal/signing"
	"curia/internal/subject"
	subjectstore "curia/internal/subject/store"
	httptransport "curia/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores. Without DATABASE_URL everything runs in memory, which is only
	// suitable for local development.
	var (
		auditStore   audit.Store
		caseStore    casefile.Store
		decStore     decision.Store
		pseudoStore  pseudonym.Store
		subjectStore subject.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		auditStore = auditpg.New(db)
		pgCases := casestore.NewPostgres(db)
		caseStore = pgCases
		decStore = decstore.NewPostgres(db, pgCases, decstore.WithLogger(log))
		pseudoStore = pseudostore.NewPostgres(db)
		subjectStore = subjectstore.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		auditStore = auditmem.NewInMemory()
		memCases := casestore.NewInMemory()
		caseStore = memCases
		decStore = decstore.NewInMemory(memCases)
		pseudoStore = pseudostore.NewInMemory()
		subjectStore = subjectstore.NewInMemory()
	}

	// Optional pseudonym lookup cache.
	redisClient, err := redisclient.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		pseudoStore = pseudonym.NewCachedStore(pseudoStore, redisClient, config.PseudonymCacheTTL, log)
	}

	// Audit log with optional Kafka fan-out.
	auditOpts := []audit.Option{audit.WithLogger(log)}
	kafka, err := publisher.NewKafka(cfg.KafkaBrokers, cfg.AuditTopic, log)
	if err != nil {
		log.Error("connect kafka", "error", err)
		os.Exit(1)
	}
	if kafka != nil {
		auditOpts = append(auditOpts, audit.WithSubscriber(kafka))
	}
	auditLog := audit.NewLog(auditStore, auditOpts...)

	directory, err := pseudonym.NewDirectory(cfg.PseudonymKey, pseudoStore)
	if err != nil {
		log.Error("build pseudonym directory", "error", err)
		os.Exit(1)
	}

	vault := signing.NewVault()
	artifacts, err := signing.NewFilesystemArtifacts(cfg.ArtifactDir)
	if err != nil {
		log.Error("prepare artifact directory", "error", err)
		os.Exit(1)
	}

	guard, err := authz.NewGuard(auditLog, authz.WithLogger(log), authz.WithMetrics(authzmetrics.New()))
	if err != nil {
		log.Error("build ownership guard", "error", err)
		os.Exit(1)
	}
	guard.Register(authz.KindCase, casefile.NewDescriptor(caseStore))
	guard.Register(authz.KindDecision, decision.NewDescriptor(decStore, caseStore))

	caseService, err := casefile.NewService(caseStore, directory, auditLog,
		casefile.WithLogger(log),
		casefile.WithAuthorizer(casefile.NewGuardAuthorizer(guard)))
	if err != nil {
		log.Error("build case service", "error", err)
		os.Exit(1)
	}

	decisionService, err := decision.NewService(decStore, caseStore, guard, auditLog, directory,
		decision.SigningDeps{
			Signer:      vault,
			Credentials: vault,
			Renderer:    signing.NewTextRenderer(),
			Artifacts:   artifacts,
		},
		decision.WithLogger(log),
		decision.WithMetrics(decisionmetrics.New()))
	if err != nil {
		log.Error("build decision service", "error", err)
		os.Exit(1)
	}

	subjectService, err := subject.NewService(subjectStore, directory, auditLog,
		subject.WithLogger(log),
		subject.WithCredentialEnroller(vault))
	if err != nil {
		log.Error("build subject service", "error", err)
		os.Exit(1)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:     log,
		Metrics:    metrics.New(),
		Validator:  jwttoken.NewAdapter(jwtService),
		Cases:      httptransport.NewCaseHandler(caseService, log),
		Decisions:  httptransport.NewDecisionHandler(decisionService, log),
		Subjects:   httptransport.NewSubjectHandler(subjectService, log),
		Pseudonyms: httptransport.NewPseudonymHandler(directory, log),
		Audit:      httptransport.NewAuditHandler(auditLog, log),
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := auditLog.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting curia", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err)
	}

	// Flush whatever the audit queue still holds before the process exits.
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	auditLog.Drain(drainCtx)
	if kafka != nil {
		if err := kafka.Close(drainCtx); err != nil {
			log.Warn("kafka close", "error", err)
		}
	}
}
