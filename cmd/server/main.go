package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ogurasousui/offboarding-engine/internal/adapters/document"
	"github.com/ogurasousui/offboarding-engine/internal/adapters/identity"
	"github.com/ogurasousui/offboarding-engine/internal/adapters/notify"
	"github.com/ogurasousui/offboarding-engine/internal/adapters/repository/postgres"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	"github.com/ogurasousui/offboarding-engine/internal/platform/config"
	pg "github.com/ogurasousui/offboarding-engine/internal/platform/db/postgres"
	"github.com/ogurasousui/offboarding-engine/internal/platform/logging"
	"github.com/ogurasousui/offboarding-engine/internal/platform/outbox"
	"github.com/ogurasousui/offboarding-engine/internal/platform/server"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.Logging, os.Stdout)

	dbPool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database pool: %v", err)
	}
	defer dbPool.Close()

	clock := systemClock{}
	employees := postgres.NewEmployeeRepository(dbPool)

	notifiers := []offboarding.Notifier{postgres.NewNotificationRepository(dbPool, clock)}
	if cfg.SMTP.Enabled() {
		dialer := notify.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
		notifiers = append(notifiers, notify.NewEmailNotifier(dialer, employees, cfg.SMTP.From, cfg.SMTP.LinkBaseURL))
	}
	dispatcher := outbox.New(cfg.Outbox, logger, postgres.NewAuditRepository(dbPool), notifiers...)

	var deprovisioner offboarding.Deprovisioner = identity.NewLogOnly(logger)
	if cfg.Identity.Enabled() {
		deprovisioner = identity.NewSCIMClient(cfg.Identity.BaseURL, cfg.Identity.Token, cfg.Identity.Timeout, nil, logger)
	}

	svc := offboarding.NewService(offboarding.Dependencies{
		Employees:     employees,
		Templates:     postgres.NewTemplateRepository(dbPool),
		TaskTemplates: postgres.NewTaskTemplateRepository(dbPool),
		Runs:          postgres.NewRunRepository(dbPool),
		Tasks:         postgres.NewTaskRepository(dbPool),
		Documents: document.NewGenerator(
			postgres.NewDocumentTemplateRepository(dbPool),
			postgres.NewDocumentRepository(dbPool),
			employees,
			clock,
		),
		Identity: deprovisioner,
		Effects:  dispatcher,
		Clock:    clock,
		Tx:       pg.NewTransactionManager(dbPool),
		Logger:   logger,
	}, offboarding.Options{
		PreventConcurrentRuns: cfg.Offboarding.PreventConcurrentRuns,
		LinkPrefix:            cfg.Offboarding.LinkPrefix,
	})

	var workers sync.WaitGroup
	if dispatcher.Async() {
		workers.Add(1)
		go func() {
			defer workers.Done()
			dispatcher.Run(context.WithoutCancel(ctx))
		}()
	}

	grpcServer := server.New(cfg.Server.ListenAddr, svc, logger)

	logger.Info("gRPC server listening", "addr", cfg.Server.ListenAddr, "outbox_mode", cfg.Outbox.Mode)

	runErr := grpcServer.Run(ctx)

	dispatcher.Close()
	workers.Wait()
	logger.Info("outbox drained", "stats", dispatcher.Stats())

	if runErr != nil {
		log.Fatalf("server stopped with error: %v", runErr)
	}
}
