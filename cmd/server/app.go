package main

import (
	"fmt"

	"github.com/vytor/simclinic/internal/config"
	"github.com/vytor/simclinic/internal/db"
	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/memory"
	"github.com/vytor/simclinic/internal/oracle"
	"github.com/vytor/simclinic/internal/repository"
	"github.com/vytor/simclinic/internal/repository/sqlite"
	"github.com/vytor/simclinic/internal/services"
	"github.com/vytor/simclinic/internal/stage"
)

// app holds everything the commands share.
type app struct {
	cfg      config.Config
	log      *logger.Logger
	database *db.DB

	cases       repository.CaseRepository
	sessions    repository.SessionRepository
	assessments repository.AssessmentRepository
	ledgers     repository.LedgerRepository
	progress    repository.ProgressRepository
	oracle      oracle.ClientInterface

	ledgerSvc   services.LedgerService
	progressSvc services.ProgressService
	assessSvc   services.AssessmentService
	feedbackSvc services.FeedbackService
}

// bootstrap loads and validates configuration, sets the default logger and
// opens the database. The services are wired against real clients.
func bootstrap() (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(
		logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
		logger.WithColors(true),
	)
	logger.SetDefault(log)

	log.Info("configuration loaded")
	log.Debug("addr=%s", cfg.Addr)
	log.Debug("db_path=%s", cfg.DBPath)
	log.Debug("oracle_url=%s oracle_timeout=%s", cfg.OracleURL, cfg.OracleTimeout)
	log.Debug("memory_url=%s memory_timeout=%s", cfg.MemoryURL, cfg.MemoryTimeout)
	log.Debug("deferred_assessment=%t workers=%d queue=%d", cfg.DeferredAssessment, cfg.AssessmentWorkerCount, cfg.AssessmentQueueSize)

	kw, err := stage.LoadKeywords(cfg.StageKeywordsPath)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{
		cfg:         cfg,
		log:         log,
		database:    database,
		cases:       sqlite.NewCaseRepository(database.DB),
		sessions:    sqlite.NewSessionRepository(database.DB),
		assessments: sqlite.NewAssessmentRepository(database.DB),
		ledgers:     sqlite.NewLedgerRepository(database.DB),
		progress:    sqlite.NewProgressRepository(database.DB),
	}

	a.oracle = oracle.New(cfg.OracleURL, cfg.OracleTimeout)
	memoryClient := memory.New(cfg.MemoryURL, cfg.MemoryTimeout)

	a.ledgerSvc = services.NewLedgerService(a.cases, a.ledgers, nil)
	a.progressSvc = services.NewProgressService(a.progress, a.sessions, a.assessments, stage.NewKeywordClassifier(kw), nil)
	a.assessSvc = services.NewAssessmentService(services.AssessmentDeps{
		Cases:         a.cases,
		Sessions:      a.sessions,
		Assessments:   a.assessments,
		Ledgers:       a.ledgers,
		Oracle:        a.oracle,
		Memory:        memoryClient,
		Ledger:        a.ledgerSvc,
		Progress:      a.progressSvc,
		EffectTimeout: cfg.EffectTimeout,
	})
	a.feedbackSvc = services.NewFeedbackService(a.cases, a.sessions, a.assessments, a.progressSvc, nil)
	return a, nil
}

func (a *app) close() {
	a.log.Debug("closing database connection")
	if err := a.database.Close(); err != nil {
		a.log.Warn("failed to close database: %v", err)
	}
}
