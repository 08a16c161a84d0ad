package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vytor/simclinic/internal/api"
	"github.com/vytor/simclinic/internal/jobs"
	"github.com/vytor/simclinic/internal/services"
	"github.com/vytor/simclinic/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API together with the assessment sweeper.

With DEFERRED_ASSESSMENT=true, completing a session queues its assessment on
a background worker pool instead of scoring it inside the request.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	log.Info("===========================================")
	log.Info("simclinic server starting")
	log.Info("===========================================")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pool and queue exist only in deferred mode; a nil queue scores inline.
	// The pool gets its own context so Stop can drain after the sweeper exits.
	var (
		pool  *worker.Pool
		queue jobs.JobQueue
	)
	if a.cfg.DeferredAssessment {
		pool = worker.NewPool(a.cfg.AssessmentWorkerCount, a.cfg.AssessmentQueueSize)
		pool.Start(context.Background())
		queue = jobs.NewWorkerQueue(pool, a.assessSvc)
	}

	sessionSvc := services.NewSessionService(services.SessionDeps{
		Cases:       a.cases,
		Sessions:    a.sessions,
		Ledgers:     a.ledgers,
		Oracle:      a.oracle,
		Assessments: a.assessSvc,
		Queue:       queue,
		NearTimeout: time.Duration(a.cfg.NearTimeoutSeconds) * time.Second,
	})

	sweeper := services.NewAssessmentSweeper(a.sessions, a.assessSvc, queue, a.cfg.SweepMinAge, a.cfg.SweepInterval, nil)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx)
	}()

	srv := &api.Server{
		SessionService:    sessionSvc,
		AssessmentService: a.assessSvc,
		FeedbackService:   a.feedbackSvc,
		LedgerService:     a.ledgerSvc,
		ProgressService:   a.progressSvc,
		DB:                a.database,
	}

	// Synchronous scoring holds the request for up to the oracle timeout.
	httpServer := &http.Server{
		Addr:         a.cfg.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.cfg.OracleTimeout + a.cfg.EffectTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", a.cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info("received signal %v, initiating graceful shutdown", sig)
	case err := <-serveErr:
		log.Error("HTTP server error: %v", err)
		cancel()
		<-sweepDone
		if pool != nil {
			pool.Stop()
		}
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Debug("shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error: %v", err)
	}

	log.Debug("stopping sweeper")
	cancel()
	<-sweepDone

	if pool != nil {
		// Stop drains jobs already queued before returning.
		log.Debug("stopping assessment pool")
		pool.Stop()
	}

	log.Info("===========================================")
	log.Info("simclinic server stopped")
	log.Info("===========================================")
	return nil
}
