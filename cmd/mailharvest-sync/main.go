package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yourorg/mailharvest/internal/dispatch"
	"github.com/yourorg/mailharvest/internal/extract"
	"github.com/yourorg/mailharvest/internal/ingest"
	"github.com/yourorg/mailharvest/internal/provider"
	"github.com/yourorg/mailharvest/internal/rate"
	"github.com/yourorg/mailharvest/internal/runtime"
)

type syncConfig struct {
	dbPath     string
	email      string
	query      string
	pageSize   int
	maxResults int
	rps        int
	workers    int
	attempts   int
	iterative  bool
	refill     bool
	amqpURL    string
}

func main() {
	cfg := parseSyncFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailharvest-sync failed", "error", err)
		os.Exit(1)
	}
}

func parseSyncFlags() syncConfig {
	dbPath := flag.String("db", "mailharvest.db", "path to the SQLite database")
	email := flag.String("email", "", "mailbox address to sync")
	query := flag.String("query", "", "provider search query limiting the sync")
	pageSize := flag.Int("page-size", 100, "listing page size (<=500)")
	maxResults := flag.Int("max-results", 1000, "soft cap on listed identifiers")
	rps := flag.Int("rps", 100, "max job submissions per second")
	workers := flag.Int("workers", 4, "local fetch workers (ignored with -amqp)")
	attempts := flag.Int("attempts", 3, "local per-job fetch attempts (ignored with -amqp)")
	iterative := flag.Bool("iterative", false, "extract MIME parts recursively instead of whole-document")
	refill := flag.Bool("refill", false, "also re-fetch messages whose subject never arrived")
	amqpURL := flag.String("amqp", "", "AMQP broker URL; publish jobs instead of fetching locally")
	flag.Parse()

	return syncConfig{
		dbPath:     *dbPath,
		email:      *email,
		query:      *query,
		pageSize:   *pageSize,
		maxResults: *maxResults,
		rps:        *rps,
		workers:    *workers,
		attempts:   *attempts,
		iterative:  *iterative,
		refill:     *refill,
		amqpURL:    *amqpURL,
	}
}

func run(cfg syncConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.email == "" {
		return errors.New("-email is required")
	}

	log := runtime.DefaultLogger()
	st, err := runtime.OpenStore(cfg.dbPath)
	if err != nil {
		return err
	}

	var limiter rate.Limiter
	if cfg.rps > 0 {
		bucket := rate.NewTokenBucket(cfg.rps, cfg.rps)
		limiter = bucket
		defer bucket.Stop()
	}

	mode := extract.ModeWholeDocument
	if cfg.iterative {
		mode = extract.ModeRecursive
	}

	svc := &ingest.Service{
		Store:      st,
		Loaders:    runtime.NewRegistry(log),
		Log:        log,
		Rate:       limiter,
		PageSize:   cfg.pageSize,
		MaxResults: cfg.maxResults,
		Mode:       mode,
	}

	if cfg.amqpURL != "" {
		broker, err := dispatch.DialAMQP(cfg.amqpURL, limiter, log)
		if err != nil {
			return err
		}
		defer broker.Close()
		svc.Dispatcher = broker
	} else {
		local := dispatch.NewLocal(svc.HandleJob, limiter, log, cfg.workers, cfg.attempts)
		defer local.Close()
		svc.Dispatcher = local
	}

	account, err := st.AccountByEmail(ctx, cfg.email)
	if err != nil {
		return fmt.Errorf("load account %s: %w", cfg.email, err)
	}

	if _, err := svc.SyncStubs(ctx, account, provider.Query{Raw: cfg.query}); err != nil {
		return fmt.Errorf("sync stubs: %w", err)
	}
	if _, err := svc.Fill(ctx, account); err != nil {
		return fmt.Errorf("fill messages: %w", err)
	}
	if cfg.refill {
		if _, err := svc.Refill(ctx, account); err != nil {
			return fmt.Errorf("refill messages: %w", err)
		}
	}
	return nil
}
