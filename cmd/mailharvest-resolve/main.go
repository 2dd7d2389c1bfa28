package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yourorg/mailharvest/internal/resolve"
	"github.com/yourorg/mailharvest/internal/runtime"
)

type resolveConfig struct {
	dbPath string
	email  string
	top    int
}

func main() {
	cfg := parseResolveFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailharvest-resolve failed", "error", err)
		os.Exit(1)
	}
}

func parseResolveFlags() resolveConfig {
	dbPath := flag.String("db", "mailharvest.db", "path to the SQLite database")
	email := flag.String("email", "", "mailbox address to resolve")
	top := flag.Int("top", 10, "print the N most frequent senders after resolving")
	flag.Parse()

	return resolveConfig{dbPath: *dbPath, email: *email, top: *top}
}

func run(cfg resolveConfig) error {
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

	account, err := st.AccountByEmail(ctx, cfg.email)
	if err != nil {
		return fmt.Errorf("load account %s: %w", cfg.email, err)
	}

	svc := &resolve.Service{Store: st, Log: log}
	if _, _, err := svc.Resolve(ctx, account.ID); err != nil {
		return fmt.Errorf("resolve senders: %w", err)
	}

	if cfg.top <= 0 {
		return nil
	}
	top, err := svc.TopSenders(ctx, account.ID, cfg.top)
	if err != nil {
		return err
	}
	for _, s := range top {
		name := s.Name
		if name == "" {
			name = "(unknown)"
		}
		fmt.Printf("%6d  %s <%s>\n", s.MessageCount, name, s.Email)
	}
	return nil
}
