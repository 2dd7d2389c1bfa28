package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yourorg/mailharvest/internal/provider"
	"github.com/yourorg/mailharvest/internal/runtime"
	"github.com/yourorg/mailharvest/internal/store"
)

type loginConfig struct {
	dbPath      string
	email       string
	credentials string
	remove      bool
}

func main() {
	cfg := parseLoginFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailharvest-login failed", "error", err)
		os.Exit(1)
	}
}

func parseLoginFlags() loginConfig {
	dbPath := flag.String("db", "mailharvest.db", "path to the SQLite database")
	email := flag.String("email", "", "mailbox address to register")
	credentials := flag.String("credentials", "credentials.json", "OAuth client config file")
	remove := flag.Bool("remove", false, "delete the account and all of its data")
	flag.Parse()

	return loginConfig{
		dbPath:      *dbPath,
		email:       *email,
		credentials: *credentials,
		remove:      *remove,
	}
}

func run(cfg loginConfig) error {
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

	if cfg.remove {
		account, err := st.AccountByEmail(ctx, cfg.email)
		if err != nil {
			return fmt.Errorf("load account %s: %w", cfg.email, err)
		}
		if err := st.DeleteAccount(ctx, account.ID); err != nil {
			return fmt.Errorf("delete account %s: %w", cfg.email, err)
		}
		log.Info("account removed", "email", cfg.email)
		return nil
	}

	creds, err := os.ReadFile(cfg.credentials)
	if err != nil {
		return fmt.Errorf("read credentials file: %w", err)
	}

	account, err := st.AccountByEmail(ctx, cfg.email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		account = &store.Account{
			Email:       cfg.email,
			ServiceType: provider.ServiceGmail,
			Credentials: json.RawMessage(creds),
		}
		if err := st.CreateAccount(ctx, account); err != nil {
			return fmt.Errorf("create account %s: %w", cfg.email, err)
		}
	case err != nil:
		return fmt.Errorf("load account %s: %w", cfg.email, err)
	default:
		account.Credentials = json.RawMessage(creds)
		if err := st.UpdateAccount(ctx, account); err != nil {
			return fmt.Errorf("update account %s: %w", cfg.email, err)
		}
	}

	// Connect once to walk the authorization flow and capture a token.
	loader, err := runtime.NewRegistry(log).Lookup(account.ServiceType)
	if err != nil {
		return err
	}
	sess, err := loader.Connect(ctx, account.Credentials, account.Token)
	if err != nil {
		return fmt.Errorf("authorize %s: %w", cfg.email, err)
	}
	if sess.Refreshed {
		if err := st.SaveToken(ctx, account.ID, sess.Token); err != nil {
			return fmt.Errorf("save token for %s: %w", cfg.email, err)
		}
	}
	log.Info("account ready", "email", cfg.email)
	return nil
}
