// internal/runtime/runtime.go — shared wiring for the mailharvest binaries
package runtime

import (
	"fmt"
	"log/slog"
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yourorg/mailharvest/internal/gmailapi"
	"github.com/yourorg/mailharvest/internal/provider"
	"github.com/yourorg/mailharvest/internal/store"
)

func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// NewRegistry returns the loader registry with every supported provider
// registered. Gmail is the only one today.
func NewRegistry(log *slog.Logger) *provider.Registry {
	reg := provider.NewRegistry()
	reg.Register(provider.ServiceGmail, gmailapi.NewLoader(log))
	return reg
}

// OpenStore opens the SQLite-backed store at path, creating the schema on
// first use.
func OpenStore(path string) (store.Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	st, err := store.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	return st, nil
}
