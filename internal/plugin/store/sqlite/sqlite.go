// Package sqlite wires the GORM conversation store to SQLite. Intended for
// local development and tests; migration uses AutoMigrate instead of an
// embedded schema.
package sqlite

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/docspace/conversation-service/internal/config"
	"github.com/docspace/conversation-service/internal/model"
	"github.com/docspace/conversation-service/internal/plugin/store/gormstore"
	registrymigrate "github.com/docspace/conversation-service/internal/registry/migrate"
	registrystore "github.com/docspace/conversation-service/internal/registry/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Name:   "sqlite",
		Loader: load,
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

func load(ctx context.Context) (registrystore.ConversationStore, error) {
	cfg := config.FromContext(ctx)
	db, err := Open(cfg.DBURL)
	if err != nil {
		return nil, err
	}
	return gormstore.New(db), nil
}

// Open connects to a SQLite database with the options the store requires.
// Exported for tests that build a store around a temp file or :memory: DSN.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent transactions.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate creates the schema on an open handle. Shared by the startup
// migrator and test setup.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Space{},
		&model.Document{},
		&model.Thread{},
		&model.ContextAnchor{},
		&model.Message{},
	)
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }

func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "sqlite" {
		return nil // skip if not using sqlite
	}
	log.Info("Running migration", "name", m.Name())
	db, err := Open(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := Migrate(db.WithContext(ctx)); err != nil {
		return fmt.Errorf("migration: failed to create schema: %w", err)
	}
	log.Info("SQLite schema migration complete")
	return nil
}
