package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"roombook/backend/migrations"
)

const dsnParams = "_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

// Open opens path (or ":memory:") on a single connection and applies the
// embedded migrations.
func Open(ctx context.Context, path string) (*bun.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	sqlDB, err := sql.Open("sqlite3", path+"?"+dsnParams)
	if err != nil {
		return nil, err
	}
	// One writer at a time; a second connection would also lose ":memory:" state.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if err := migrations.Apply(ctx, db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
