package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/uptrace/bun"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const advisoryLockID int64 = 7420016

const (
	upMarker             = "-- +goose Up"
	downMarker           = "-- +goose Down"
	statementBeginMarker = "-- +goose StatementBegin"
	statementEndMarker   = "-- +goose StatementEnd"
)

type Migration struct {
	Name string
	Up   []string
}

// Load returns the embedded migrations for dialect in filename order.
func Load(dialect Dialect) ([]Migration, error) {
	dir := string(dialect)
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations for %s: %w", dialect, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		b, err := fs.ReadFile(files, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		up, err := extractUp(string(b))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, Migration{Name: name, Up: splitStatements(up)})
	}
	return out, nil
}

// Apply runs the pending Up sections and records them in schema_migrations.
func Apply(ctx context.Context, db *bun.DB, dialect Dialect) error {
	migs, err := Load(dialect)
	if err != nil {
		return err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Close()

	if dialect == Postgres {
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock(?)", advisoryLockID); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(?)", advisoryLockID)
		}()
	}

	if _, err := conn.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	var done []string
	if err := conn.NewSelect().Table("schema_migrations").Column("name").Scan(ctx, &done); err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	applied := make(map[string]struct{}, len(done))
	for _, name := range done {
		applied[name] = struct{}{}
	}

	for _, m := range migs {
		if _, ok := applied[m.Name]; ok {
			continue
		}
		err := conn.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, stmt := range m.Up {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (name) VALUES (?)", m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s: %w", m.Name, err)
		}
	}
	return nil
}

func extractUp(sql string) (string, error) {
	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := strings.TrimLeft(sql[upIdx+len(upMarker):], "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

// splitStatements splits on semicolons except inside StatementBegin/StatementEnd blocks.
func splitStatements(sql string) []string {
	var (
		out     []string
		buf     strings.Builder
		inBlock bool
	)
	flush := func() {
		s := strings.TrimSpace(buf.String())
		s = strings.TrimSuffix(s, ";")
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		buf.Reset()
	}

	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == statementBeginMarker:
			flush()
			inBlock = true
			continue
		case trimmed == statementEndMarker:
			flush()
			inBlock = false
			continue
		case strings.HasPrefix(trimmed, "--"):
			continue
		}

		if inBlock {
			buf.WriteString(line)
			buf.WriteByte('\n')
			continue
		}

		rest := line
		for {
			i := strings.IndexByte(rest, ';')
			if i < 0 {
				buf.WriteString(rest)
				buf.WriteByte('\n')
				break
			}
			buf.WriteString(rest[:i])
			flush()
			rest = rest[i+1:]
		}
	}
	flush()
	return out
}
