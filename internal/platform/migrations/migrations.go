// Package migrations holds the Postgres schema for the certificate store and
// the audit log.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/lib/pq"
)

//go:embed *.sql
var files embed.FS

// Default table names.
const (
	DefaultCertificatesTable = "gas_certificates"
	DefaultLogsTable         = "gas_checker_logs"
)

// Execer is satisfied by *sql.DB, *sql.Tx and *sqlx.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Apply runs every migration against the default table names.
func Apply(ctx context.Context, db Execer) error {
	return ApplyTables(ctx, db, DefaultCertificatesTable, DefaultLogsTable)
}

// ApplyTables runs every migration in name order. Each file is idempotent.
func ApplyTables(ctx context.Context, db Execer, certificatesTable, logsTable string) error {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	// Index names derive from their table so that several table pairs can
	// share one schema.
	replacer := strings.NewReplacer(
		"{{certificates}}", pq.QuoteIdentifier(certificatesTable),
		"{{certificates_expiry_idx}}", pq.QuoteIdentifier(certificatesTable+"_expiry_idx"),
		"{{logs}}", pq.QuoteIdentifier(logsTable),
		"{{logs_timestamp_idx}}", pq.QuoteIdentifier(logsTable+"_timestamp_idx"),
	)

	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, replacer.Replace(string(body))); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
