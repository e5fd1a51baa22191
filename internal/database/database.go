package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/sijms/go-ora/v2"

	"crashmap/internal/records"
	"crashmap/internal/types"
)

// dsn builds a properly encoded connection string for Oracle
func dsn(username, password, host, port, service string, walletLocation string) string {
	if walletLocation != "" {
		// Wallet-based mTLS connection
		return fmt.Sprintf(
			"oracle://%s:%s@%s:%s/%s?ssl=true&wallet_location=%s",
			url.PathEscape(username), url.PathEscape(password), host, port, service, url.PathEscape(walletLocation))
	}

	return (&url.URL{
		Scheme: "oracle",
		User:   url.UserPassword(username, password), // escapes automatically
		Host:   host + ":" + port,
		Path:   "/" + service, // keep full service name
	}).String()
}

// DBConfig holds database connection configuration
type DBConfig struct {
	Host           string
	Port           string
	Service        string
	Username       string
	Password       string
	WalletLocation string
	// Table holds the crash rows, optionally schema-qualified.
	Table string
}

// Database holds the database connection and configuration
type Database struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// NewDatabase opens and pings an Oracle connection.
func NewDatabase(ctx context.Context, config DBConfig, logger *slog.Logger) (*Database, error) {
	connStr := dsn(config.Username, config.Password, config.Host, config.Port, config.Service, config.WalletLocation)

	logger.Info("connecting to oracle", "host", config.Host, "port", config.Port, "service", config.Service, "wallet", config.WalletLocation != "")

	db, err := sql.Open("oracle", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewWithDB(db, config.Table, logger), nil
}

// NewWithDB wraps an already open handle.
func NewWithDB(db *sql.DB, table string, logger *slog.Logger) *Database {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Database{db: db, table: table, logger: logger}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Source names the table for log lines and the store's source label.
func (d *Database) Source() string {
	return "oracle:" + d.table
}

// QueryCrashes reads every row of the crash table ordered by crash
// reference, so the load order is the same on every run.
// Values are scanned as text and go through the same parsing as file rows,
// so a bad row fails with a DataLoadError naming its row number.
func (d *Database) QueryCrashes(ctx context.Context) ([]types.CrashRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(records.Columns, ", "), d.table, records.ColRef)

	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query crashes: %w", err)
	}
	defer rows.Close()

	var (
		crashes []types.CrashRecord
		vals    = make([]sql.NullString, len(records.Columns))
		dest    = make([]any, len(records.Columns))
	)
	for i := range vals {
		dest[i] = &vals[i]
	}
	for line := 1; rows.Next(); line++ {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan crash row %d: %w", line, err)
		}
		row := make(map[string]string, len(records.Columns))
		for i, col := range records.Columns {
			if vals[i].Valid {
				row[col] = vals[i].String
			} else {
				row[col] = ""
			}
		}
		rec, err := records.ParseRow(row)
		if err != nil {
			return nil, &types.DataLoadError{Kind: types.LoadMalformed, Path: d.Source(), Line: line, Err: err}
		}
		crashes = append(crashes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read crashes: %w", err)
	}

	d.logger.Info("crashes queried", "table", d.table, "rows", len(crashes), "took", time.Since(start).Truncate(time.Millisecond))
	return crashes, nil
}
