package storage

import "database/sql"

type dialect struct {
	name        string
	upsertOwner string
}

var (
	mysqlDialect = dialect{
		name: "mysql",
		upsertOwner: `
			INSERT INTO settings (name, value) VALUES ('marketplace_owner', ?)
			ON DUPLICATE KEY UPDATE value = VALUES(value)`,
	}
	sqliteDialect = dialect{
		name: "sqlite",
		upsertOwner: `
			INSERT INTO settings (name, value) VALUES ('marketplace_owner', ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
	}
)

// schema is portable between MySQL and SQLite: keyed text columns are
// VARCHAR, amounts are decimal strings, times are unix milliseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS settings (
		name  VARCHAR(64) NOT NULL PRIMARY KEY,
		value VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS properties (
		id         BIGINT UNSIGNED NOT NULL PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		image      TEXT NOT NULL,
		identifier VARCHAR(255) NOT NULL,
		valuation  VARCHAR(80) NOT NULL,
		created_by VARCHAR(255) NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS splits (
		id               BIGINT UNSIGNED NOT NULL PRIMARY KEY,
		split_identifier VARCHAR(255) NOT NULL,
		property_id      BIGINT UNSIGNED NOT NULL,
		token_id         VARCHAR(255) NOT NULL,
		token_metadata   TEXT NOT NULL,
		owner            VARCHAR(255) NOT NULL,
		last_sale_date   BIGINT NOT NULL,
		on_sale          BOOLEAN NOT NULL,
		pending_saga     VARCHAR(36) NOT NULL,
		UNIQUE (token_id),
		UNIQUE (property_id, split_identifier)
	)`,
	`CREATE TABLE IF NOT EXISTS offers (
		split_id   BIGINT UNSIGNED NOT NULL,
		id         BIGINT UNSIGNED NOT NULL,
		value      VARCHAR(80) NOT NULL,
		buyer      VARCHAR(255) NOT NULL,
		token_id   VARCHAR(255) NOT NULL,
		hold_id    VARCHAR(36) NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (split_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS sagas (
		id              VARCHAR(36) NOT NULL PRIMARY KEY,
		kind            VARCHAR(16) NOT NULL,
		correlation_key VARCHAR(255) NOT NULL,
		status          VARCHAR(16) NOT NULL,
		attempts        INT NOT NULL,
		reason          TEXT NOT NULL,
		context         TEXT NOT NULL,
		created_at      BIGINT NOT NULL,
		updated_at      BIGINT NOT NULL,
		deadline_at     BIGINT NOT NULL,
		version         BIGINT NOT NULL DEFAULT 0,
		UNIQUE (correlation_key)
	)`,
	`CREATE TABLE IF NOT EXISTS escrow_holds (
		id         VARCHAR(36) NOT NULL PRIMARY KEY,
		split_id   BIGINT UNSIGNED NOT NULL,
		offer_id   BIGINT UNSIGNED NOT NULL,
		account    VARCHAR(255) NOT NULL,
		amount     VARCHAR(80) NOT NULL,
		status     VARCHAR(16) NOT NULL,
		saga_id    VARCHAR(36) NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id         VARCHAR(36) NOT NULL PRIMARY KEY,
		seq        BIGINT NOT NULL,
		account    VARCHAR(255) NOT NULL,
		amount     VARCHAR(80) NOT NULL,
		kind       VARCHAR(16) NOT NULL,
		hold_id    VARCHAR(36) NOT NULL,
		memo       TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
}

// NewMySQLAdapter stores the ledger in MySQL (github.com/go-sql-driver/mysql).
func NewMySQLAdapter(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: mysqlDialect}
}

// NewSQLiteAdapter stores the ledger in SQLite (modernc.org/sqlite). SQLite
// allows one writer, so the pool is pinned to a single connection.
func NewSQLiteAdapter(db *sql.DB) *SQLStore {
	db.SetMaxOpenConns(1)
	return &SQLStore{db: db, dialect: sqliteDialect}
}
