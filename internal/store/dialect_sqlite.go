package store

import (
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NowExpr() string { return "datetime('now')" }
func (d *SQLiteDialect) NeedsBoolFix() bool { return true }

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) JSONObjectAggExpr(nameCol, valueCol, presentCond string) string {
	return fmt.Sprintf("json_group_object(%s, %s) FILTER (WHERE %s)", nameCol, valueCol, presentCond)
}

// NumericExpr relies on SQLite CAST, which never raises: malformed text
// casts to 0.0 rather than failing the query.
func (d *SQLiteDialect) NumericExpr(col string) string {
	return fmt.Sprintf("CAST(%s AS REAL)", col)
}

func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []string) string {
	if len(values) == 0 {
		return "1=0" // always false
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(phs, ", "))
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS data_models (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    created_at   TEXT DEFAULT (datetime('now')),
    updated_at   TEXT DEFAULT (datetime('now')),
    deleted_at   TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_data_models_name
    ON data_models (name) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS data_model_attributes (
    id            TEXT PRIMARY KEY,
    data_model_id TEXT NOT NULL REFERENCES data_models(id),
    name          TEXT NOT NULL,
    display_name  TEXT NOT NULL DEFAULT '',
    type          TEXT NOT NULL,
    "order"       INTEGER NOT NULL DEFAULT 0,
    required      INTEGER NOT NULL DEFAULT 0,
    validation    TEXT,
    created_at    TEXT DEFAULT (datetime('now')),
    updated_at    TEXT DEFAULT (datetime('now')),
    deleted_at    TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_attributes_model_name
    ON data_model_attributes (data_model_id, name) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS data_records (
    id            TEXT PRIMARY KEY,
    data_model_id TEXT NOT NULL REFERENCES data_models(id),
    is_active     INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT DEFAULT (datetime('now')),
    updated_at    TEXT DEFAULT (datetime('now')),
    deleted_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_data_records_model
    ON data_records (data_model_id, created_at DESC, id) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS data_record_values (
    id             TEXT PRIMARY KEY,
    data_record_id TEXT NOT NULL REFERENCES data_records(id),
    attribute_id   TEXT NOT NULL REFERENCES data_model_attributes(id),
    value          TEXT,
    created_at     TEXT DEFAULT (datetime('now')),
    updated_at     TEXT DEFAULT (datetime('now')),
    UNIQUE (data_record_id, attribute_id)
);
CREATE INDEX IF NOT EXISTS idx_record_values_attribute
    ON data_record_values (attribute_id);

CREATE TABLE IF NOT EXISTS _users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    roles         TEXT NOT NULL DEFAULT '[]',
    active        INTEGER DEFAULT 1,
    created_at    TEXT DEFAULT (datetime('now')),
    updated_at    TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _query_stats (
    id          TEXT PRIMARY KEY,
    model_id    TEXT,
    operation   TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    total       INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT DEFAULT (datetime('now'))
);
`
