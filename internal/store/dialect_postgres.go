package store

import (
	"fmt"
	"strings"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NowExpr() string { return "NOW()" }
func (d *PostgresDialect) NeedsBoolFix() bool { return false }

func (d *PostgresDialect) SystemTablesSQL() string {
	return pgSystemTablesSQL
}

func (d *PostgresDialect) JSONObjectAggExpr(nameCol, valueCol, presentCond string) string {
	return fmt.Sprintf("jsonb_object_agg(%s, %s) FILTER (WHERE %s)", nameCol, valueCol, presentCond)
}

// NumericExpr guards the cast with a regex so malformed historical values
// compare as NULL instead of aborting the whole query with a cast error.
func (d *PostgresDialect) NumericExpr(col string) string {
	return fmt.Sprintf(`CASE WHEN %s ~ '^-?[0-9]+(\.[0-9]+)?$' THEN (%s)::numeric END`, col, col)
}

func (d *PostgresDialect) InExpr(field string, pb ParamBuilder, values []string) string {
	if len(values) == 0 {
		return "1=0" // always false
	}
	return fmt.Sprintf("%s = ANY(%s)", field, pb.Add(values))
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	// With pgx/stdlib, the underlying error message includes the PG code
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

const pgSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS data_models (
    id           UUID PRIMARY KEY,
    name         TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ DEFAULT NOW(),
    updated_at   TIMESTAMPTZ DEFAULT NOW(),
    deleted_at   TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_data_models_name
    ON data_models (name) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS data_model_attributes (
    id            UUID PRIMARY KEY,
    data_model_id UUID NOT NULL REFERENCES data_models(id),
    name          TEXT NOT NULL,
    display_name  TEXT NOT NULL DEFAULT '',
    type          TEXT NOT NULL,
    "order"       INT NOT NULL DEFAULT 0,
    required      BOOLEAN NOT NULL DEFAULT false,
    validation    TEXT,
    created_at    TIMESTAMPTZ DEFAULT NOW(),
    updated_at    TIMESTAMPTZ DEFAULT NOW(),
    deleted_at    TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_attributes_model_name
    ON data_model_attributes (data_model_id, name) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS data_records (
    id            UUID PRIMARY KEY,
    data_model_id UUID NOT NULL REFERENCES data_models(id),
    is_active     BOOLEAN NOT NULL DEFAULT true,
    created_at    TIMESTAMPTZ DEFAULT NOW(),
    updated_at    TIMESTAMPTZ DEFAULT NOW(),
    deleted_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_data_records_model
    ON data_records (data_model_id, created_at DESC, id) WHERE is_active = true;

CREATE TABLE IF NOT EXISTS data_record_values (
    id             UUID PRIMARY KEY,
    data_record_id UUID NOT NULL REFERENCES data_records(id),
    attribute_id   UUID NOT NULL REFERENCES data_model_attributes(id),
    value          TEXT,
    created_at     TIMESTAMPTZ DEFAULT NOW(),
    updated_at     TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (data_record_id, attribute_id)
);
CREATE INDEX IF NOT EXISTS idx_record_values_attribute
    ON data_record_values (attribute_id);

CREATE TABLE IF NOT EXISTS _users (
    id            UUID PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    roles         TEXT NOT NULL DEFAULT '[]',
    active        BOOLEAN DEFAULT true,
    created_at    TIMESTAMPTZ DEFAULT NOW(),
    updated_at    TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _query_stats (
    id          UUID PRIMARY KEY,
    model_id    UUID,
    operation   TEXT NOT NULL,
    duration_ms BIGINT NOT NULL,
    total       BIGINT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ DEFAULT NOW()
);
`
