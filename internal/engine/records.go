package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"modelbase-backend/internal/store"
)

// CreateRecord inserts a new active record for the model and returns its id.
func CreateRecord(ctx context.Context, q store.Querier, d store.Dialect, modelID string) (string, error) {
	pb := d.NewParamBuilder()
	id := uuid.NewString()
	sql := fmt.Sprintf("INSERT INTO data_records (id, data_model_id, is_active) VALUES (%s, %s, %s)",
		pb.Add(id), pb.Add(modelID), pb.Add(true))
	if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	return id, nil
}

// FetchRecordModel returns the owning model id for an active record.
func FetchRecordModel(ctx context.Context, q store.Querier, d store.Dialect, recordID string) (string, error) {
	row, err := store.QueryRow(ctx, q,
		fmt.Sprintf("SELECT data_model_id FROM data_records WHERE id = %s AND deleted_at IS NULL", d.Placeholder(1)),
		recordID)
	if err != nil {
		return "", fmt.Errorf("record %s: %w", recordID, err)
	}
	modelID, _ := row["data_model_id"].(string)
	return modelID, nil
}

// UpsertValue writes one raw value keyed on (record, attribute). The insert
// joins through data_records and data_model_attributes so a value can only
// land on an attribute of the record's own model; anything else is rejected
// before a row is written.
func UpsertValue(ctx context.Context, q store.Querier, d store.Dialect, recordID, attributeID, raw string) error {
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf(`INSERT INTO data_record_values (id, data_record_id, attribute_id, value)
SELECT %s, r.id, a.id, %s
FROM data_records r
JOIN data_model_attributes a ON a.data_model_id = r.data_model_id AND a.deleted_at IS NULL
WHERE r.id = %s AND r.deleted_at IS NULL AND a.id = %s
ON CONFLICT (data_record_id, attribute_id) DO UPDATE SET value = excluded.value, updated_at = %s`,
		pb.Add(uuid.NewString()), pb.Add(raw), pb.Add(recordID), pb.Add(attributeID), d.NowExpr())

	n, err := store.Exec(ctx, q, sql, pb.Params()...)
	if err != nil {
		return fmt.Errorf("upsert value: %w", store.MapError(d, err))
	}
	if n > 0 {
		return nil
	}
	return diagnoseValueWrite(ctx, q, d, recordID, attributeID)
}

// DeleteValue removes the value row for (record, attribute). Writing an
// explicit null clears a value this way rather than storing empty text.
func DeleteValue(ctx context.Context, q store.Querier, d store.Dialect, recordID, attributeID string) error {
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM data_record_values WHERE data_record_id = %s AND attribute_id = %s",
		pb.Add(recordID), pb.Add(attributeID))
	if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
		return fmt.Errorf("delete value: %w", err)
	}
	return nil
}

// diagnoseValueWrite explains a zero-row upsert: missing record, missing or
// inactive attribute, or a cross-model write.
func diagnoseValueWrite(ctx context.Context, q store.Querier, d store.Dialect, recordID, attributeID string) error {
	recRow, err := store.QueryRow(ctx, q,
		fmt.Sprintf("SELECT data_model_id FROM data_records WHERE id = %s AND deleted_at IS NULL", d.Placeholder(1)),
		recordID)
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError("record", recordID)
	}
	if err != nil {
		return err
	}

	attrRow, err := store.QueryRow(ctx, q,
		fmt.Sprintf("SELECT data_model_id, deleted_at FROM data_model_attributes WHERE id = %s", d.Placeholder(1)),
		attributeID)
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError("attribute", attributeID)
	}
	if err != nil {
		return err
	}
	if attrRow["deleted_at"] != nil {
		return NotFoundError("attribute", attributeID)
	}

	if attrRow["data_model_id"] != recRow["data_model_id"] {
		return SchemaMismatchError(attributeID, recordID)
	}
	return fmt.Errorf("upsert value for record %s attribute %s: no row written", recordID, attributeID)
}

// GetValue returns the stored raw value for (record, attribute), resolving
// through soft-deleted attributes for audit and history reads.
func GetValue(ctx context.Context, q store.Querier, d store.Dialect, recordID, attributeID string) (string, error) {
	pb := d.NewParamBuilder()
	row, err := store.QueryRow(ctx, q,
		fmt.Sprintf("SELECT value FROM data_record_values WHERE data_record_id = %s AND attribute_id = %s",
			pb.Add(recordID), pb.Add(attributeID)),
		pb.Params()...)
	if err != nil {
		return "", fmt.Errorf("value for record %s attribute %s: %w", recordID, attributeID, err)
	}
	switch v := row["value"].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case time.Time:
		// Date-shaped text round-trips through the row scanner as time.Time.
		return v.Format(time.RFC3339), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// SoftDeleteRecord deactivates a record; value rows are retained.
func SoftDeleteRecord(ctx context.Context, q store.Querier, d store.Dialect, recordID string) error {
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("UPDATE data_records SET is_active = %s, deleted_at = %s, updated_at = %s WHERE id = %s AND deleted_at IS NULL",
		pb.Add(false), d.NowExpr(), d.NowExpr(), pb.Add(recordID))
	n, err := store.Exec(ctx, q, sql, pb.Params()...)
	if err != nil {
		return fmt.Errorf("soft delete record %s: %w", recordID, err)
	}
	if n == 0 {
		return NotFoundError("record", recordID)
	}
	return nil
}

// TouchRecord bumps updated_at after a value batch.
func TouchRecord(ctx context.Context, q store.Querier, d store.Dialect, recordID string) error {
	sql := fmt.Sprintf("UPDATE data_records SET updated_at = %s WHERE id = %s", d.NowExpr(), d.Placeholder(1))
	if _, err := store.Exec(ctx, q, sql, recordID); err != nil {
		return fmt.Errorf("touch record %s: %w", recordID, err)
	}
	return nil
}
