package engine

import (
	"context"
	"fmt"
	"sort"

	"modelbase-backend/internal/store"
)

// DriftReport is the result of comparing the catalog's active attribute
// names against the names actually present in stored values. Drift shows
// up after renames (values keyed by a stale name via a stale client) or
// for attributes no record has ever populated.
type DriftReport struct {
	ModelID           string   `json:"model_id"`
	SampleSize        int      `json:"sample_size"`
	SampledRecords    int      `json:"sampled_records"`
	MissingFromValues []string `json:"missing_from_values"`
	MissingFromSchema []string `json:"missing_from_schema"`
}

// diffAttributes samples the most recent active records of the model and
// reports schema/value drift. Diagnostic path, on demand only.
func diffAttributes(ctx context.Context, q store.Querier, d store.Dialect, modelID string, activeNames []string, sampleSize int) (*DriftReport, error) {
	if sampleSize <= 0 {
		sampleSize = 1
	}

	pb := d.NewParamBuilder()
	sampleSQL := fmt.Sprintf(
		"SELECT id FROM data_records WHERE data_model_id = %s AND is_active = %s AND deleted_at IS NULL ORDER BY created_at DESC, id ASC LIMIT %s",
		pb.Add(modelID), pb.Add(true), pb.Add(sampleSize))

	// Names come from the attribute row, including soft-deleted attributes:
	// their values are still on the record, just absent from the schema.
	diffSQL := fmt.Sprintf(`SELECT a.name
FROM data_record_values v
JOIN data_model_attributes a ON a.id = v.attribute_id
WHERE v.data_record_id IN (%s)
GROUP BY a.name`, sampleSQL)

	rows, err := store.QueryRows(ctx, q, diffSQL, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("drift diff for model %s: %w", modelID, err)
	}

	valueNames := make(map[string]bool, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok {
			valueNames[name] = true
		}
	}

	schemaNames := make(map[string]bool, len(activeNames))
	for _, name := range activeNames {
		schemaNames[name] = true
	}

	report := &DriftReport{
		ModelID:           modelID,
		SampleSize:        sampleSize,
		MissingFromValues: []string{},
		MissingFromSchema: []string{},
	}

	for _, name := range activeNames {
		if !valueNames[name] {
			report.MissingFromValues = append(report.MissingFromValues, name)
		}
	}
	for name := range valueNames {
		if !schemaNames[name] {
			report.MissingFromSchema = append(report.MissingFromSchema, name)
		}
	}
	sort.Strings(report.MissingFromValues)
	sort.Strings(report.MissingFromSchema)

	countPB := d.NewParamBuilder()
	countSQL := fmt.Sprintf(
		"SELECT COUNT(*) AS sampled FROM (SELECT id FROM data_records WHERE data_model_id = %s AND is_active = %s AND deleted_at IS NULL ORDER BY created_at DESC, id ASC LIMIT %s) s",
		countPB.Add(modelID), countPB.Add(true), countPB.Add(sampleSize))
	row, err := store.QueryRow(ctx, q, countSQL, countPB.Params()...)
	if err == nil {
		if n, ok := row["sampled"].(int64); ok {
			report.SampledRecords = int(n)
		}
	}

	return report, nil
}
