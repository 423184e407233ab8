package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modelbase-backend/internal/catalog"
	"modelbase-backend/internal/instrument"
	"modelbase-backend/internal/store"
)

// Record is one typed, reconstructed instance of a data model. Values holds
// one entry per attribute that has a value row; a malformed stored value
// appears as an explicit null plus a CoercionWarning.
type Record struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Values    map[string]any `json:"values"`
}

// CoercionWarning ties a coercion failure to the record it occurred on.
type CoercionWarning struct {
	RecordID string `json:"record_id"`
	catalog.Warning
}

// ListResult is a page of records plus the total count of matching active
// records under the same filters.
type ListResult struct {
	Records  []Record          `json:"records"`
	Total    int64             `json:"total"`
	Page     PageSpec          `json:"page"`
	Warnings []CoercionWarning `json:"warnings,omitempty"`
}

// Options bounds page sizes; zero values fall back to defaults.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Engine is the query facade external collaborators consume. It is
// stateless over an injected store and catalog; all coordination is
// delegated to the backing database.
type Engine struct {
	store    *store.Store
	catalog  *catalog.Catalog
	stats    *instrument.Collector
	rules    *ruleCache
	pageSize int
	maxPage  int
}

func New(s *store.Store, c *catalog.Catalog, stats *instrument.Collector, opts Options) *Engine {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 25
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 200
	}
	return &Engine{
		store:    s,
		catalog:  c,
		stats:    stats,
		rules:    newRuleCache(),
		pageSize: opts.DefaultPageSize,
		maxPage:  opts.MaxPageSize,
	}
}

// Catalog exposes the schema catalog for admin surfaces.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// ListRecords returns one page of typed records plus the total count.
// Filters and sort names resolve against the model's active attributes;
// an unknown or soft-deleted name fails the whole call with InvalidFilter.
func (e *Engine) ListRecords(ctx context.Context, modelID string, filters []FilterClause, sort SortSpec, page PageSpec) (*ListResult, error) {
	started := time.Now()

	if _, err := e.catalog.GetModel(ctx, modelID); err != nil {
		return nil, e.mapError(err, "data model", modelID)
	}
	attrs, err := e.catalog.ActiveAttributeSet(ctx, modelID)
	if err != nil {
		return nil, e.mapError(err, "data model", modelID)
	}

	plan := &queryPlan{
		modelID: modelID,
		attrs:   attrs,
		filters: filters,
		sort:    sort,
		page:    e.clampPage(page),
	}

	d := e.store.Dialect

	dataSQL, dataParams, err := BuildAggregateSQL(d, plan)
	if err != nil {
		return nil, err
	}
	countSQL, countParams, err := BuildCountSQL(d, plan)
	if err != nil {
		return nil, err
	}

	rows, err := store.QueryRows(ctx, e.store.DB, dataSQL, dataParams...)
	if err != nil {
		return nil, e.mapError(err, "records of", modelID)
	}
	countRow, err := store.QueryRow(ctx, e.store.DB, countSQL, countParams...)
	if err != nil {
		return nil, e.mapError(err, "records of", modelID)
	}
	total := asCount(countRow["total"])

	result := &ListResult{
		Records: make([]Record, 0, len(rows)),
		Total:   total,
		Page:    plan.page,
	}
	for _, row := range rows {
		rec, warnings, err := decodeRecordRow(row, attrs)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, rec)
		result.Warnings = append(result.Warnings, warnings...)
	}

	e.recordStat(instrument.QueryStat{
		ModelID:   modelID,
		Operation: "list_records",
		Duration:  time.Since(started),
		Total:     total,
	})
	return result, nil
}

// GetAttributeSchema returns the model's active attributes in display order.
func (e *Engine) GetAttributeSchema(ctx context.Context, modelID string) ([]*catalog.Attribute, error) {
	if _, err := e.catalog.GetModel(ctx, modelID); err != nil {
		return nil, e.mapError(err, "data model", modelID)
	}
	attrs, err := e.catalog.ListAttributes(ctx, modelID, false)
	if err != nil {
		return nil, e.mapError(err, "data model", modelID)
	}
	return attrs, nil
}

// UpsertRecordValues writes a batch of named values against one record,
// creating the record when recordID is empty. The whole batch runs in one
// transaction: a concurrent reader never sees a half-written record, and a
// failed validation writes nothing.
func (e *Engine) UpsertRecordValues(ctx context.Context, modelID, recordID string, values map[string]any) (string, error) {
	if _, err := e.catalog.GetModel(ctx, modelID); err != nil {
		return "", e.mapError(err, "data model", modelID)
	}
	attrs, err := e.catalog.ActiveAttributeSet(ctx, modelID)
	if err != nil {
		return "", e.mapError(err, "data model", modelID)
	}

	type pendingWrite struct {
		attr  *catalog.Attribute
		raw   string
		clear bool
	}

	var details []ErrorDetail
	writes := make([]pendingWrite, 0, len(values))
	for name, v := range values {
		attr, ok := attrs[name]
		if !ok {
			return "", NotFoundError("attribute", name)
		}
		if v == nil {
			writes = append(writes, pendingWrite{attr: attr, clear: true})
			continue
		}

		typed, _ := catalog.Coerce(attr, v)
		if detail := e.rules.ValidateValue(attr, typed, values); detail != nil {
			details = append(details, *detail)
			continue
		}

		raw, err := catalog.Encode(attr, v)
		if err != nil {
			details = append(details, ErrorDetail{Field: name, Rule: "type", Message: err.Error()})
			continue
		}
		writes = append(writes, pendingWrite{attr: attr, raw: raw})
	}

	if recordID == "" {
		for _, attr := range attrs {
			if attr.Required {
				if v, ok := values[attr.Name]; !ok || v == nil {
					details = append(details, ErrorDetail{Field: attr.Name, Rule: "required", Message: fmt.Sprintf("%s is required", attr.Name)})
				}
			}
		}
	}
	if len(details) > 0 {
		return "", ValidationError(details)
	}

	d := e.store.Dialect
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return "", e.mapError(err, "record", recordID)
	}
	defer tx.Rollback() //nolint:errcheck

	if recordID == "" {
		recordID, err = CreateRecord(ctx, tx, d, modelID)
		if err != nil {
			return "", e.mapError(err, "record", recordID)
		}
	} else {
		owner, err := FetchRecordModel(ctx, tx, d, recordID)
		if err != nil {
			return "", e.mapError(err, "record", recordID)
		}
		if owner != modelID {
			return "", NotFoundError("record", recordID)
		}
	}

	for _, w := range writes {
		if w.clear {
			if err := DeleteValue(ctx, tx, d, recordID, w.attr.ID); err != nil {
				return "", e.mapError(err, "record", recordID)
			}
			continue
		}
		if err := UpsertValue(ctx, tx, d, recordID, w.attr.ID, w.raw); err != nil {
			return "", e.mapError(err, "record", recordID)
		}
	}

	if err := TouchRecord(ctx, tx, d, recordID); err != nil {
		return "", e.mapError(err, "record", recordID)
	}
	if err := tx.Commit(); err != nil {
		return "", e.mapError(err, "record", recordID)
	}
	return recordID, nil
}

// DeleteRecord soft-deletes a record of the model.
func (e *Engine) DeleteRecord(ctx context.Context, modelID, recordID string) error {
	owner, err := FetchRecordModel(ctx, e.store.DB, e.store.Dialect, recordID)
	if err != nil {
		return e.mapError(err, "record", recordID)
	}
	if owner != modelID {
		return NotFoundError("record", recordID)
	}
	return SoftDeleteRecord(ctx, e.store.DB, e.store.Dialect, recordID)
}

// HistoricalValue returns the raw stored value for (record, attribute),
// including values of soft-deleted attributes.
func (e *Engine) HistoricalValue(ctx context.Context, recordID, attributeID string) (string, error) {
	v, err := GetValue(ctx, e.store.DB, e.store.Dialect, recordID, attributeID)
	if err != nil {
		return "", e.mapError(err, "value", recordID+"/"+attributeID)
	}
	return v, nil
}

// DiffAttributes compares the active schema against the attribute names
// present in a sample of recent records.
func (e *Engine) DiffAttributes(ctx context.Context, modelID string, sampleSize int) (*DriftReport, error) {
	started := time.Now()

	if _, err := e.catalog.GetModel(ctx, modelID); err != nil {
		return nil, e.mapError(err, "data model", modelID)
	}
	attrs, err := e.catalog.ListAttributes(ctx, modelID, false)
	if err != nil {
		return nil, e.mapError(err, "data model", modelID)
	}
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}

	report, err := diffAttributes(ctx, e.store.DB, e.store.Dialect, modelID, names, sampleSize)
	if err != nil {
		return nil, e.mapError(err, "data model", modelID)
	}

	e.recordStat(instrument.QueryStat{
		ModelID:   modelID,
		Operation: "diff_attributes",
		Duration:  time.Since(started),
	})
	return report, nil
}

func (e *Engine) clampPage(page PageSpec) PageSpec {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.Size <= 0 {
		page.Size = e.pageSize
	}
	if page.Size > e.maxPage {
		page.Size = e.maxPage
	}
	return page
}

func (e *Engine) recordStat(stat instrument.QueryStat) {
	if e.stats != nil {
		e.stats.Enqueue(stat)
	}
}

// mapError translates store and context errors into the API taxonomy.
func (e *Engine) mapError(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return TimeoutError(fmt.Sprintf("query for %s %s", kind, id))
	}
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError(kind, id)
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return ConflictError("A record with this value already exists")
	}
	if errors.Is(err, catalog.ErrInvalidName) || errors.Is(err, catalog.ErrInvalidType) {
		return NewAppError("INVALID_PAYLOAD", 400, err.Error())
	}
	return err
}

func decodeRecordRow(row map[string]any, attrs map[string]*catalog.Attribute) (Record, []CoercionWarning, error) {
	rec := Record{
		Values: map[string]any{},
	}
	rec.ID, _ = row["id"].(string)
	if t, ok := row["created_at"].(time.Time); ok {
		rec.CreatedAt = t
	}
	if t, ok := row["updated_at"].(time.Time); ok {
		rec.UpdatedAt = t
	}

	rawValues := row["record_values"]
	if rawValues == nil {
		return rec, nil, nil
	}
	s, ok := rawValues.(string)
	if !ok {
		return rec, nil, fmt.Errorf("unexpected aggregated values type %T for record %s", rawValues, rec.ID)
	}

	var stored map[string]any
	if err := json.Unmarshal([]byte(s), &stored); err != nil {
		return rec, nil, fmt.Errorf("decode aggregated values for record %s: %w", rec.ID, err)
	}

	var warnings []CoercionWarning
	for name, raw := range stored {
		attr, ok := attrs[name]
		if !ok {
			// Value keyed by a name no longer in the active schema; the
			// drift detector surfaces these.
			continue
		}
		typed, w := catalog.Coerce(attr, raw)
		if w != nil {
			warnings = append(warnings, CoercionWarning{RecordID: rec.ID, Warning: *w})
		}
		rec.Values[name] = typed
	}
	return rec, warnings, nil
}

func asCount(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
