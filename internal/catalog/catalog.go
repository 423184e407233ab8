package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"modelbase-backend/internal/store"
)

// namePattern matches identifiers that are safe as JSON object keys and
// readable in filter params. Display names are free-form; these are not.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var ErrInvalidName = errors.New("invalid name")
var ErrInvalidType = errors.New("invalid attribute type")

// Catalog is the schema catalog: data models and their attributes.
// It is stateless; every call goes to the backing store.
type Catalog struct {
	store *store.Store
}

func New(s *store.Store) *Catalog {
	return &Catalog{store: s}
}

// CreateModel registers a new data model. The name must be unique among
// active models.
func (c *Catalog) CreateModel(ctx context.Context, name, displayName string) (*DataModel, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("model name %q: %w", name, ErrInvalidName)
	}
	if displayName == "" {
		displayName = name
	}

	d := c.store.Dialect
	pb := d.NewParamBuilder()
	id := uuid.NewString()
	sql := fmt.Sprintf(
		"INSERT INTO data_models (id, name, display_name) VALUES (%s, %s, %s)",
		pb.Add(id), pb.Add(name), pb.Add(displayName))
	if _, err := store.Exec(ctx, c.store.DB, sql, pb.Params()...); err != nil {
		return nil, fmt.Errorf("create model %s: %w", name, store.MapError(d, err))
	}
	return c.GetModel(ctx, id)
}

// GetModel returns an active model by id.
func (c *Catalog) GetModel(ctx context.Context, id string) (*DataModel, error) {
	d := c.store.Dialect
	row, err := store.QueryRow(ctx, c.store.DB,
		fmt.Sprintf("SELECT id, name, display_name, created_at, updated_at, deleted_at FROM data_models WHERE id = %s AND deleted_at IS NULL", d.Placeholder(1)),
		id)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", id, err)
	}
	return modelFromRow(row), nil
}

// GetModelByName returns an active model by its unique name.
func (c *Catalog) GetModelByName(ctx context.Context, name string) (*DataModel, error) {
	d := c.store.Dialect
	row, err := store.QueryRow(ctx, c.store.DB,
		fmt.Sprintf("SELECT id, name, display_name, created_at, updated_at, deleted_at FROM data_models WHERE name = %s AND deleted_at IS NULL", d.Placeholder(1)),
		name)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	return modelFromRow(row), nil
}

// ListModels returns all active models ordered by name.
func (c *Catalog) ListModels(ctx context.Context) ([]*DataModel, error) {
	rows, err := store.QueryRows(ctx, c.store.DB,
		"SELECT id, name, display_name, created_at, updated_at, deleted_at FROM data_models WHERE deleted_at IS NULL ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	models := make([]*DataModel, 0, len(rows))
	for _, row := range rows {
		models = append(models, modelFromRow(row))
	}
	return models, nil
}

// SoftDeleteModel marks a model deleted. Records and values stay resolvable
// by id for audit.
func (c *Catalog) SoftDeleteModel(ctx context.Context, id string) error {
	d := c.store.Dialect
	sql := fmt.Sprintf("UPDATE data_models SET deleted_at = %s, updated_at = %s WHERE id = %s AND deleted_at IS NULL",
		d.NowExpr(), d.NowExpr(), d.Placeholder(1))
	n, err := store.Exec(ctx, c.store.DB, sql, id)
	if err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("model %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// CreateAttribute adds an attribute to an active model. The name must be
// unique among the model's active attributes. A zero order places the
// attribute after all existing ones.
func (c *Catalog) CreateAttribute(ctx context.Context, modelID string, in AttributeInput) (*Attribute, error) {
	if !namePattern.MatchString(in.Name) {
		return nil, fmt.Errorf("attribute name %q: %w", in.Name, ErrInvalidName)
	}
	if !IsValidType(in.Type) {
		return nil, fmt.Errorf("attribute type %q: %w", in.Type, ErrInvalidType)
	}
	if _, err := c.GetModel(ctx, modelID); err != nil {
		return nil, err
	}
	if in.DisplayName == "" {
		in.DisplayName = in.Name
	}

	d := c.store.Dialect
	if in.Order <= 0 {
		row, err := store.QueryRow(ctx, c.store.DB,
			fmt.Sprintf(`SELECT COALESCE(MAX("order"), 0) + 1 AS next_order FROM data_model_attributes WHERE data_model_id = %s AND deleted_at IS NULL`, d.Placeholder(1)),
			modelID)
		if err != nil {
			return nil, fmt.Errorf("next attribute order: %w", err)
		}
		in.Order = int(asInt64(row["next_order"]))
	}

	pb := d.NewParamBuilder()
	id := uuid.NewString()
	sql := fmt.Sprintf(
		`INSERT INTO data_model_attributes (id, data_model_id, name, display_name, type, "order", required, validation) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(id), pb.Add(modelID), pb.Add(in.Name), pb.Add(in.DisplayName),
		pb.Add(in.Type), pb.Add(in.Order), pb.Add(in.Required), pb.Add(in.Validation))
	if _, err := store.Exec(ctx, c.store.DB, sql, pb.Params()...); err != nil {
		return nil, fmt.Errorf("create attribute %s: %w", in.Name, store.MapError(d, err))
	}
	return c.GetAttribute(ctx, id)
}

// GetAttribute returns an attribute by id, including soft-deleted ones.
// Historical values keep resolving through here after a schema change.
func (c *Catalog) GetAttribute(ctx context.Context, id string) (*Attribute, error) {
	d := c.store.Dialect
	row, err := store.QueryRow(ctx, c.store.DB,
		fmt.Sprintf(`SELECT id, data_model_id, name, display_name, type, "order", required, validation, deleted_at FROM data_model_attributes WHERE id = %s`, d.Placeholder(1)),
		id)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", id, err)
	}
	return attrFromRow(row), nil
}

// ListAttributes returns a model's attributes ordered by "order" then
// display_name. Soft-deleted attributes are excluded unless includeInactive.
func (c *Catalog) ListAttributes(ctx context.Context, modelID string, includeInactive bool) ([]*Attribute, error) {
	d := c.store.Dialect
	sql := fmt.Sprintf(`SELECT id, data_model_id, name, display_name, type, "order", required, validation, deleted_at FROM data_model_attributes WHERE data_model_id = %s`, d.Placeholder(1))
	if !includeInactive {
		sql += " AND deleted_at IS NULL"
	}
	sql += ` ORDER BY "order" ASC, display_name ASC`

	rows, err := store.QueryRows(ctx, c.store.DB, sql, modelID)
	if err != nil {
		return nil, fmt.Errorf("list attributes for %s: %w", modelID, err)
	}
	attrs := make([]*Attribute, 0, len(rows))
	for _, row := range rows {
		attrs = append(attrs, attrFromRow(row))
	}
	return attrs, nil
}

// ActiveAttributeSet returns the model's active attributes keyed by name.
// This is the whitelist the query compiler resolves filter and sort names
// against.
func (c *Catalog) ActiveAttributeSet(ctx context.Context, modelID string) (map[string]*Attribute, error) {
	attrs, err := c.ListAttributes(ctx, modelID, false)
	if err != nil {
		return nil, err
	}
	set := make(map[string]*Attribute, len(attrs))
	for _, a := range attrs {
		set[a.Name] = a
	}
	return set, nil
}

// SoftDeleteAttribute removes an attribute from the catalog for future
// reads and writes. Existing value rows are untouched.
func (c *Catalog) SoftDeleteAttribute(ctx context.Context, id string) error {
	d := c.store.Dialect
	sql := fmt.Sprintf("UPDATE data_model_attributes SET deleted_at = %s, updated_at = %s WHERE id = %s AND deleted_at IS NULL",
		d.NowExpr(), d.NowExpr(), d.Placeholder(1))
	n, err := store.Exec(ctx, c.store.DB, sql, id)
	if err != nil {
		return fmt.Errorf("delete attribute %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("attribute %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// RenameAttribute changes an attribute's lookup alias. Stored value rows
// reference the id and are untouched; the result carries both names so
// callers can keep resolving the old one for a grace window.
func (c *Catalog) RenameAttribute(ctx context.Context, id, newName string) (*RenameResult, error) {
	if !namePattern.MatchString(newName) {
		return nil, fmt.Errorf("attribute name %q: %w", newName, ErrInvalidName)
	}

	attr, err := c.GetAttribute(ctx, id)
	if err != nil {
		return nil, err
	}
	if !attr.Active() {
		return nil, fmt.Errorf("attribute %s: %w", id, store.ErrNotFound)
	}
	if attr.Name == newName {
		return &RenameResult{AttributeID: id, OldName: attr.Name, NewName: newName}, nil
	}

	d := c.store.Dialect
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("UPDATE data_model_attributes SET name = %s, updated_at = %s WHERE id = %s AND deleted_at IS NULL",
		pb.Add(newName), d.NowExpr(), pb.Add(id))
	if _, err := store.Exec(ctx, c.store.DB, sql, pb.Params()...); err != nil {
		return nil, fmt.Errorf("rename attribute %s: %w", id, store.MapError(d, err))
	}
	return &RenameResult{AttributeID: id, OldName: attr.Name, NewName: newName}, nil
}

// --- row mapping ---

func modelFromRow(row map[string]any) *DataModel {
	return &DataModel{
		ID:          asString(row["id"]),
		Name:        asString(row["name"]),
		DisplayName: asString(row["display_name"]),
		CreatedAt:   asTime(row["created_at"]),
		UpdatedAt:   asTime(row["updated_at"]),
		DeletedAt:   asTimePtr(row["deleted_at"]),
	}
}

func attrFromRow(row map[string]any) *Attribute {
	return &Attribute{
		ID:          asString(row["id"]),
		DataModelID: asString(row["data_model_id"]),
		Name:        asString(row["name"]),
		DisplayName: asString(row["display_name"]),
		Type:        asString(row["type"]),
		Order:       int(asInt64(row["order"])),
		Required:    asBool(row["required"]),
		Validation:  asString(row["validation"]),
		DeletedAt:   asTimePtr(row["deleted_at"]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
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

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case float64:
		return b != 0
	}
	return false
}

func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}

func asTimePtr(v any) *time.Time {
	if t, ok := v.(time.Time); ok {
		return &t
	}
	return nil
}
