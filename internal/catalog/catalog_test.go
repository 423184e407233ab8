package catalog_test

import (
	"context"
	"errors"
	"testing"

	"modelbase-backend/internal/catalog"
	"modelbase-backend/internal/config"
	"modelbase-backend/internal/store"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   t.TempDir(),
		Name:   "catalog_test",
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return catalog.New(s)
}

func TestCreateAndGetModel(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	model, err := c.CreateModel(ctx, "customer", "Customer")
	if err != nil {
		t.Fatalf("create model: %v", err)
	}
	if model.ID == "" || model.Name != "customer" || model.DisplayName != "Customer" {
		t.Fatalf("unexpected model: %+v", model)
	}

	byName, err := c.GetModelByName(ctx, "customer")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if byName.ID != model.ID {
		t.Fatalf("expected id %s, got %s", model.ID, byName.ID)
	}
}

func TestCreateModel_RejectsBadNames(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	for _, name := range []string{"", "Customer", "1st", "drop table", "a-b"} {
		if _, err := c.CreateModel(ctx, name, ""); !errors.Is(err, catalog.ErrInvalidName) {
			t.Fatalf("name %q: expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestCreateModel_DuplicateNameConflicts(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	if _, err := c.CreateModel(ctx, "customer", ""); err != nil {
		t.Fatalf("create model: %v", err)
	}
	if _, err := c.CreateModel(ctx, "customer", ""); !errors.Is(err, store.ErrUniqueViolation) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestSoftDeleteModel_FreesName(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	model, err := c.CreateModel(ctx, "customer", "")
	if err != nil {
		t.Fatalf("create model: %v", err)
	}
	if err := c.SoftDeleteModel(ctx, model.ID); err != nil {
		t.Fatalf("delete model: %v", err)
	}

	if _, err := c.GetModelByName(ctx, "customer"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	// Partial unique index only covers active rows, so the name is reusable.
	if _, err := c.CreateModel(ctx, "customer", ""); err != nil {
		t.Fatalf("recreate model with freed name: %v", err)
	}
}

func TestCreateAttribute_OrderAndListing(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	model, err := c.CreateModel(ctx, "customer", "")
	if err != nil {
		t.Fatalf("create model: %v", err)
	}

	names := []string{"name", "age", "active"}
	types := []string{catalog.TypeText, catalog.TypeNumber, catalog.TypeBoolean}
	for i, n := range names {
		a, err := c.CreateAttribute(ctx, model.ID, catalog.AttributeInput{Name: n, Type: types[i]})
		if err != nil {
			t.Fatalf("create attribute %s: %v", n, err)
		}
		if a.Order != i+1 {
			t.Fatalf("attribute %s: expected order %d, got %d", n, i+1, a.Order)
		}
	}

	attrs, err := c.ListAttributes(ctx, model.ID, false)
	if err != nil {
		t.Fatalf("list attributes: %v", err)
	}
	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(attrs))
	}
	for i, a := range attrs {
		if a.Name != names[i] {
			t.Fatalf("position %d: expected %s, got %s", i, names[i], a.Name)
		}
	}
}

func TestCreateAttribute_Validation(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	model, err := c.CreateModel(ctx, "customer", "")
	if err != nil {
		t.Fatalf("create model: %v", err)
	}

	if _, err := c.CreateAttribute(ctx, model.ID, catalog.AttributeInput{Name: "Bad Name", Type: catalog.TypeText}); !errors.Is(err, catalog.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, err := c.CreateAttribute(ctx, model.ID, catalog.AttributeInput{Name: "age", Type: "INTEGER"}); !errors.Is(err, catalog.ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}

	if _, err := c.CreateAttribute(ctx, model.ID, catalog.AttributeInput{Name: "age", Type: catalog.TypeNumber}); err != nil {
		t.Fatalf("create attribute: %v", err)
	}
	if _, err := c.CreateAttribute(ctx, model.ID, catalog.AttributeInput{Name: "age", Type: catalog.TypeNumber}); !errors.Is(err, store.ErrUniqueViolation) {
		t.Fatalf("expected unique violation for duplicate attribute name, got %v", err)
	}
}

func TestSoftDeleteAttribute_StaysResolvableByID(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	model, err := c.CreateModel(ctx, "customer", "")
	if err != nil {
		t.Fatalf("create model: %v", err)
	}
	a, err := c.CreateAttribute(ctx, model.ID, catalog.AttributeInput{Name: "age", Type: catalog.TypeNumber})
	if err != nil {
		t.Fatalf("create attribute: %v", err)
	}

	if err := c.SoftDeleteAttribute(ctx, a.ID); err != nil {
		t.Fatalf("delete attribute: %v", err)
	}

	active, err := c.ActiveAttributeSet(ctx, model.ID)
	if err != nil {
		t.Fatalf("active set: %v", err)
	}
	if _, ok := active["age"]; ok {
		t.Fatal("soft-deleted attribute still in active set")
	}

	got, err := c.GetAttribute(ctx, a.ID)
	if err != nil {
		t.Fatalf("get deleted attribute by id: %v", err)
	}
	if got.Active() {
		t.Fatal("expected Active() == false after soft delete")
	}

	// The name slot is free again.
	if _, err := c.CreateAttribute(ctx, model.ID, catalog.AttributeInput{Name: "age", Type: catalog.TypeText}); err != nil {
		t.Fatalf("reuse freed attribute name: %v", err)
	}
}

func TestRenameAttribute(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	model, err := c.CreateModel(ctx, "customer", "")
	if err != nil {
		t.Fatalf("create model: %v", err)
	}
	a, err := c.CreateAttribute(ctx, model.ID, catalog.AttributeInput{Name: "fullname", Type: catalog.TypeText})
	if err != nil {
		t.Fatalf("create attribute: %v", err)
	}

	result, err := c.RenameAttribute(ctx, a.ID, "name")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if result.OldName != "fullname" || result.NewName != "name" || result.AttributeID != a.ID {
		t.Fatalf("unexpected rename result: %+v", result)
	}

	got, err := c.GetAttribute(ctx, a.ID)
	if err != nil {
		t.Fatalf("get attribute: %v", err)
	}
	if got.Name != "name" {
		t.Fatalf("expected renamed attribute, got %s", got.Name)
	}

	if _, err := c.RenameAttribute(ctx, a.ID, "Not Valid"); !errors.Is(err, catalog.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}
