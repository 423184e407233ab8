package engine

import (
	"errors"
	"strings"
	"testing"

	"modelbase-backend/internal/catalog"
	"modelbase-backend/internal/store"
)

func testPlan(filters []FilterClause, sort SortSpec) *queryPlan {
	return &queryPlan{
		modelID: "model-1",
		attrs: map[string]*catalog.Attribute{
			"name":   {ID: "attr-name", Name: "name", Type: catalog.TypeText},
			"age":    {ID: "attr-age", Name: "age", Type: catalog.TypeNumber},
			"active": {ID: "attr-active", Name: "active", Type: catalog.TypeBoolean},
		},
		filters: filters,
		sort:    sort,
		page:    PageSpec{Page: 2, Size: 10},
	}
}

func TestBuildAggregateSQL_Shape(t *testing.T) {
	d := store.NewDialect("postgres")
	sql, params, err := BuildAggregateSQL(d, testPlan(nil, SortSpec{}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, want := range []string{
		"jsonb_object_agg(a.name, v.value) FILTER (WHERE a.id IS NOT NULL) AS record_values",
		"LEFT JOIN data_record_values v ON v.data_record_id = r.id",
		"a.deleted_at IS NULL",
		"r.is_active = $2",
		"r.deleted_at IS NULL",
		"GROUP BY r.id, r.created_at, r.updated_at",
		"ORDER BY r.created_at DESC, r.id ASC",
		"LIMIT $3 OFFSET $4",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("missing %q in:\n%s", want, sql)
		}
	}

	// model id, is_active, limit, offset
	if len(params) != 4 {
		t.Fatalf("expected 4 params, got %d: %v", len(params), params)
	}
	if params[0] != "model-1" || params[2] != 10 || params[3] != 10 {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestBuildCountSQL_NoAggregation(t *testing.T) {
	d := store.NewDialect("sqlite")
	sql, params, err := BuildCountSQL(d, testPlan(nil, SortSpec{}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(sql, "COUNT(DISTINCT r.id) AS total") {
		t.Fatalf("missing count in:\n%s", sql)
	}
	if strings.Contains(sql, "LIMIT") || strings.Contains(sql, "json_group_object") {
		t.Fatalf("count query must not paginate or aggregate values:\n%s", sql)
	}
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %v", params)
	}
}

func TestBuildFilter_EqualsAsExists(t *testing.T) {
	d := store.NewDialect("postgres")
	filters := []FilterClause{{Attribute: "name", Operator: "eq", Value: "Ada"}}
	sql, params, err := BuildAggregateSQL(d, testPlan(filters, SortSpec{}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(sql, "EXISTS (SELECT 1 FROM data_record_values fv WHERE fv.data_record_id = r.id AND fv.attribute_id = $4 AND fv.value = $3)") {
		t.Fatalf("missing EXISTS predicate in:\n%s", sql)
	}
	found := false
	for _, p := range params {
		if p == "Ada" {
			found = true
		}
	}
	if !found {
		t.Fatalf("filter value must travel as a bind param: %v", params)
	}
}

func TestBuildFilter_ValueNeverInSQL(t *testing.T) {
	d := store.NewDialect("postgres")
	hostile := "x'; DROP TABLE data_records; --"
	filters := []FilterClause{{Attribute: "name", Operator: "eq", Value: hostile}}
	sql, params, err := BuildAggregateSQL(d, testPlan(filters, SortSpec{}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(sql, "DROP TABLE") {
		t.Fatalf("filter value leaked into SQL text:\n%s", sql)
	}
	found := false
	for _, p := range params {
		if p == hostile {
			found = true
		}
	}
	if !found {
		t.Fatalf("hostile value must still be bound: %v", params)
	}
}

func TestBuildFilter_NumericComparison(t *testing.T) {
	d := store.NewDialect("postgres")
	filters := []FilterClause{{Attribute: "age", Operator: "gt", Value: 30}}
	sql, _, err := BuildAggregateSQL(d, testPlan(filters, SortSpec{}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// Guarded cast so malformed historical text cannot abort the query.
	if !strings.Contains(sql, "THEN (fv.value)::numeric END >") {
		t.Fatalf("numeric filter must use the guarded cast:\n%s", sql)
	}
}

func TestBuildFilter_UnknownAttribute(t *testing.T) {
	d := store.NewDialect("sqlite")
	filters := []FilterClause{{Attribute: "salary", Operator: "eq", Value: "1"}}
	_, _, err := BuildAggregateSQL(d, testPlan(filters, SortSpec{}))

	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "INVALID_FILTER" {
		t.Fatalf("expected INVALID_FILTER, got %v", err)
	}
}

func TestBuildFilter_UnknownOperator(t *testing.T) {
	d := store.NewDialect("sqlite")
	filters := []FilterClause{{Attribute: "name", Operator: "regex", Value: ".*"}}
	_, _, err := BuildAggregateSQL(d, testPlan(filters, SortSpec{}))

	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "INVALID_FILTER" {
		t.Fatalf("expected INVALID_FILTER, got %v", err)
	}
}

func TestBuildFilter_InOperator(t *testing.T) {
	pg := store.NewDialect("postgres")
	filters := []FilterClause{{Attribute: "name", Operator: "in", Value: "ada,grace"}}
	sql, _, err := BuildAggregateSQL(pg, testPlan(filters, SortSpec{}))
	if err != nil {
		t.Fatalf("build pg: %v", err)
	}
	if !strings.Contains(sql, "fv.value = ANY(") {
		t.Fatalf("expected ANY() for postgres IN:\n%s", sql)
	}

	lite := store.NewDialect("sqlite")
	sql, params, err := BuildAggregateSQL(lite, testPlan(filters, SortSpec{}))
	if err != nil {
		t.Fatalf("build sqlite: %v", err)
	}
	if !strings.Contains(sql, "fv.value IN (") {
		t.Fatalf("expected IN list for sqlite:\n%s", sql)
	}
	found := 0
	for _, p := range params {
		if p == "ada" || p == "grace" {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("expected both list items bound, got %v", params)
	}
}

func TestBuildOrder_SystemColumn(t *testing.T) {
	d := store.NewDialect("sqlite")
	sql, _, err := BuildAggregateSQL(d, testPlan(nil, SortSpec{Field: "updated_at", Desc: true}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(sql, "ORDER BY r.updated_at DESC, r.id ASC") {
		t.Fatalf("missing system sort with tie-break:\n%s", sql)
	}
}

func TestBuildOrder_AttributeSort(t *testing.T) {
	d := store.NewDialect("sqlite")
	sql, _, err := BuildAggregateSQL(d, testPlan(nil, SortSpec{Field: "age"}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(sql, "CAST((SELECT sv.value FROM data_record_values sv") {
		t.Fatalf("numeric attribute sort must cast the subquery:\n%s", sql)
	}
	if !strings.Contains(sql, "r.created_at DESC, r.id ASC") {
		t.Fatalf("attribute sort must keep the stable tie-break:\n%s", sql)
	}
}

func TestBuildOrder_UnknownField(t *testing.T) {
	d := store.NewDialect("sqlite")
	_, _, err := BuildAggregateSQL(d, testPlan(nil, SortSpec{Field: "salary"}))

	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "INVALID_FILTER" {
		t.Fatalf("expected INVALID_FILTER for unknown sort field, got %v", err)
	}
}

func TestPageSpecOffset(t *testing.T) {
	if (PageSpec{Page: 1, Size: 25}).Offset() != 0 {
		t.Fatal("page 1 must start at offset 0")
	}
	if (PageSpec{Page: 3, Size: 10}).Offset() != 20 {
		t.Fatal("page 3 size 10 must start at offset 20")
	}
}

func TestParseFilterKey(t *testing.T) {
	if a, op := parseFilterKey("age.gte"); a != "age" || op != "gte" {
		t.Fatalf("got %s/%s", a, op)
	}
	if a, op := parseFilterKey("status"); a != "status" || op != "eq" {
		t.Fatalf("got %s/%s", a, op)
	}
}
