package engine

import (
	"fmt"
	"strconv"
	"strings"

	"modelbase-backend/internal/catalog"
	"modelbase-backend/internal/store"
)

// FilterClause targets one attribute by name with an operator. Names and
// operators are whitelisted against the live catalog before any SQL is
// compiled; values only ever travel as bind parameters.
type FilterClause struct {
	Attribute string `json:"attribute"`
	Operator  string `json:"operator"`
	Value     any    `json:"value"`
}

// SortSpec orders the page by a system column (id, created_at, updated_at)
// or by an attribute name. The zero value means created_at DESC.
type SortSpec struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

type PageSpec struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Offset returns the LIMIT/OFFSET offset for the page.
func (p PageSpec) Offset() int {
	return (p.Page - 1) * p.Size
}

var validOperators = map[string]bool{
	"eq": true, "neq": true, "contains": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
	"in": true,
}

var systemSortColumns = map[string]bool{
	"id": true, "created_at": true, "updated_at": true,
}

// queryPlan is a validated list request: every filter and sort name has
// been resolved against the model's active attribute set.
type queryPlan struct {
	modelID string
	attrs   map[string]*catalog.Attribute
	filters []FilterClause
	sort    SortSpec
	page    PageSpec
}

// BuildAggregateSQL compiles the page query: one row per active record with
// its values folded into a JSON object keyed by attribute name. Records
// without any value rows still produce a row (the object aggregates to
// NULL, which decodes as an empty map).
func BuildAggregateSQL(d store.Dialect, plan *queryPlan) (string, []any, error) {
	pb := d.NewParamBuilder()

	where, err := buildWhere(d, pb, plan)
	if err != nil {
		return "", nil, err
	}

	valuesExpr := d.JSONObjectAggExpr("a.name", "v.value", "a.id IS NOT NULL")

	sql := fmt.Sprintf(`SELECT r.id, r.created_at, r.updated_at, %s AS record_values
FROM data_records r
LEFT JOIN data_record_values v ON v.data_record_id = r.id
LEFT JOIN data_model_attributes a ON a.id = v.attribute_id AND a.deleted_at IS NULL
WHERE %s
GROUP BY r.id, r.created_at, r.updated_at`,
		valuesExpr, strings.Join(where, " AND "))

	order, err := buildOrder(d, pb, plan)
	if err != nil {
		return "", nil, err
	}
	sql += " ORDER BY " + order

	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(plan.page.Size), pb.Add(plan.page.Offset()))

	return sql, pb.Params(), nil
}

// BuildCountSQL compiles the total count with the same predicates but no
// aggregation, so it stays cheap and independently retryable.
func BuildCountSQL(d store.Dialect, plan *queryPlan) (string, []any, error) {
	pb := d.NewParamBuilder()

	where, err := buildWhere(d, pb, plan)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT COUNT(DISTINCT r.id) AS total FROM data_records r WHERE %s",
		strings.Join(where, " AND "))
	return sql, pb.Params(), nil
}

func buildWhere(d store.Dialect, pb store.ParamBuilder, plan *queryPlan) ([]string, error) {
	where := []string{
		fmt.Sprintf("r.data_model_id = %s", pb.Add(plan.modelID)),
		fmt.Sprintf("r.is_active = %s", pb.Add(true)),
		"r.deleted_at IS NULL",
	}

	for _, f := range plan.filters {
		clause, err := buildFilterClause(d, pb, plan, f)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
	}
	return where, nil
}

// buildFilterClause translates one filter into an EXISTS predicate against
// the value row for the named attribute.
func buildFilterClause(d store.Dialect, pb store.ParamBuilder, plan *queryPlan, f FilterClause) (string, error) {
	attr, ok := plan.attrs[f.Attribute]
	if !ok {
		return "", InvalidFilterError(fmt.Sprintf("Unknown filter attribute: %s", f.Attribute))
	}
	op := f.Operator
	if op == "" {
		op = "eq"
	}
	if !validOperators[op] {
		return "", InvalidFilterError(fmt.Sprintf("Unknown filter operator: %s", f.Operator))
	}

	var pred string
	switch op {
	case "eq", "neq":
		raw, err := encodeFilterValue(attr, f.Value)
		if err != nil {
			return "", err
		}
		cmp := "="
		if op == "neq" {
			cmp = "<>"
		}
		pred = fmt.Sprintf("fv.value %s %s", cmp, pb.Add(raw))

	case "contains":
		raw, err := encodeFilterValue(attr, f.Value)
		if err != nil {
			return "", err
		}
		pred = fmt.Sprintf("fv.value LIKE %s", pb.Add("%"+raw+"%"))

	case "gt", "gte", "lt", "lte":
		cmp := map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}[op]
		if attr.Type == catalog.TypeNumber {
			n, err := filterNumber(attr, f.Value)
			if err != nil {
				return "", err
			}
			pred = fmt.Sprintf("%s %s %s", d.NumericExpr("fv.value"), cmp, pb.Add(n))
		} else {
			// DATE values are stored in lexicographically ordered form, so
			// text comparison is chronological; everything else compares as text.
			raw, err := encodeFilterValue(attr, f.Value)
			if err != nil {
				return "", err
			}
			pred = fmt.Sprintf("fv.value %s %s", cmp, pb.Add(raw))
		}

	case "in":
		items, err := filterList(attr, f.Value)
		if err != nil {
			return "", err
		}
		pred = d.InExpr("fv.value", pb, items)
	}

	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM data_record_values fv WHERE fv.data_record_id = r.id AND fv.attribute_id = %s AND %s)",
		pb.Add(attr.ID), pred), nil
}

func buildOrder(d store.Dialect, pb store.ParamBuilder, plan *queryPlan) (string, error) {
	// id tie-break keeps pagination stable when records share a timestamp
	// or are inserted between page fetches.
	const defaultOrder = "r.created_at DESC, r.id ASC"

	if plan.sort.Field == "" {
		return defaultOrder, nil
	}

	dir := "ASC"
	if plan.sort.Desc {
		dir = "DESC"
	}

	if systemSortColumns[plan.sort.Field] {
		return fmt.Sprintf("r.%s %s, r.id ASC", plan.sort.Field, dir), nil
	}

	attr, ok := plan.attrs[plan.sort.Field]
	if !ok {
		return "", InvalidFilterError(fmt.Sprintf("Unknown sort field: %s", plan.sort.Field))
	}

	sub := fmt.Sprintf("(SELECT sv.value FROM data_record_values sv WHERE sv.data_record_id = r.id AND sv.attribute_id = %s)", pb.Add(attr.ID))
	if attr.Type == catalog.TypeNumber {
		sub = d.NumericExpr(sub)
	}
	return fmt.Sprintf("%s %s, %s", sub, dir, defaultOrder), nil
}

// encodeFilterValue renders a filter operand in the stored text form so it
// compares against value rows the same way writes produced them.
func encodeFilterValue(attr *catalog.Attribute, v any) (string, error) {
	raw, err := catalog.Encode(attr, v)
	if err != nil {
		return "", InvalidFilterError(fmt.Sprintf("Invalid filter value for %s: %v", attr.Name, err))
	}
	return raw, nil
}

func filterNumber(attr *catalog.Attribute, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, InvalidFilterError(fmt.Sprintf("Filter value for %s must be numeric", attr.Name))
}

func filterList(attr *catalog.Attribute, v any) ([]string, error) {
	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		for _, s := range list {
			items = append(items, s)
		}
	case string:
		// Comma-separated form from query params.
		for _, part := range strings.Split(list, ",") {
			items = append(items, strings.TrimSpace(part))
		}
	default:
		return nil, InvalidFilterError(fmt.Sprintf("Filter value for %s must be a list", attr.Name))
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		raw, err := encodeFilterValue(attr, item)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}
