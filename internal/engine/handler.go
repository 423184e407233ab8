package engine

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"modelbase-backend/internal/catalog"
)

// Handler exposes the data-plane routes. All semantics live in the facade;
// handlers only translate HTTP framing.
type Handler struct {
	engine *Engine
}

func NewHandler(e *Engine) *Handler {
	return &Handler{engine: e}
}

// RegisterDataRoutes wires the record routes under /api/:model.
func RegisterDataRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	group := app.Group("/api/:model", middleware...)
	group.Get("/records", h.List)
	group.Get("/schema", h.Schema)
	group.Post("/records", h.Upsert)
	group.Put("/records/:id", h.UpsertByID)
	group.Delete("/records/:id", h.Delete)
}

// List handles GET /api/:model/records
func (h *Handler) List(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}

	filters, sort, page, err := parseListQuery(c)
	if err != nil {
		return err
	}

	result, err := h.engine.ListRecords(c.Context(), model.ID, filters, sort, page)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": result.Records,
		"meta": fiber.Map{
			"page":     result.Page.Page,
			"per_page": result.Page.Size,
			"total":    result.Total,
			"warnings": result.Warnings,
		},
	})
}

// Schema handles GET /api/:model/schema
func (h *Handler) Schema(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	attrs, err := h.engine.GetAttributeSchema(c.Context(), model.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": attrs})
}

type upsertBody struct {
	RecordID string         `json:"record_id"`
	Values   map[string]any `json:"values"`
}

// Upsert handles POST /api/:model/records
func (h *Handler) Upsert(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}

	var body upsertBody
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if body.Values == nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Missing values")
	}

	recordID, err := h.engine.UpsertRecordValues(c.Context(), model.ID, body.RecordID, body.Values)
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if body.RecordID == "" {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": fiber.Map{"id": recordID}})
}

// UpsertByID handles PUT /api/:model/records/:id
func (h *Handler) UpsertByID(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}

	var body upsertBody
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if body.Values == nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Missing values")
	}

	recordID, err := h.engine.UpsertRecordValues(c.Context(), model.ID, c.Params("id"), body.Values)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": recordID}})
}

// Delete handles DELETE /api/:model/records/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	if err := h.engine.DeleteRecord(c.Context(), model.ID, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

func (h *Handler) resolveModel(c *fiber.Ctx) (*catalog.DataModel, error) {
	name := c.Params("model")
	model, err := h.engine.Catalog().GetModelByName(c.Context(), name)
	if err != nil {
		return nil, UnknownModelError(name)
	}
	return model, nil
}

// parseListQuery parses filter[attr.op]=v, sort=-field, page and per_page.
func parseListQuery(c *fiber.Ctx) ([]FilterClause, SortSpec, PageSpec, error) {
	var filters []FilterClause
	for key, val := range c.Queries() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		inner := key[7 : len(key)-1]
		attrName, op := parseFilterKey(inner)
		filters = append(filters, FilterClause{Attribute: attrName, Operator: op, Value: val})
	}

	var sort SortSpec
	if s := strings.TrimSpace(c.Query("sort")); s != "" {
		if strings.HasPrefix(s, "-") {
			sort = SortSpec{Field: s[1:], Desc: true}
		} else {
			sort = SortSpec{Field: s}
		}
	}

	page := PageSpec{Page: 1}
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page.Page = v
		}
	}
	if pp := c.Query("per_page"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 {
			page.Size = v
		}
	}

	return filters, sort, page, nil
}

// parseFilterKey splits "age.gte" into ("age", "gte") or "status" into ("status", "eq").
func parseFilterKey(key string) (string, string) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, "eq"
}
