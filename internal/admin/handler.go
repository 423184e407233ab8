package admin

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"modelbase-backend/internal/catalog"
	"modelbase-backend/internal/engine"
	"modelbase-backend/internal/instrument"
	"modelbase-backend/internal/store"
)

// Handler exposes schema management: models, attributes, drift reports
// and engine stats.
type Handler struct {
	engine  *engine.Engine
	catalog *catalog.Catalog
	stats   *instrument.Collector
}

func NewHandler(e *engine.Engine, c *catalog.Catalog, stats *instrument.Collector) *Handler {
	return &Handler{engine: e, catalog: c, stats: stats}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/models", h.ListModels)
	admin.Post("/models", h.CreateModel)
	admin.Get("/models/:model", h.GetModel)
	admin.Delete("/models/:model", h.DeleteModel)

	admin.Get("/models/:model/attributes", h.ListAttributes)
	admin.Post("/models/:model/attributes", h.CreateAttribute)
	admin.Post("/attributes/:id/rename", h.RenameAttribute)
	admin.Delete("/attributes/:id", h.DeleteAttribute)

	admin.Get("/models/:model/drift", h.Drift)
	admin.Get("/stats", h.Stats)
}

// --- Model endpoints ---

func (h *Handler) ListModels(c *fiber.Ctx) error {
	models, err := h.catalog.ListModels(c.Context())
	if err != nil {
		return mapCatalogError(err)
	}
	return c.JSON(fiber.Map{"data": models})
}

type createModelBody struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) CreateModel(c *fiber.Ctx) error {
	var body createModelBody
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	model, err := h.catalog.CreateModel(c.Context(), body.Name, body.DisplayName)
	if err != nil {
		return mapCatalogError(err)
	}
	return c.Status(201).JSON(fiber.Map{"data": model})
}

func (h *Handler) GetModel(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	attrs, err := h.catalog.ListAttributes(c.Context(), model.ID, true)
	if err != nil {
		return mapCatalogError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"model": model, "attributes": attrs}})
}

func (h *Handler) DeleteModel(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	if err := h.catalog.SoftDeleteModel(c.Context(), model.ID); err != nil {
		return mapCatalogError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": model.ID}})
}

// --- Attribute endpoints ---

func (h *Handler) ListAttributes(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	includeInactive := c.QueryBool("include_inactive")
	attrs, err := h.catalog.ListAttributes(c.Context(), model.ID, includeInactive)
	if err != nil {
		return mapCatalogError(err)
	}
	return c.JSON(fiber.Map{"data": attrs})
}

func (h *Handler) CreateAttribute(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	var in catalog.AttributeInput
	if err := c.BodyParser(&in); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	attr, err := h.catalog.CreateAttribute(c.Context(), model.ID, in)
	if err != nil {
		return mapCatalogError(err)
	}
	return c.Status(201).JSON(fiber.Map{"data": attr})
}

type renameBody struct {
	Name string `json:"name"`
}

func (h *Handler) RenameAttribute(c *fiber.Ctx) error {
	var body renameBody
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	result, err := h.catalog.RenameAttribute(c.Context(), c.Params("id"), body.Name)
	if err != nil {
		return mapCatalogError(err)
	}
	return c.JSON(fiber.Map{"data": result})
}

func (h *Handler) DeleteAttribute(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.catalog.SoftDeleteAttribute(c.Context(), id); err != nil {
		return mapCatalogError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// --- Diagnostics ---

func (h *Handler) Drift(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	sampleSize := 1
	if s := c.Query("sample_size"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			sampleSize = v
		}
	}
	report, err := h.engine.DiffAttributes(c.Context(), model.ID, sampleSize)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

func (h *Handler) Stats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.stats.Snapshot()})
}

func (h *Handler) resolveModel(c *fiber.Ctx) (*catalog.DataModel, error) {
	name := c.Params("model")
	model, err := h.catalog.GetModelByName(c.Context(), name)
	if err != nil {
		return nil, engine.UnknownModelError(name)
	}
	return model, nil
}

// mapCatalogError translates catalog sentinels into API errors.
func mapCatalogError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return engine.NewAppError("NOT_FOUND", 404, err.Error())
	case errors.Is(err, store.ErrUniqueViolation):
		return engine.ConflictError("Name already exists")
	case errors.Is(err, catalog.ErrInvalidName), errors.Is(err, catalog.ErrInvalidType):
		return engine.NewAppError("INVALID_PAYLOAD", 400, err.Error())
	}
	return err
}
