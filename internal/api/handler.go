package api

import (
	"context"
	"encoding/json"

	"github.com/go-kit/kit/log"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"lwwdoc/internal/document"
	"lwwdoc/internal/quorum"
	"lwwdoc/internal/service"
	"lwwdoc/internal/value"
)

// Syncer replicates a document to its peers on demand.
type Syncer interface {
	Replicate(ctx context.Context, id string) quorum.Result
	Repair(ctx context.Context, id string) (quorum.Result, []string)
}

// Handler serves the document API.
type Handler struct {
	svc    service.Service
	syncer Syncer
	logger log.Logger
}

// NewHandler creates a handler. syncer may be nil, in which case sync
// requests report no replicas.
func NewHandler(svc service.Service, syncer Syncer, logger log.Logger) *Handler {
	return &Handler{
		svc:    svc,
		syncer: syncer,
		logger: log.With(logger, "component", "api"),
	}
}

// RegisterRoutes registers the document routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/docs", h.handleList)
	e.GET("/docs/:id", h.handleExport)
	e.GET("/docs/:id/snapshot", h.handleSnapshot)
	e.POST("/docs/:id/merge", h.handleMerge)
	e.POST("/docs/:id/sync", h.handleSync)
	e.POST("/docs/:id/repair", h.handleRepair)
	e.GET("/docs/:id/fields/:field", h.handleGetField)
	e.PUT("/docs/:id/fields/:field", h.handleSetField)
}

type setFieldBody struct {
	Value     json.RawMessage `json:"value"`
	Timestamp uint64          `json:"timestamp"`
	Writer    string          `json:"writer"`
}

type setFieldResponse struct {
	Applied bool   `json:"applied"`
	Outcome string `json:"outcome"`
}

type syncResponse struct {
	Acks     int    `json:"acks"`
	Required int    `json:"required"`
	Replicas int    `json:"replicas"`
	Error    string `json:"error,omitempty"`
}

type repairResponse struct {
	syncResponse
	Stale []string `json:"stale"`
}

func (h *Handler) handleList(c echo.Context) error {
	return ok(c, echo.Map{"ids": h.svc.IDs(c.Request().Context())})
}

func (h *Handler) handleExport(c echo.Context) error {
	out, found := h.svc.Export(c.Request().Context(), c.Param("id"))
	if !found {
		return notFound(c, "document not found")
	}
	return ok(c, out)
}

func (h *Handler) handleSnapshot(c echo.Context) error {
	doc, found := h.svc.Snapshot(c.Request().Context(), c.Param("id"), 0)
	if !found {
		return notFound(c, "document not found")
	}
	return ok(c, doc)
}

func (h *Handler) handleGetField(c echo.Context) error {
	v, found := h.svc.GetField(c.Request().Context(), c.Param("id"), c.Param("field"))
	if !found {
		return notFound(c, "field not found")
	}
	return ok(c, echo.Map{"value": v})
}

func (h *Handler) handleSetField(c echo.Context) error {
	var body setFieldBody
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return badRequest(c, h.logger, errors.Wrap(err, "decode body"))
	}
	if len(body.Value) == 0 {
		return badRequest(c, h.logger, errors.New("value is required"))
	}

	var v value.Value
	if err := v.UnmarshalJSON(body.Value); err != nil {
		return badRequest(c, h.logger, err)
	}

	outcome, err := h.svc.SetField(c.Request().Context(), service.SetFieldRequest{
		ID:        c.Param("id"),
		Field:     c.Param("field"),
		Value:     v,
		Timestamp: body.Timestamp,
		WriterID:  body.Writer,
	})
	if err != nil {
		return badRequest(c, h.logger, err)
	}

	return ok(c, setFieldResponse{Applied: outcome.Applied(), Outcome: outcome.String()})
}

func (h *Handler) handleMerge(c echo.Context) error {
	id := c.Param("id")

	var doc document.Document
	if err := json.NewDecoder(c.Request().Body).Decode(&doc); err != nil {
		return badRequest(c, h.logger, err)
	}

	in := &doc
	switch doc.ID() {
	case id:
	case "":
		in = document.New(id)
		in.Merge(&doc)
	default:
		return badRequest(c, h.logger, errors.Errorf("snapshot id %q does not match %q", doc.ID(), id))
	}

	res, err := h.svc.Merge(c.Request().Context(), in)
	if err != nil {
		return badRequest(c, h.logger, err)
	}
	if res.Fields == nil {
		res.Fields = []string{}
	}

	return ok(c, echo.Map{
		"applied":    res.Applied,
		"collisions": res.Collisions,
		"fields":     res.Fields,
	})
}

func (h *Handler) handleSync(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if _, found := h.svc.Snapshot(ctx, id, 0); !found {
		return notFound(c, "document not found")
	}
	if h.syncer == nil {
		return ok(c, syncResponse{})
	}

	res := h.syncer.Replicate(ctx, id)
	out := syncResponse{Acks: res.Acks, Required: res.Required, Replicas: res.Replicas}
	if !res.OK() {
		out.Error = res.Err.Error()
		return unavailable(c, h.logger, res.Err, out)
	}
	return ok(c, out)
}

func (h *Handler) handleRepair(c echo.Context) error {
	if h.syncer == nil {
		return ok(c, repairResponse{Stale: []string{}})
	}

	res, stale := h.syncer.Repair(c.Request().Context(), c.Param("id"))
	if stale == nil {
		stale = []string{}
	}
	out := repairResponse{
		syncResponse: syncResponse{Acks: res.Acks, Required: res.Required, Replicas: res.Replicas},
		Stale:        stale,
	}
	if !res.OK() {
		out.Error = res.Err.Error()
		return unavailable(c, h.logger, res.Err, out)
	}
	return ok(c, out)
}
