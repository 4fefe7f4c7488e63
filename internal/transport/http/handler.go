package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/pipeline"
	"github.com/richardliu001/identity-service/internal/service"
	"go.uber.org/zap"
)

// Ingester appends raw events.
type Ingester interface {
	Ingest(ctx context.Context, entityType string, events []model.Event) ([]eventstore.Result, error)
}

// Dispatcher runs named commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, entityType, command string, req service.Request) ([]eventstore.Result, error)
}

// DocReader reads materialized views.
type DocReader interface {
	GetMaterialized(ctx context.Context, entityType, id string) (*model.MaterializedDocument, error)
	ListMaterialized(ctx context.Context, entityType string, limit int) ([]model.MaterializedDocument, error)
}

// Waiter blocks until issued events are processed.
type Waiter interface {
	WaitUntilProcessed(ctx context.Context, issue pipeline.IssueFunc) ([]eventstore.Result, error)
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Handler serves the ingestion, command and read API. waiter may be nil, in
// which case ?wait=true is rejected.
type Handler struct {
	ingest   Ingester
	commands Dispatcher
	docs     DocReader
	waiter   Waiter
	log      *zap.SugaredLogger
}

func NewHandler(ing Ingester, cmds Dispatcher, docs DocReader, w Waiter, logger *zap.SugaredLogger) *Handler {
	return &Handler{ingest: ing, commands: cmds, docs: docs, waiter: w, log: logger}
}

func RegisterHandlers(r gin.IRouter, h *Handler) {
	v1 := r.Group("/v1")
	{
		v1.POST("/events/:entityType", h.pushEvents)
		v1.POST("/commands/:entityType/:command", h.runCommand)
		v1.GET("/docs/:entityType", h.listDocs)
		v1.GET("/docs/:entityType/:id", h.getDoc)
	}
}

func (h *Handler) pushEvents(c *gin.Context) {
	entityType := c.Param("entityType")
	var events []model.Event
	if err := c.ShouldBindJSON(&events); err != nil {
		h.fail(c, apperr.Invalid("body", "%v", err))
		return
	}
	h.respond(c, func(ctx context.Context) ([]eventstore.Result, error) {
		return h.ingest.Ingest(ctx, entityType, events)
	})
}

func (h *Handler) runCommand(c *gin.Context) {
	entityType, command := c.Param("entityType"), c.Param("command")
	var req service.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Invalid("body", "%v", err))
		return
	}
	h.respond(c, func(ctx context.Context) ([]eventstore.Result, error) {
		return h.commands.Dispatch(ctx, entityType, command, req)
	})
}

// respond runs issue, waiting for propagation when the request asks for it.
func (h *Handler) respond(c *gin.Context, issue pipeline.IssueFunc) {
	wait, _ := strconv.ParseBool(c.Query("wait"))
	if wait && h.waiter == nil {
		h.fail(c, apperr.Invalid("wait", "waiting is not available on this server"))
		return
	}
	var (
		results []eventstore.Result
		err     error
	)
	if wait {
		results, err = h.waiter.WaitUntilProcessed(c.Request.Context(), issue)
	} else {
		results, err = issue(c.Request.Context())
	}
	var te *apperr.ProcessingTimeoutError
	if errors.As(err, &te) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": te.Error(), "pending": te.Pending, "results": results})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, results)
}

func (h *Handler) getDoc(c *gin.Context) {
	entityType := c.Param("entityType")
	if !model.IsEntityType(entityType) {
		h.fail(c, apperr.Invalid("entityType", "unknown entity type %q", entityType))
		return
	}
	doc, err := h.docs.GetMaterialized(c.Request.Context(), entityType, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc.Document)
}

func (h *Handler) listDocs(c *gin.Context) {
	entityType := c.Param("entityType")
	if !model.IsEntityType(entityType) {
		h.fail(c, apperr.Invalid("entityType", "unknown entity type %q", entityType))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		h.fail(c, apperr.Invalid("limit", "must be a positive integer"))
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	docs, err := h.docs.ListMaterialized(c.Request.Context(), entityType, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Document)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) fail(c *gin.Context, err error) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ve)
	case errors.Is(err, apperr.ErrDuplicateKey):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.IsTransient(err):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		h.log.Errorw("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
