package http

import (
	"net/http"
	"strconv"
	"time"

	"approval-engine/internal/domain/workflow"
	workflowUC "approval-engine/internal/usecase/workflow"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// WorkflowHandler is the admin surface of the workflow definition store.
type WorkflowHandler struct {
	store *workflowUC.Store
	log   *zap.Logger
}

func NewWorkflowHandler(store *workflowUC.Store, log *zap.Logger) *WorkflowHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkflowHandler{store: store, log: log}
}

type workflowResponse struct {
	workflowUC.Definition
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type statusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

func toWorkflowResponse(w *workflow.Workflow) workflowResponse {
	return workflowResponse{
		ID:         w.ID,
		Definition: workflowUC.DefinitionOf(w),
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
}

func workflowID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *WorkflowHandler) List(c echo.Context) error {
	list, err := h.store.List(c.Request().Context(), c.QueryParam("module_name"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]workflowResponse, 0, len(list))
	for i := range list {
		out = append(out, toWorkflowResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}

func (h *WorkflowHandler) Get(c echo.Context) error {
	id, ok := workflowID(c)
	if !ok {
		return badRequest(c, "invalid workflow id")
	}
	w, err := h.store.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toWorkflowResponse(w))
}

func (h *WorkflowHandler) Create(c echo.Context) error {
	var d workflowUC.Definition
	if err := c.Bind(&d); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&d); err != nil {
		return validationFailed(c, err)
	}
	w, err := h.store.Create(c.Request().Context(), d)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toWorkflowResponse(w))
}

func (h *WorkflowHandler) Update(c echo.Context) error {
	id, ok := workflowID(c)
	if !ok {
		return badRequest(c, "invalid workflow id")
	}
	var d workflowUC.Definition
	if err := c.Bind(&d); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&d); err != nil {
		return validationFailed(c, err)
	}
	w, err := h.store.Update(c.Request().Context(), id, d)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toWorkflowResponse(w))
}

// SetStatus activates or deactivates a workflow. Approvals already bound to
// it keep running.
func (h *WorkflowHandler) SetStatus(c echo.Context) error {
	id, ok := workflowID(c)
	if !ok {
		return badRequest(c, "invalid workflow id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	w, err := h.store.SetActive(c.Request().Context(), id, *req.IsActive)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toWorkflowResponse(w))
}

func (h *WorkflowHandler) Delete(c echo.Context) error {
	id, ok := workflowID(c)
	if !ok {
		return badRequest(c, "invalid workflow id")
	}
	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
