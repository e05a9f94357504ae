package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"approval-engine/internal/adapter/export"
	"approval-engine/internal/adapter/middleware"
	"approval-engine/internal/adapter/presenter"
	domainApproval "approval-engine/internal/domain/approval"
	"approval-engine/internal/usecase/approval"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

type ApprovalHandler struct {
	uc    *approval.Usecase
	view  *presenter.Presenter
	names export.Names
	log   *zap.Logger
}

func NewApprovalHandler(uc *approval.Usecase, view *presenter.Presenter, names export.Names, log *zap.Logger) *ApprovalHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ApprovalHandler{uc: uc, view: view, names: names, log: log}
}

type actRequest struct {
	Action          approval.Action `json:"action" validate:"required,approval_action"`
	Comments        string          `json:"comments" validate:"max=2000"`
	RejectionReason string          `json:"rejection_reason" validate:"max=2000"`
	TargetUserID    string          `json:"target_user_id" validate:"max=64"`
	Version         *uint64         `json:"version"`
}

type bulkRequest struct {
	ApprovalIDs     []string        `json:"approval_ids" validate:"required,min=1,max=100,dive,hex32"`
	Action          approval.Action `json:"action" validate:"required,oneof=approve reject"`
	Comments        string          `json:"comments" validate:"max=2000"`
	RejectionReason string          `json:"rejection_reason" validate:"max=2000"`
}

type pageMeta struct {
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

type pageResponse struct {
	Data []presenter.View `json:"data"`
	Meta pageMeta         `json:"meta"`
}

type historyResponse struct {
	ApprovalID string                  `json:"approval_id"`
	History    []presenter.HistoryView `json:"history"`
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing actor"})
}

func (h *ApprovalHandler) Create(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req approval.CreateInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	a, err := h.uc.Create(c.Request().Context(), actor, req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, h.view.ToView(a))
}

// Get honours ?include=history,workflow,approvable.
func (h *ApprovalHandler) Get(c echo.Context) error {
	id := c.Param("id")
	var inc approval.Include
	for _, part := range strings.Split(c.QueryParam("include"), ",") {
		switch strings.TrimSpace(part) {
		case "history":
			inc.History = true
		case "workflow":
			inc.Workflow = true
		case "approvable":
			inc.Approvable = true
		}
	}
	b, err := h.uc.Load(c.Request().Context(), id, inc)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, h.view.Bundle(b))
}

// Act applies the action named in the body.
func (h *ApprovalHandler) Act(c echo.Context) error {
	return h.act(c, "")
}

// ActAs binds a route to one fixed action (POST /approvals/:id/approve ...).
func (h *ApprovalHandler) ActAs(action approval.Action) echo.HandlerFunc {
	return func(c echo.Context) error { return h.act(c, action) }
}

func (h *ApprovalHandler) act(c echo.Context, fixed approval.Action) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req actRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if fixed != "" {
		req.Action = fixed
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	a, err := h.uc.Act(c.Request().Context(), c.Param("id"), actor, approval.ActInput{
		Action:          req.Action,
		Comments:        req.Comments,
		RejectionReason: req.RejectionReason,
		TargetUserID:    req.TargetUserID,
		Version:         req.Version,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, h.view.ToView(a))
}

// Bulk reports per-item outcomes; one failure never fails the batch.
func (h *ApprovalHandler) Bulk(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	res, err := h.uc.BulkAct(c.Request().Context(), actor, req.ApprovalIDs, approval.ActInput{
		Action:          req.Action,
		Comments:        req.Comments,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": res})
}

func (h *ApprovalHandler) List(c echo.Context) error {
	f, meta, bad := parseFilter(c)
	if bad != nil {
		return c.JSON(http.StatusUnprocessableEntity, bad)
	}
	page, err := h.uc.List(c.Request().Context(), f)
	return h.page(c, page, meta, err)
}

func (h *ApprovalHandler) Pending(c echo.Context) error {
	return h.queue(c, h.uc.PendingFor)
}

func (h *ApprovalHandler) Submitted(c echo.Context) error {
	return h.queue(c, h.uc.SubmittedBy)
}

func (h *ApprovalHandler) Overdue(c echo.Context) error {
	return h.queue(c, h.uc.OverdueFor)
}

type queueFunc func(ctx context.Context, actorID string, f domainApproval.Filter) (*approval.Page, error)

func (h *ApprovalHandler) queue(c echo.Context, fetch queueFunc) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	f, meta, bad := parseFilter(c)
	if bad != nil {
		return c.JSON(http.StatusUnprocessableEntity, bad)
	}
	page, err := fetch(c.Request().Context(), actor.ID, f)
	return h.page(c, page, meta, err)
}

func (h *ApprovalHandler) page(c echo.Context, page *approval.Page, meta pageMeta, err error) error {
	if err != nil {
		return respondError(c, h.log, err)
	}
	meta.Total = page.Total
	return c.JSON(http.StatusOK, pageResponse{Data: h.view.List(page.Items), Meta: meta})
}

func (h *ApprovalHandler) Stats(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	s, err := h.uc.Stats(c.Request().Context(), actor.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *ApprovalHandler) History(c echo.Context) error {
	a, rows, err := h.uc.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, historyResponse{ApprovalID: a.ApprovalID, History: h.view.History(rows)})
}

func (h *ApprovalHandler) ExportHistory(c echo.Context) error {
	a, rows, err := h.uc.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	raw, name, err := export.History(a, rows, h.names)
	if err != nil {
		return respondError(c, h.log, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, export.MIMEType, raw)
}

// parseFilter reads list filters and pagination from the query string.
func parseFilter(c echo.Context) (domainApproval.Filter, pageMeta, *ErrorResponse) {
	var (
		f                    domainApproval.Filter
		statuses, priorities string
		from, to             time.Time
		meta                 = pageMeta{Page: 1, PerPage: defaultPerPage}
	)
	err := echo.QueryParamsBinder(c).
		String("module_name", &f.ModuleName).
		String("approval_type", &f.ApprovalType).
		String("approvable_type", &f.ApprovableType).
		String("approvable_id", &f.ApprovableID).
		String("status", &statuses).
		String("priority", &priorities).
		String("requested_by", &f.RequestedBy).
		String("approver_id", &f.ApproverID).
		Time("from", &from, time.RFC3339).
		Time("to", &to, time.RFC3339).
		String("order_by", &f.OrderBy).
		Bool("desc", &f.Desc).
		Int("page", &meta.Page).
		Int("per_page", &meta.PerPage).
		BindError()
	if err != nil {
		return f, meta, &ErrorResponse{Error: "invalid query", Details: []FieldError{{Field: "_", Message: err.Error()}}}
	}

	var details []FieldError
	for _, s := range splitQuery(statuses) {
		st := domainApproval.Status(s)
		if !st.Valid() {
			details = append(details, FieldError{Field: "status", Message: "unknown status " + s})
			continue
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, s := range splitQuery(priorities) {
		p := domainApproval.Priority(s)
		if !p.Valid() {
			details = append(details, FieldError{Field: "priority", Message: "unknown priority " + s})
			continue
		}
		f.Priorities = append(f.Priorities, p)
	}
	if raw := c.QueryParam("overdue"); raw != "" {
		b, perr := strconv.ParseBool(raw)
		if perr != nil {
			details = append(details, FieldError{Field: "overdue", Message: "must be a boolean"})
		} else {
			f.Overdue = &b
		}
	}
	if len(details) > 0 {
		return f, meta, &ErrorResponse{Error: "invalid query", Details: details}
	}

	if !from.IsZero() {
		f.From = &from
	}
	if !to.IsZero() {
		f.To = &to
	}
	if meta.Page < 1 {
		meta.Page = 1
	}
	if meta.PerPage < 1 || meta.PerPage > maxPerPage {
		meta.PerPage = defaultPerPage
	}
	f.Limit = meta.PerPage
	f.Offset = (meta.Page - 1) * meta.PerPage
	return f, meta, nil
}

func splitQuery(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
