package http

import (
	"net/http"

	"approval-engine/internal/adapter/middleware"
	"approval-engine/internal/usecase/approval"

	"github.com/labstack/echo/v4"
)

type Routes struct {
	Health    *Handler
	Approvals *ApprovalHandler
	Workflows *WorkflowHandler

	Auth echo.MiddlewareFunc
	// Idempotency guards mutating approval calls; nil disables it.
	Idempotency echo.MiddlewareFunc
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func Register(e *echo.Echo, r Routes) {
	e.GET("/health", r.Health.Health)
	e.GET("/ready", r.Health.Ready)
	if r.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.Metrics))
	}

	api := e.Group("/api/v1", r.Auth)

	writes := []echo.MiddlewareFunc{}
	if r.Idempotency != nil {
		writes = append(writes, r.Idempotency)
	}

	ap := api.Group("/approvals")
	ap.GET("", r.Approvals.List)
	ap.POST("", r.Approvals.Create, writes...)
	ap.GET("/pending", r.Approvals.Pending)
	ap.GET("/submitted", r.Approvals.Submitted)
	ap.GET("/overdue", r.Approvals.Overdue)
	ap.GET("/stats", r.Approvals.Stats)
	ap.POST("/bulk", r.Approvals.Bulk, writes...)
	ap.GET("/:id", r.Approvals.Get)
	ap.GET("/:id/history", r.Approvals.History)
	ap.GET("/:id/history/export", r.Approvals.ExportHistory)
	ap.POST("/:id/actions", r.Approvals.Act, writes...)
	for _, a := range []approval.Action{
		approval.ActionApprove, approval.ActionReject, approval.ActionCancel, approval.ActionEscalate,
		approval.ActionDelegate, approval.ActionComment, approval.ActionAssign,
	} {
		ap.POST("/:id/"+string(a), r.Approvals.ActAs(a), writes...)
	}

	wf := api.Group("/workflows")
	wf.GET("", r.Workflows.List)
	wf.GET("/:id", r.Workflows.Get)
	admin := middleware.RequirePermission(approval.PermAdmin)
	wf.POST("", r.Workflows.Create, admin)
	wf.PUT("/:id", r.Workflows.Update, admin)
	wf.PATCH("/:id/status", r.Workflows.SetStatus, admin)
	wf.DELETE("/:id", r.Workflows.Delete, admin)
}
