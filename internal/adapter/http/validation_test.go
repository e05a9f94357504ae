package http

import (
	"errors"
	"strings"
	"testing"

	"approval-engine/internal/usecase/approval"
	workflowUC "approval-engine/internal/usecase/workflow"
)

func hexID(c string) string { return strings.Repeat(c, 32) }

func TestBulkRequestValidation(t *testing.T) {
	cv := NewValidator()

	ok := bulkRequest{ApprovalIDs: []string{hexID("a"), hexID("0")}, Action: approval.ActionApprove}
	if err := cv.Validate(ok); err != nil {
		t.Fatalf("expected valid bulk request, got %v", err)
	}

	for _, tc := range []struct {
		name  string
		req   bulkRequest
		field string
		msg   string
	}{
		{"no ids", bulkRequest{Action: approval.ActionApprove}, "approval_ids", "is required"},
		{"empty ids", bulkRequest{ApprovalIDs: []string{}, Action: approval.ActionApprove}, "approval_ids", "at least 1"},
		{"uppercase id", bulkRequest{ApprovalIDs: []string{hexID("A")}, Action: approval.ActionReject}, "approval_ids[0]", "32-char lowercase hex"},
		{"short id", bulkRequest{ApprovalIDs: []string{hexID("a"), "deadbeef"}, Action: approval.ActionReject}, "approval_ids[1]", "32-char lowercase hex"},
		{"non-hex id", bulkRequest{ApprovalIDs: []string{hexID("g")}, Action: approval.ActionReject}, "approval_ids[0]", "32-char lowercase hex"},
		{"bulk cancel", bulkRequest{ApprovalIDs: []string{hexID("b")}, Action: approval.ActionCancel}, "action", "must be one of approve reject"},
		{"long reason", bulkRequest{ApprovalIDs: []string{hexID("b")}, Action: approval.ActionReject, RejectionReason: strings.Repeat("x", 2001)}, "rejection_reason", "at most 2000"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := cv.Validate(tc.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if fe := ToFieldErrors(err); !containsFieldMsg(fe, tc.field, tc.msg) {
				t.Fatalf("want %s %q, got %+v", tc.field, tc.msg, fe)
			}
		})
	}
}

func TestActRequestValidation(t *testing.T) {
	cv := NewValidator()

	for _, a := range []string{"approve", "reject", "cancel", "escalate", "delegate", "comment", "assign"} {
		if err := cv.Validate(actRequest{Action: approval.Action(a)}); err != nil {
			t.Fatalf("expected %q to be valid, got %v", a, err)
		}
	}
	for _, a := range []string{"APPROVE", "submit", "level_completed"} {
		err := cv.Validate(actRequest{Action: approval.Action(a)})
		if err == nil {
			t.Fatalf("expected error for %q", a)
		}
		if fe := ToFieldErrors(err); !containsFieldMsg(fe, "action", "must be one of approve, reject") {
			t.Fatalf("unexpected mapping for %q: %+v", a, fe)
		}
	}
	if fe := ToFieldErrors(cv.Validate(actRequest{})); !containsFieldMsg(fe, "action", "is required") {
		t.Fatalf("missing action: %+v", fe)
	}
	err := cv.Validate(actRequest{Action: approval.ActionDelegate, TargetUserID: strings.Repeat("u", 65)})
	if fe := ToFieldErrors(err); !containsFieldMsg(fe, "target_user_id", "at most 64") {
		t.Fatalf("long target: %+v", fe)
	}
}

func TestDefinitionValidation(t *testing.T) {
	cv := NewValidator()
	valid := func() workflowUC.Definition {
		return workflowUC.Definition{
			WorkflowName: "Purchase",
			WorkflowCode: "PR_STANDARD",
			ModuleName:   "procurement",
			ApprovalType: "purchase_request",
			WorkflowType: "sequential",
			Levels:       []workflowUC.LevelDefinition{{LevelNumber: 1, LevelName: "Manager"}},
		}
	}
	if err := cv.Validate(valid()); err != nil {
		t.Fatalf("expected valid definition, got %v", err)
	}

	for _, code := range []string{"hr.leave-v2", "A", "PR_CAPEX"} {
		d := valid()
		d.WorkflowCode = code
		if err := cv.Validate(d); err != nil {
			t.Fatalf("expected code %q valid, got %v", code, err)
		}
	}
	for _, code := range []string{"1PR", "PR STANDARD", "PR/1"} {
		d := valid()
		d.WorkflowCode = code
		fe := ToFieldErrors(cv.Validate(d))
		if !containsFieldMsg(fe, "workflow_code", "must start with a letter") {
			t.Fatalf("code %q: %+v", code, fe)
		}
	}

	d := valid()
	d.WorkflowName = ""
	d.WorkflowType = "round_robin"
	d.TotalLevels = -1
	d.Levels = []workflowUC.LevelDefinition{{LevelNumber: 0, SLAHours: -4}}
	fe := ToFieldErrors(cv.Validate(d))
	for _, want := range []struct{ field, msg string }{
		{"workflow_name", "is required"},
		{"workflow_type", "must be one of sequential parallel conditional"},
		{"total_levels", "greater than or equal to 0"},
		{"level_number", "greater than or equal to 1"},
		{"level_name", "is required"},
		{"sla_hours", "greater than or equal to 0"},
	} {
		if !containsFieldMsg(fe, want.field, want.msg) {
			t.Fatalf("missing %q for %s: %+v", want.msg, want.field, fe)
		}
	}
}

func TestCreateInputValidation(t *testing.T) {
	cv := NewValidator()
	err := cv.Validate(approval.CreateInput{ApprovableID: "PR-1", ModuleName: "procurement", Priority: "critical"})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	fe := ToFieldErrors(err)
	for _, want := range []struct{ field, msg string }{
		{"approvable_type", "is required"},
		{"approval_type", "is required"},
		{"priority", "must be one of low medium high urgent"},
	} {
		if !containsFieldMsg(fe, want.field, want.msg) {
			t.Fatalf("missing %q for %s: %+v", want.msg, want.field, fe)
		}
	}
	if containsFieldMsg(fe, "module_name", "") {
		t.Fatalf("module_name reported: %+v", fe)
	}
}

func TestToFieldErrors_NonValidation(t *testing.T) {
	fe := ToFieldErrors(errors.New("boom"))
	if len(fe) != 1 || fe[0].Field != "_" || fe[0].Message != "boom" {
		t.Fatalf("unexpected mapping: %+v", fe)
	}
}

func containsFieldMsg(list []FieldError, field, substr string) bool {
	for _, e := range list {
		if e.Field == field && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
