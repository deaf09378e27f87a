package offboarding

import (
	"context"
	"errors"
	"testing"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
)

func seedExitTemplate(f *fixture) {
	f.templates.templates = []*Template{{
		ID:                          "tpl-1",
		ScopeID:                     testScope,
		Name:                        "Standard exit",
		IsActive:                    true,
		IsDefault:                   true,
		TerminationLetterTemplateID: "letter",
		ExitDocumentTemplateIDs:     []string{"nda"},
	}}
	f.taskTemplates.items = []*TaskTemplate{
		{ID: "tt-3", TemplateID: "tpl-1", ScopeID: testScope, Title: "Exit interview", AssignedRole: "hr", Required: boolPtr(false), OrderIndex: 3},
		{ID: "tt-1", TemplateID: "tpl-1", ScopeID: testScope, Title: "Return laptop", AssignedRole: "employee", OrderIndex: 1, DueOffsetDays: intPtr(-3)},
		{ID: "tt-2", TemplateID: "tpl-1", ScopeID: testScope, Title: "Handover", AssignedRole: "manager", OrderIndex: 2, DueOffsetDays: intPtr(0)},
	}
}

func TestService_CreateOffboardingFromTemplate(t *testing.T) {
	t.Parallel()

	emp := newEmployee("emp-1")
	f := newFixture(t, Options{}, emp)
	seedExitTemplate(f)

	res, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, CreateOffboardingInput{
		EmployeeID: emp.ID,
		TemplateID: stringPtr("tpl-1"),
		LastDay:    "2024-08-10",
		ExitType:   "Resignation",
		Reason:     " relocation ",
	})
	if err != nil {
		t.Fatalf("CreateOffboarding returned error: %v", err)
	}

	run := res.Run
	if run.Status != RunStatusScheduled {
		t.Fatalf("expected scheduled run, got %s", run.Status)
	}
	if run.ScopeID != testScope || run.EmployeeID != emp.ID {
		t.Fatalf("unexpected run ownership: %+v", run)
	}
	if run.ManagerID == nil || *run.ManagerID != "mgr-1" {
		t.Fatalf("expected manager snapshot, got %v", run.ManagerID)
	}
	if run.ExitType != "resignation" || run.Reason != "relocation" {
		t.Fatalf("expected normalized exit type and reason, got %q %q", run.ExitType, run.Reason)
	}
	if run.RequestKey == "" {
		t.Fatalf("expected generated request key")
	}
	if run.CreatedBy != "hr-admin" {
		t.Fatalf("expected actor to be recorded, got %q", run.CreatedBy)
	}

	if len(res.Tasks) != 3 || res.TasksPlanned != 3 || res.TasksFailed != 0 {
		t.Fatalf("expected 3 tasks created, got %d (planned %d, failed %d)", len(res.Tasks), res.TasksPlanned, res.TasksFailed)
	}
	wantTitles := []string{"Return laptop", "Handover", "Exit interview"}
	for i, task := range res.Tasks {
		if task.Title != wantTitles[i] {
			t.Fatalf("task %d: expected %q, got %q", i, wantTitles[i], task.Title)
		}
		if task.Status != TaskStatusNotStarted {
			t.Fatalf("task %d: expected not_started, got %s", i, task.Status)
		}
		if task.ScopeID != testScope || task.RunID != run.ID {
			t.Fatalf("task %d: unexpected ownership %+v", i, task)
		}
	}
	if got := FormatDate(*res.Tasks[0].DueDate); got != "2024-08-07" {
		t.Fatalf("expected due date 2024-08-07, got %s", got)
	}
	if got := FormatDate(*res.Tasks[1].DueDate); got != "2024-08-10" {
		t.Fatalf("expected due date on last day, got %s", got)
	}
	if res.Tasks[2].DueDate != nil {
		t.Fatalf("expected no due date without offset")
	}
	if !res.Tasks[0].Required || res.Tasks[2].Required {
		t.Fatalf("unexpected required flags: %v %v", res.Tasks[0].Required, res.Tasks[2].Required)
	}

	if len(res.Documents) != 2 || res.DocumentsFailed != 0 {
		t.Fatalf("expected 2 documents, got %d (failed %d)", len(res.Documents), res.DocumentsFailed)
	}
	if f.documents.requests[0].Kind != DocumentKindTerminationLetter {
		t.Fatalf("expected termination letter first, got %s", f.documents.requests[0].Kind)
	}

	updated := f.employees.get(emp.ID)
	if updated.Status != employee.StatusOffboarding {
		t.Fatalf("expected employee offboarding, got %s", updated.Status)
	}
	if updated.TerminationDate == nil || FormatDate(*updated.TerminationDate) != "2024-08-10" {
		t.Fatalf("expected termination date 2024-08-10, got %v", updated.TerminationDate)
	}

	assigned := f.effects.notifications(NotificationTaskAssigned)
	if len(assigned) != 2 {
		t.Fatalf("expected 2 assignment notifications, got %d", len(assigned))
	}
	if assigned[0].RecipientID != emp.ID || assigned[1].RecipientID != "mgr-1" {
		t.Fatalf("unexpected recipients: %s, %s", assigned[0].RecipientID, assigned[1].RecipientID)
	}
	if started := f.effects.notifications(NotificationOffboardingStarted); len(started) != 1 || started[0].RecipientID != "mgr-1" {
		t.Fatalf("expected manager to be notified once, got %+v", started)
	}
	if audits := f.effects.audits(AuditRunCreated); len(audits) != 1 || audits[0].EntityID != run.ID {
		t.Fatalf("expected run created audit, got %+v", audits)
	}
}

func TestService_CreateOffboardingWithoutTemplate(t *testing.T) {
	t.Parallel()

	emp := newEmployee("emp-1")
	f := newFixture(t, Options{}, emp)

	res, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, CreateOffboardingInput{
		EmployeeID: emp.ID,
		LastDay:    "2024-08-10",
	})
	if err != nil {
		t.Fatalf("CreateOffboarding returned error: %v", err)
	}
	if res.Run.TemplateID != nil {
		t.Fatalf("expected no template id, got %v", *res.Run.TemplateID)
	}
	if len(res.Tasks) != 0 || f.tasks.count() != 0 {
		t.Fatalf("expected zero tasks, got %d", f.tasks.count())
	}
	if got := f.employees.get(emp.ID).Status; got != employee.StatusOffboarding {
		t.Fatalf("expected employee offboarding, got %s", got)
	}
	if len(f.effects.notifications(NotificationTaskAssigned)) != 0 {
		t.Fatalf("expected no assignment notifications")
	}
}

func TestService_CreateOffboardingAutoResolve(t *testing.T) {
	t.Parallel()

	emp := newEmployee("emp-1")
	f := newFixture(t, Options{}, emp)
	seedExitTemplate(f)

	res, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, CreateOffboardingInput{
		EmployeeID:          emp.ID,
		AutoResolveTemplate: true,
		LastDay:             "2024-08-10T15:00:00+09:00",
	})
	if err != nil {
		t.Fatalf("CreateOffboarding returned error: %v", err)
	}
	if res.Run.TemplateID == nil || *res.Run.TemplateID != "tpl-1" {
		t.Fatalf("expected resolved template tpl-1, got %v", res.Run.TemplateID)
	}
	if got := FormatDate(res.Run.LastDay); got != "2024-08-10" {
		t.Fatalf("expected last day truncated to date, got %s", got)
	}
	if len(res.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(res.Tasks))
	}
}

func TestService_CreateOffboardingValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sc      ScopeContext
		emp     *employee.Employee
		in      CreateOffboardingInput
		wantErr error
	}{
		{
			name:    "missing caller scope",
			sc:      ScopeContext{},
			emp:     newEmployee("emp-1"),
			in:      CreateOffboardingInput{EmployeeID: "emp-1", LastDay: "2024-08-10"},
			wantErr: ErrScopeMissing,
		},
		{
			name: "employee without scope",
			sc:   testScopeContext,
			emp: func() *employee.Employee {
				e := newEmployee("emp-1")
				e.ScopeID = ""
				return e
			}(),
			in:      CreateOffboardingInput{EmployeeID: "emp-1", LastDay: "2024-08-10"},
			wantErr: ErrScopeMissing,
		},
		{
			name:    "employee in another scope",
			sc:      ScopeContext{ScopeID: "org-2"},
			emp:     newEmployee("emp-1"),
			in:      CreateOffboardingInput{EmployeeID: "emp-1", LastDay: "2024-08-10"},
			wantErr: ErrScopeMismatch,
		},
		{
			name:    "unknown employee",
			sc:      testScopeContext,
			emp:     newEmployee("emp-1"),
			in:      CreateOffboardingInput{EmployeeID: "emp-x", LastDay: "2024-08-10"},
			wantErr: employee.ErrEmployeeNotFound,
		},
		{
			name:    "blank employee id",
			sc:      testScopeContext,
			emp:     newEmployee("emp-1"),
			in:      CreateOffboardingInput{EmployeeID: "  ", LastDay: "2024-08-10"},
			wantErr: ErrInvalidEmployeeID,
		},
		{
			name:    "impossible last day",
			sc:      testScopeContext,
			emp:     newEmployee("emp-1"),
			in:      CreateOffboardingInput{EmployeeID: "emp-1", LastDay: "2024-02-30"},
			wantErr: ErrInvalidLastDay,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, Options{}, tt.emp)
			seedExitTemplate(f)

			_, err := f.svc.CreateOffboarding(context.Background(), tt.sc, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if f.runs.count() != 0 || f.tasks.count() != 0 || len(f.documents.requests) != 0 {
				t.Fatalf("expected no writes, got runs=%d tasks=%d documents=%d", f.runs.count(), f.tasks.count(), len(f.documents.requests))
			}
			if f.employees.updates != 0 {
				t.Fatalf("expected employee untouched")
			}
		})
	}
}

func TestService_CreateOffboardingBulkFallback(t *testing.T) {
	t.Parallel()

	emp := newEmployee("emp-1")
	f := newFixture(t, Options{}, emp)
	seedExitTemplate(f)
	f.tasks.bulkErr = errors.New("batch rejected")
	f.tasks.failTitles["Handover"] = true

	res, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, CreateOffboardingInput{
		EmployeeID: emp.ID,
		TemplateID: stringPtr("tpl-1"),
		LastDay:    "2024-08-10",
	})
	if err != nil {
		t.Fatalf("CreateOffboarding returned error: %v", err)
	}
	if res.TasksFailed != 1 || len(res.Tasks) != 2 {
		t.Fatalf("expected 2 created and 1 failed, got %d created, %d failed", len(res.Tasks), res.TasksFailed)
	}
	if f.tasks.bulkCalls != 1 || f.tasks.createCalls != 3 {
		t.Fatalf("expected bulk then 3 individual inserts, got bulk=%d create=%d", f.tasks.bulkCalls, f.tasks.createCalls)
	}
	if audits := f.effects.audits(AuditRunCreated); len(audits) != 1 || audits[0].Metadata["tasks_failed"] != 1 {
		t.Fatalf("expected audit to record the failed task, got %+v", audits)
	}
}

func TestService_CreateOffboardingDegradedDependencies(t *testing.T) {
	t.Parallel()

	t.Run("document failure is tolerated", func(t *testing.T) {
		t.Parallel()

		emp := newEmployee("emp-1")
		f := newFixture(t, Options{}, emp)
		seedExitTemplate(f)
		f.documents.failFor["letter"] = true

		res, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, CreateOffboardingInput{
			EmployeeID: emp.ID,
			TemplateID: stringPtr("tpl-1"),
			LastDay:    "2024-08-10",
		})
		if err != nil {
			t.Fatalf("CreateOffboarding returned error: %v", err)
		}
		if res.DocumentsFailed != 1 || len(res.Documents) != 1 {
			t.Fatalf("expected one failed and one generated document, got failed=%d generated=%d", res.DocumentsFailed, len(res.Documents))
		}
		if len(res.Tasks) != 3 {
			t.Fatalf("expected tasks despite document failure, got %d", len(res.Tasks))
		}
	})

	t.Run("template metadata failure skips documents only", func(t *testing.T) {
		t.Parallel()

		emp := newEmployee("emp-1")
		f := newFixture(t, Options{}, emp)
		seedExitTemplate(f)
		f.templates.findErr = errors.New("connection reset")

		res, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, CreateOffboardingInput{
			EmployeeID: emp.ID,
			TemplateID: stringPtr("tpl-1"),
			LastDay:    "2024-08-10",
		})
		if err != nil {
			t.Fatalf("CreateOffboarding returned error: %v", err)
		}
		if len(f.documents.requests) != 0 {
			t.Fatalf("expected documents to be skipped")
		}
		if res.Run.TemplateID == nil || *res.Run.TemplateID != "tpl-1" {
			t.Fatalf("expected template id to be recorded")
		}
		if len(res.Tasks) != 3 {
			t.Fatalf("expected tasks to be created, got %d", len(res.Tasks))
		}
	})

	t.Run("run creation failure leaves employee untouched", func(t *testing.T) {
		t.Parallel()

		emp := newEmployee("emp-1")
		f := newFixture(t, Options{}, emp)
		seedExitTemplate(f)
		f.runs.createErr = errors.New("disk full")

		if _, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, CreateOffboardingInput{
			EmployeeID: emp.ID,
			TemplateID: stringPtr("tpl-1"),
			LastDay:    "2024-08-10",
		}); err == nil {
			t.Fatalf("expected error")
		}
		if f.employees.updates != 0 || f.tasks.count() != 0 {
			t.Fatalf("expected no further writes after run failure")
		}
	})
}

func TestService_CreateOffboardingCoercesUnknownRoles(t *testing.T) {
	t.Parallel()

	emp := newEmployee("emp-1")
	f := newFixture(t, Options{}, emp)
	seedExitTemplate(f)
	f.taskTemplates.items = append(f.taskTemplates.items, &TaskTemplate{
		ID: "tt-4", TemplateID: "tpl-1", ScopeID: testScope, Title: "Revoke badge", AssignedRole: "security", OrderIndex: 4,
	})

	res, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, CreateOffboardingInput{
		EmployeeID: emp.ID,
		TemplateID: stringPtr("tpl-1"),
		LastDay:    "2024-08-10",
	})
	if err != nil {
		t.Fatalf("CreateOffboarding returned error: %v", err)
	}
	if res.RolesCoerced != 1 {
		t.Fatalf("expected 1 coerced role, got %d", res.RolesCoerced)
	}
	if got := res.Tasks[3].AssignedRole; got != RoleHR {
		t.Fatalf("expected role hr, got %s", got)
	}
}

func TestService_CreateOffboardingRequestKeyReplay(t *testing.T) {
	t.Parallel()

	emp := newEmployee("emp-1")
	f := newFixture(t, Options{}, emp)
	seedExitTemplate(f)

	in := CreateOffboardingInput{
		EmployeeID: emp.ID,
		TemplateID: stringPtr("tpl-1"),
		LastDay:    "2024-08-10",
		RequestKey: "req-42",
	}
	first, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, in)
	if err != nil {
		t.Fatalf("first CreateOffboarding returned error: %v", err)
	}
	second, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, in)
	if err != nil {
		t.Fatalf("second CreateOffboarding returned error: %v", err)
	}

	if !second.Replayed || second.Run.ID != first.Run.ID {
		t.Fatalf("expected replay of run %s, got %+v", first.Run.ID, second.Run)
	}
	if f.runs.count() != 1 || f.tasks.count() != 3 {
		t.Fatalf("expected a single run with 3 tasks, got runs=%d tasks=%d", f.runs.count(), f.tasks.count())
	}
	if len(second.Tasks) != 3 {
		t.Fatalf("expected replay to return existing tasks, got %d", len(second.Tasks))
	}
}

func TestService_CreateOffboardingConcurrentRuns(t *testing.T) {
	t.Parallel()

	in := CreateOffboardingInput{EmployeeID: "emp-1", LastDay: "2024-08-10"}

	t.Run("allowed by default", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Options{}, newEmployee("emp-1"))
		for i := 0; i < 2; i++ {
			if _, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, in); err != nil {
				t.Fatalf("CreateOffboarding #%d returned error: %v", i, err)
			}
		}
		if f.runs.count() != 2 {
			t.Fatalf("expected 2 runs, got %d", f.runs.count())
		}
	})

	t.Run("rejected when prevented", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Options{PreventConcurrentRuns: true}, newEmployee("emp-1"))
		if _, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, in); err != nil {
			t.Fatalf("first CreateOffboarding returned error: %v", err)
		}
		_, err := f.svc.CreateOffboarding(context.Background(), testScopeContext, in)
		if !errors.Is(err, ErrActiveRunExists) || !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrActiveRunExists, got %v", err)
		}
	})
}
