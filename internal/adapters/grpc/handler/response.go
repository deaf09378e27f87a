package handler

import (
	"time"

	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func timestampValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func optionalTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timestampValue(*t)
}

func optionalDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return offboarding.FormatDate(*t)
}

func optionalString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func runFields(run *offboarding.Run) any {
	if run == nil {
		return nil
	}
	return map[string]any{
		"id":           run.ID,
		"scope_id":     run.ScopeID,
		"employee_id":  run.EmployeeID,
		"template_id":  optionalString(run.TemplateID),
		"manager_id":   optionalString(run.ManagerID),
		"last_day":     offboarding.FormatDate(run.LastDay),
		"exit_type":    run.ExitType,
		"reason":       run.Reason,
		"status":       string(run.Status),
		"request_key":  run.RequestKey,
		"created_by":   run.CreatedBy,
		"created_at":   timestampValue(run.CreatedAt),
		"updated_at":   timestampValue(run.UpdatedAt),
		"completed_at": optionalTimestamp(run.CompletedAt),
	}
}

func runList(runs []*offboarding.Run) []any {
	out := make([]any, 0, len(runs))
	for _, run := range runs {
		out = append(out, runFields(run))
	}
	return out
}

func taskFields(task *offboarding.Task) any {
	if task == nil {
		return nil
	}
	return map[string]any{
		"id":                   task.ID,
		"scope_id":             task.ScopeID,
		"run_id":               task.RunID,
		"task_template_id":     optionalString(task.TaskTemplateID),
		"title":                task.Title,
		"description":          task.Description,
		"category":             task.Category,
		"assigned_role":        string(task.AssignedRole),
		"assigned_employee_id": optionalString(task.AssignedEmployeeID),
		"due_date":             optionalDate(task.DueDate),
		"required":             task.Required,
		"link":                 task.Link,
		"system_code":          string(task.SystemCode),
		"order_index":          task.OrderIndex,
		"status":               string(task.Status),
		"blocked_reason":       optionalString(task.BlockedReason),
		"completed_at":         optionalTimestamp(task.CompletedAt),
		"created_at":           timestampValue(task.CreatedAt),
		"updated_at":           timestampValue(task.UpdatedAt),
	}
}

func taskList(tasks []*offboarding.Task) []any {
	out := make([]any, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, taskFields(task))
	}
	return out
}

func templateFields(tpl *offboarding.Template) any {
	if tpl == nil {
		return nil
	}
	exitDocs := make([]any, 0, len(tpl.ExitDocumentTemplateIDs))
	for _, id := range tpl.ExitDocumentTemplateIDs {
		exitDocs = append(exitDocs, id)
	}
	return map[string]any{
		"id":                             tpl.ID,
		"scope_id":                       tpl.ScopeID,
		"name":                           tpl.Name,
		"entity_id":                      tpl.EntityID,
		"department_id":                  tpl.DepartmentID,
		"employment_type":                tpl.EmploymentType,
		"exit_type":                      tpl.ExitType,
		"is_default":                     tpl.IsDefault,
		"termination_letter_template_id": tpl.TerminationLetterTemplateID,
		"exit_document_template_ids":     exitDocs,
	}
}

func documentList(docs []*offboarding.Document) []any {
	out := make([]any, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		out = append(out, map[string]any{
			"id":                   doc.ID,
			"kind":                 string(doc.Kind),
			"title":                doc.Title,
			"document_template_id": doc.DocumentTemplateID,
			"created_at":           timestampValue(doc.CreatedAt),
		})
	}
	return out
}

func progressFields(p *offboarding.Progress) any {
	if p == nil {
		return nil
	}
	return map[string]any{
		"run_id":             p.RunID,
		"total":              p.Total,
		"completed":          p.Completed,
		"percent":            p.Percent,
		"required_total":     p.RequiredTotal,
		"required_completed": p.RequiredCompleted,
		"required_percent":   p.RequiredPercent,
	}
}

func systemResultFields(r *offboarding.DeprovisionResult) any {
	if r == nil {
		return nil
	}
	return map[string]any{"ok": r.OK, "error": r.Error}
}
