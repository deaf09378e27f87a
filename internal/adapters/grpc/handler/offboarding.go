package handler

import (
	"context"

	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	"google.golang.org/protobuf/types/known/structpb"
)

// OffboardingGrpcHandler は OffboardingService の gRPC 実装です。
type OffboardingGrpcHandler struct {
	svc offboarding.UseCase
}

var _ OffboardingServiceServer = (*OffboardingGrpcHandler)(nil)

// NewOffboardingGrpcHandler は OffboardingGrpcHandler を生成します。
func NewOffboardingGrpcHandler(svc offboarding.UseCase) *OffboardingGrpcHandler {
	return &OffboardingGrpcHandler{svc: svc}
}

// ResolveTemplate は社員に適用されるテンプレートを返します。
func (h *OffboardingGrpcHandler) ResolveTemplate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	employeeID, err := req.string("employee_id")
	if err != nil {
		return nil, err
	}
	exitType, err := req.string("exit_type")
	if err != nil {
		return nil, err
	}

	tpl, err := h.svc.ResolveTemplate(ctx, scopeFromContext(ctx), offboarding.ResolveTemplateInput{
		EmployeeID: employeeID,
		ExitType:   exitType,
	})
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(map[string]any{"template": templateFields(tpl)})
}

// CreateOffboarding は退職プロセスを開始します。
func (h *OffboardingGrpcHandler) CreateOffboarding(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)

	var input offboarding.CreateOffboardingInput
	var err error
	if input.EmployeeID, err = req.string("employee_id"); err != nil {
		return nil, err
	}
	if input.TemplateID, _, err = req.optionalString("template_id"); err != nil {
		return nil, err
	}
	if input.AutoResolveTemplate, err = req.bool("auto_resolve_template"); err != nil {
		return nil, err
	}
	if input.LastDay, err = req.string("last_day"); err != nil {
		return nil, err
	}
	if input.ExitType, err = req.string("exit_type"); err != nil {
		return nil, err
	}
	if input.Reason, err = req.string("reason"); err != nil {
		return nil, err
	}
	if input.RequestKey, err = req.string("request_key"); err != nil {
		return nil, err
	}

	result, err := h.svc.CreateOffboarding(ctx, scopeFromContext(ctx), input)
	if err != nil {
		return nil, toStatusError(err)
	}

	return toStruct(map[string]any{
		"run":              runFields(result.Run),
		"template":         templateFields(result.Template),
		"tasks":            taskList(result.Tasks),
		"documents":        documentList(result.Documents),
		"tasks_planned":    result.TasksPlanned,
		"tasks_failed":     result.TasksFailed,
		"documents_failed": result.DocumentsFailed,
		"roles_coerced":    result.RolesCoerced,
		"replayed":         result.Replayed,
	})
}

// AddTask はランに手動でタスクを追加します。
func (h *OffboardingGrpcHandler) AddTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)

	var input offboarding.AddTaskInput
	var err error
	if input.RunID, err = req.string("run_id"); err != nil {
		return nil, err
	}
	if input.Title, err = req.string("title"); err != nil {
		return nil, err
	}
	if input.Description, err = req.string("description"); err != nil {
		return nil, err
	}
	if input.Category, err = req.string("category"); err != nil {
		return nil, err
	}
	if input.AssignedRole, err = req.string("assigned_role"); err != nil {
		return nil, err
	}
	if input.AssignedEmployeeID, _, err = req.optionalString("assigned_employee_id"); err != nil {
		return nil, err
	}
	if input.DueDate, err = req.string("due_date"); err != nil {
		return nil, err
	}
	if input.Required, err = req.optionalBool("required"); err != nil {
		return nil, err
	}
	if input.Link, err = req.string("link"); err != nil {
		return nil, err
	}

	task, err := h.svc.AddTask(ctx, scopeFromContext(ctx), input)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(map[string]any{"task": taskFields(task)})
}

// CompleteTask はタスクを完了にします。
func (h *OffboardingGrpcHandler) CompleteTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	taskID, err := newRequest(in).string("task_id")
	if err != nil {
		return nil, err
	}

	result, err := h.svc.CompleteTask(ctx, scopeFromContext(ctx), taskID)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(map[string]any{
		"task":           taskFields(result.Task),
		"run":            runFields(result.Run),
		"task_completed": result.TaskCompleted,
		"run_completed":  result.RunCompleted,
		"system_result":  systemResultFields(result.SystemResult),
	})
}

// StartTask はタスクを着手済みにします。
func (h *OffboardingGrpcHandler) StartTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.taskCall(ctx, in, h.svc.StartTask)
}

// BlockTask はタスクを保留にします。
func (h *OffboardingGrpcHandler) BlockTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)
	reason, err := req.string("reason")
	if err != nil {
		return nil, err
	}
	return h.taskCall(ctx, in, func(ctx context.Context, sc offboarding.ScopeContext, taskID string) (*offboarding.Task, error) {
		return h.svc.BlockTask(ctx, sc, taskID, reason)
	})
}

// UnblockTask は保留を解除します。
func (h *OffboardingGrpcHandler) UnblockTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.taskCall(ctx, in, h.svc.UnblockTask)
}

// UpdateTask は期日と担当者を変更します。null を指定した項目はクリアされます。
func (h *OffboardingGrpcHandler) UpdateTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := newRequest(in)

	var input offboarding.UpdateTaskInput
	var err error
	if input.TaskID, err = req.string("task_id"); err != nil {
		return nil, err
	}
	if input.DueDate, input.DueDateSet, err = req.optionalString("due_date"); err != nil {
		return nil, err
	}
	if input.AssignedEmployeeID, input.AssigneeSet, err = req.optionalString("assigned_employee_id"); err != nil {
		return nil, err
	}
	if input.AssignedRole, _, err = req.optionalString("assigned_role"); err != nil {
		return nil, err
	}

	task, err := h.svc.UpdateTask(ctx, scopeFromContext(ctx), input)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(map[string]any{"task": taskFields(task)})
}

// PauseRun はランを下書きに戻します。
func (h *OffboardingGrpcHandler) PauseRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.runCall(ctx, in, h.svc.PauseRun)
}

// StartRun はランを進行中にします。
func (h *OffboardingGrpcHandler) StartRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.runCall(ctx, in, h.svc.StartRun)
}

// CancelRun はランを取り消し、社員を在籍状態に戻します。
func (h *OffboardingGrpcHandler) CancelRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.runCall(ctx, in, h.svc.CancelRun)
}

// GetRun はランを取得します。
func (h *OffboardingGrpcHandler) GetRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.runCall(ctx, in, h.svc.GetRun)
}

// GetProgress はランの進捗を返します。
func (h *OffboardingGrpcHandler) GetProgress(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	runID, err := newRequest(in).string("run_id")
	if err != nil {
		return nil, err
	}
	progress, err := h.svc.GetProgress(ctx, scopeFromContext(ctx), runID)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(map[string]any{"progress": progressFields(progress)})
}

// ListRunTasks はランのタスクを並び順で返します。
func (h *OffboardingGrpcHandler) ListRunTasks(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	runID, err := newRequest(in).string("run_id")
	if err != nil {
		return nil, err
	}
	tasks, err := h.svc.ListRunTasks(ctx, scopeFromContext(ctx), runID)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(map[string]any{"tasks": taskList(tasks)})
}

// ListRuns は社員のランを新しい順に返します。
func (h *OffboardingGrpcHandler) ListRuns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	employeeID, err := newRequest(in).string("employee_id")
	if err != nil {
		return nil, err
	}
	runs, err := h.svc.ListRuns(ctx, scopeFromContext(ctx), employeeID)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(map[string]any{"runs": runList(runs)})
}

type taskOperation func(ctx context.Context, sc offboarding.ScopeContext, taskID string) (*offboarding.Task, error)

func (h *OffboardingGrpcHandler) taskCall(ctx context.Context, in *structpb.Struct, op taskOperation) (*structpb.Struct, error) {
	taskID, err := newRequest(in).string("task_id")
	if err != nil {
		return nil, err
	}
	task, err := op(ctx, scopeFromContext(ctx), taskID)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(map[string]any{"task": taskFields(task)})
}

type runOperation func(ctx context.Context, sc offboarding.ScopeContext, runID string) (*offboarding.Run, error)

func (h *OffboardingGrpcHandler) runCall(ctx context.Context, in *structpb.Struct, op runOperation) (*structpb.Struct, error) {
	runID, err := newRequest(in).string("run_id")
	if err != nil {
		return nil, err
	}
	run, err := op(ctx, scopeFromContext(ctx), runID)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(map[string]any{"run": runFields(run)})
}
