package offboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
)

// CompleteTaskResult はタスク完了の結果です。
type CompleteTaskResult struct {
	Task          *Task
	Run           *Run
	TaskCompleted bool
	RunCompleted  bool
	// SystemResult は自動アクションを実行した場合のみ設定されます。
	SystemResult *DeprovisionResult
}

// AddTaskInput は手動でタスクを追加する際の入力です。
type AddTaskInput struct {
	RunID              string
	Title              string
	Description        string
	Category           string
	AssignedRole       string
	AssignedEmployeeID *string
	DueDate            string
	Required           *bool
	Link               string
}

// UpdateTaskInput はタスク編集時の入力です。*Set が false の項目は変更されません。
type UpdateTaskInput struct {
	TaskID             string
	DueDate            *string
	DueDateSet         bool
	AssignedEmployeeID *string
	AssigneeSet        bool
	AssignedRole       *string
}

// CompleteTask はタスクを完了にし、必須タスクがすべて完了していればランを完了させます。
// 自動アクションは完了前に実行されますが、その成否は完了を妨げません。
// 完了の書き込みと集計はランの行ロックの下で行うため、兄弟タスクの同時完了でも集計は最新のタスク一覧から行われます。
func (s *Service) CompleteTask(ctx context.Context, sc ScopeContext, taskID string) (*CompleteTaskResult, error) {
	task, err := s.loadScopedTask(ctx, sc, taskID)
	if err != nil {
		return nil, err
	}

	run, err := s.runs.FindByID(ctx, task.ScopeID, task.RunID)
	if err != nil {
		return nil, err
	}

	emp := s.findEmployeeBestEffort(ctx, task.ScopeID, run.EmployeeID)
	result := &CompleteTaskResult{}

	// 自動アクションは外部呼び出しのためロック外で、取得時点の状態を基に実行する。
	if task.Status != TaskStatusCompleted && task.SystemCode != SystemCodeNone {
		if task.SystemCode.IsAutomated() {
			sys := s.runSystemAction(ctx, task, emp)
			result.SystemResult = &sys
			if !sys.OK {
				s.effects.Dispatch(ctx, AuditEffect(AuditEntry{
					ScopeID:           task.ScopeID,
					EventType:         AuditSystemActionFailed,
					EntityType:        EntityTypeTask,
					EntityID:          task.ID,
					RelatedEmployeeID: run.EmployeeID,
					ActorID:           sc.ActorID,
					Description:       fmt.Sprintf("Automated action %s failed: %s", task.SystemCode, sys.Error),
					Metadata:          map[string]any{"system_code": string(task.SystemCode), "error": sys.Error},
					OccurredAt:        s.clock.Now(),
				}))
			}
		} else {
			s.logger.WarnContext(ctx, "ignoring unrecognized system code",
				slog.String("task_id", task.ID),
				slog.String("system_code", string(task.SystemCode)),
			)
		}
	}

	now := s.clock.Now()
	var effects []Effect
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		effects = effects[:0]

		locked, err := s.runs.LockByID(txCtx, task.ScopeID, task.RunID)
		if err != nil {
			return err
		}
		current, err := s.lockScopedTask(txCtx, sc, task.ID)
		if err != nil {
			return err
		}

		if current.Status != TaskStatusCompleted {
			if _, ok := NextTaskStatus(current.Status, TaskEventComplete); !ok {
				return fmt.Errorf("%s from %s: %w", TaskEventComplete, current.Status, ErrTaskTransition)
			}
			changed, err := s.tasks.MarkCompleted(txCtx, current.ScopeID, current.ID, now)
			if err != nil {
				return fmt.Errorf("complete task: %w", err)
			}
			if changed {
				current.Status = TaskStatusCompleted
				current.CompletedAt = &now
				current.BlockedReason = nil
				current.UpdatedAt = now
				effects = append(effects, AuditEffect(AuditEntry{
					ScopeID:           current.ScopeID,
					EventType:         AuditTaskCompleted,
					EntityType:        EntityTypeTask,
					EntityID:          current.ID,
					RelatedEmployeeID: locked.EmployeeID,
					ActorID:           sc.ActorID,
					Description:       fmt.Sprintf("Task %q completed", current.Title),
					Metadata:          map[string]any{"run_id": locked.ID},
					OccurredAt:        now,
				}))
			}
		}
		task = current

		reconciled, reconcileEffects, err := s.reconcileRun(txCtx, locked, emp, sc.ActorID, now)
		if err != nil {
			return err
		}
		run = reconciled
		effects = append(effects, reconcileEffects...)
		return nil
	}); err != nil {
		return nil, err
	}

	s.effects.Dispatch(ctx, effects...)

	result.Task = task
	result.Run = run
	result.TaskCompleted = task.Status == TaskStatusCompleted
	result.RunCompleted = run.Status == RunStatusCompleted
	return result, nil
}

// reconcileRun はタスク全件から完了判定を再計算します。呼び出し元はランの行ロックを保持している必要があります。
// 差分ではなく全件で判定するため、再試行や並行する完了処理があっても同じ結果に収束します。
func (s *Service) reconcileRun(ctx context.Context, run *Run, emp *employee.Employee, actorID string, now time.Time) (*Run, []Effect, error) {
	tasks, err := s.tasks.ListByRun(ctx, run.ScopeID, run.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list run tasks: %w", err)
	}
	if !requiredTasksCompleted(tasks) {
		return run, nil, nil
	}

	next, ok := NextRunStatus(run.Status, RunEventComplete)
	if !ok {
		if run.Status == RunStatusCancelled {
			s.logger.InfoContext(ctx, "required tasks completed on cancelled run, leaving run cancelled", slog.String("run_id", run.ID))
		}
		return run, nil, nil
	}

	changed, err := s.runs.MarkCompleted(ctx, run.ScopeID, run.ID, run.Status, now)
	if err != nil {
		return nil, nil, fmt.Errorf("complete run: %w", err)
	}
	if !changed {
		latest, err := s.runs.FindByID(ctx, run.ScopeID, run.ID)
		if err != nil {
			return nil, nil, err
		}
		return latest, nil, nil
	}

	completed := *run
	completed.Status = next
	completed.CompletedAt = &now
	completed.UpdatedAt = now

	if emp != nil {
		if _, err := s.employees.UpdateLifecycle(ctx, employee.LifecycleUpdate{
			ScopeID:         emp.ScopeID,
			ID:              emp.ID,
			Status:          employee.StatusTerminated,
			TerminationDate: cloneTime(emp.TerminationDate),
			UpdatedAt:       now,
		}); err != nil {
			return nil, nil, fmt.Errorf("terminate employee: %w", err)
		}
	} else {
		s.logger.WarnContext(ctx, "run completed without resolvable employee", slog.String("run_id", run.ID))
	}

	effects := []Effect{AuditEffect(AuditEntry{
		ScopeID:           run.ScopeID,
		EventType:         AuditRunCompleted,
		EntityType:        EntityTypeRun,
		EntityID:          run.ID,
		RelatedEmployeeID: run.EmployeeID,
		ActorID:           actorID,
		Description:       fmt.Sprintf("Offboarding completed for %s", displayName(emp)),
		OccurredAt:        now,
	})}
	return &completed, effects, nil
}

// requiredTasksCompleted は必須タスクが 1 件以上あり、そのすべてが完了しているかを返します。
func requiredTasksCompleted(tasks []*Task) bool {
	required := 0
	for _, task := range tasks {
		if !task.Required {
			continue
		}
		required++
		if task.Status != TaskStatusCompleted {
			return false
		}
	}
	return required > 0
}

func (s *Service) runSystemAction(ctx context.Context, task *Task, emp *employee.Employee) DeprovisionResult {
	switch task.SystemCode {
	case SystemCodeSuspendIdentity:
		if emp == nil {
			return DeprovisionResult{OK: false, Error: "employee not found"}
		}
		if s.identity == nil {
			return DeprovisionResult{OK: false, Error: "identity deprovisioning is not configured"}
		}
		res := s.identity.Suspend(ctx, emp)
		if res.OK {
			s.logger.InfoContext(ctx, "identity suspended", slog.String("task_id", task.ID), slog.String("employee_id", emp.ID))
		} else {
			s.logger.WarnContext(ctx, "identity suspension failed",
				slog.String("task_id", task.ID),
				slog.String("employee_id", emp.ID),
				slog.String("error", res.Error),
			)
		}
		return res
	default:
		return DeprovisionResult{OK: false, Error: fmt.Sprintf("unsupported system code %q", task.SystemCode)}
	}
}

// StartTask は未着手のタスクを進行中にします。
func (s *Service) StartTask(ctx context.Context, sc ScopeContext, taskID string) (*Task, error) {
	return s.transitionTask(ctx, sc, taskID, TaskEventStart, nil)
}

// BlockTask は理由を付けてタスクをブロック状態にします。
func (s *Service) BlockTask(ctx context.Context, sc ScopeContext, taskID, reason string) (*Task, error) {
	if _, err := requireScope(sc); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return nil, ErrBlockedReasonRequired
	}
	return s.transitionTask(ctx, sc, taskID, TaskEventBlock, &trimmed)
}

// UnblockTask はブロックを解除し未着手に戻します。
func (s *Service) UnblockTask(ctx context.Context, sc ScopeContext, taskID string) (*Task, error) {
	return s.transitionTask(ctx, sc, taskID, TaskEventUnblock, nil)
}

func (s *Service) transitionTask(ctx context.Context, sc ScopeContext, taskID string, event TaskEvent, reason *string) (*Task, error) {
	var updated *Task
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		task, err := s.lockScopedTask(txCtx, sc, taskID)
		if err != nil {
			return err
		}
		next, ok := NextTaskStatus(task.Status, event)
		if !ok {
			return fmt.Errorf("%s from %s: %w", event, task.Status, ErrTaskTransition)
		}
		task.Status = next
		task.BlockedReason = reason
		task.UpdatedAt = s.clock.Now()

		result, err := s.tasks.Update(txCtx, task)
		if err != nil {
			return err
		}
		updated = result
		return nil
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateTask は期限と担当者を変更します。完了済みのタスクは変更できません。
func (s *Service) UpdateTask(ctx context.Context, sc ScopeContext, in UpdateTaskInput) (*Task, error) {
	if _, err := requireScope(sc); err != nil {
		return nil, err
	}

	var dueDate *time.Time
	if in.DueDateSet && in.DueDate != nil && strings.TrimSpace(*in.DueDate) != "" {
		d, ok := NormalizeDate(*in.DueDate)
		if !ok {
			return nil, ErrInvalidDueDate
		}
		dueDate = &d
	}

	var role *Role
	if in.AssignedRole != nil {
		parsed, ok := ParseRole(*in.AssignedRole)
		if !ok {
			return nil, ErrInvalidRole
		}
		role = &parsed
	}

	var (
		updated *Task
		effect  Effect
	)
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		task, err := s.lockScopedTask(txCtx, sc, in.TaskID)
		if err != nil {
			return err
		}
		if task.Status.IsTerminal() {
			return fmt.Errorf("edit %s task: %w", task.Status, ErrTaskTransition)
		}

		changes := map[string]any{}
		if in.DueDateSet {
			task.DueDate = dueDate
			changes["due_date"] = formatOptionalDate(dueDate)
		}
		if in.AssigneeSet {
			task.AssignedEmployeeID = nil
			if in.AssignedEmployeeID != nil && strings.TrimSpace(*in.AssignedEmployeeID) != "" {
				task.AssignedEmployeeID = stringPtr(strings.TrimSpace(*in.AssignedEmployeeID))
			}
			changes["assigned_employee_id"] = derefString(task.AssignedEmployeeID)
		}
		if role != nil {
			task.AssignedRole = *role
			changes["assigned_role"] = string(*role)
		}
		task.UpdatedAt = s.clock.Now()

		result, err := s.tasks.Update(txCtx, task)
		if err != nil {
			return err
		}
		updated = result
		effect = AuditEffect(AuditEntry{
			ScopeID:     result.ScopeID,
			EventType:   AuditTaskUpdated,
			EntityType:  EntityTypeTask,
			EntityID:    result.ID,
			ActorID:     sc.ActorID,
			Description: fmt.Sprintf("Task %q updated", result.Title),
			Metadata:    changes,
			OccurredAt:  result.UpdatedAt,
		})
		return nil
	}); err != nil {
		return nil, err
	}

	s.effects.Dispatch(ctx, effect)
	return updated, nil
}

// AddTask は未終了のランに手動でタスクを追加します。
func (s *Service) AddTask(ctx context.Context, sc ScopeContext, in AddTaskInput) (*Task, error) {
	scopeID, err := requireScope(sc)
	if err != nil {
		return nil, err
	}
	runID, err := normalizeID(in.RunID, ErrInvalidID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrInvalidTitle
	}

	role := RoleHR
	if strings.TrimSpace(in.AssignedRole) != "" {
		parsed, ok := ParseRole(in.AssignedRole)
		if !ok {
			return nil, ErrInvalidRole
		}
		role = parsed
	}

	var dueDate *time.Time
	if strings.TrimSpace(in.DueDate) != "" {
		d, ok := NormalizeDate(in.DueDate)
		if !ok {
			return nil, ErrInvalidDueDate
		}
		dueDate = &d
	}

	required := true
	if in.Required != nil {
		required = *in.Required
	}

	var (
		created *Task
		run     *Run
	)
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		found, err := s.runs.LockByID(txCtx, scopeID, runID)
		if err != nil {
			return err
		}
		if found.Status.IsTerminal() {
			return fmt.Errorf("add task to %s run: %w", found.Status, ErrRunTransition)
		}
		run = found

		siblings, err := s.tasks.ListByRun(txCtx, scopeID, runID)
		if err != nil {
			return err
		}
		nextOrder := 0
		for _, sibling := range siblings {
			if sibling.OrderIndex >= nextOrder {
				nextOrder = sibling.OrderIndex + 1
			}
		}

		var assignee *string
		if in.AssignedEmployeeID != nil && strings.TrimSpace(*in.AssignedEmployeeID) != "" {
			assignee = stringPtr(strings.TrimSpace(*in.AssignedEmployeeID))
		}

		now := s.clock.Now()
		result, err := s.tasks.Create(txCtx, &Task{
			ScopeID:            scopeID,
			RunID:              runID,
			Title:              title,
			Description:        strings.TrimSpace(in.Description),
			Category:           strings.TrimSpace(in.Category),
			AssignedRole:       role,
			AssignedEmployeeID: assignee,
			DueDate:            dueDate,
			Required:           required,
			Link:               strings.TrimSpace(in.Link),
			OrderIndex:         nextOrder,
			Status:             TaskStatusNotStarted,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			return err
		}
		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	effects := []Effect{AuditEffect(AuditEntry{
		ScopeID:           scopeID,
		EventType:         AuditTaskAdded,
		EntityType:        EntityTypeTask,
		EntityID:          created.ID,
		RelatedEmployeeID: run.EmployeeID,
		ActorID:           sc.ActorID,
		Description:       fmt.Sprintf("Task %q added", created.Title),
		Metadata:          map[string]any{"run_id": run.ID},
		OccurredAt:        created.CreatedAt,
	})}
	if emp := s.findEmployeeBestEffort(ctx, scopeID, run.EmployeeID); emp != nil {
		effects = append(effects, s.taskAssignedEffects(emp, run, []*Task{created})...)
	}
	s.effects.Dispatch(ctx, effects...)

	return created, nil
}

// loadScopedTask はタスクを取得し、レコード自身のスコープを検証します。
// 呼び出し元と異なるスコープのタスクは存在しないものとして扱います。
func (s *Service) loadScopedTask(ctx context.Context, sc ScopeContext, taskID string) (*Task, error) {
	return s.scopedTask(ctx, sc, taskID, s.tasks.FindByID)
}

// lockScopedTask は loadScopedTask と同じ検証を行い、タスクの行ロックを取得します。
func (s *Service) lockScopedTask(ctx context.Context, sc ScopeContext, taskID string) (*Task, error) {
	return s.scopedTask(ctx, sc, taskID, s.tasks.LockByID)
}

func (s *Service) scopedTask(ctx context.Context, sc ScopeContext, taskID string, find func(context.Context, string) (*Task, error)) (*Task, error) {
	scopeID, err := requireScope(sc)
	if err != nil {
		return nil, err
	}
	id, err := normalizeID(taskID, ErrInvalidID)
	if err != nil {
		return nil, err
	}

	task, err := find(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.ScopeID == "" {
		return nil, ErrScopeMissing
	}
	if task.ScopeID != scopeID {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// findEmployeeBestEffort は社員を取得します。見つからない場合は通知や監査の詳細が欠けるだけで処理は継続します。
func (s *Service) findEmployeeBestEffort(ctx context.Context, scopeID, employeeID string) *employee.Employee {
	emp, err := s.employees.FindByID(ctx, employeeID)
	if err != nil {
		if !errors.Is(err, employee.ErrEmployeeNotFound) {
			s.logger.WarnContext(ctx, "employee lookup failed", slog.String("employee_id", employeeID), slog.Any("error", err))
		}
		return nil
	}
	if emp.ScopeID != scopeID {
		s.logger.WarnContext(ctx, "employee scope differs from run scope", slog.String("employee_id", employeeID))
		return nil
	}
	return emp
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatDate(*t)
}
