package offboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
)

// CreateOffboardingInput はラン作成時の入力です。
type CreateOffboardingInput struct {
	EmployeeID string
	// TemplateID が nil の場合、AutoResolveTemplate が true ならテンプレートを自動選択します。
	TemplateID          *string
	AutoResolveTemplate bool
	LastDay             string
	ExitType            string
	Reason              string
	// RequestKey は冪等キーです。同一スコープで再利用された場合は既存のランを返します。
	RequestKey string
}

// CreateOffboardingResult はラン作成の結果と副作用の劣化状況です。
type CreateOffboardingResult struct {
	Run             *Run
	Template        *Template
	Tasks           []*Task
	Documents       []*Document
	TasksPlanned    int
	TasksFailed     int
	DocumentsFailed int
	RolesCoerced    int
	Replayed        bool
}

type templatePlan struct {
	templateID    *string
	template      *Template
	taskTemplates []*TaskTemplate
}

// CreateOffboarding は社員の退職プロセスを開始します。
// スコープと入力の検証はすべての書き込みより前に行われます。ランと社員の更新以外の失敗はログに残して継続します。
func (s *Service) CreateOffboarding(ctx context.Context, sc ScopeContext, in CreateOffboardingInput) (*CreateOffboardingResult, error) {
	scopeID, err := requireScope(sc)
	if err != nil {
		return nil, err
	}
	employeeID, err := normalizeID(in.EmployeeID, ErrInvalidEmployeeID)
	if err != nil {
		return nil, err
	}

	emp, err := s.loadScopedEmployee(ctx, scopeID, employeeID)
	if err != nil {
		return nil, err
	}

	lastDay, ok := NormalizeDate(in.LastDay)
	if !ok {
		return nil, ErrInvalidLastDay
	}
	exitType := normalizeToken(in.ExitType)

	requestKey := strings.TrimSpace(in.RequestKey)
	if requestKey != "" {
		existing, err := s.runs.FindByRequestKey(ctx, scopeID, requestKey)
		switch {
		case err == nil:
			return s.replayCreate(ctx, existing)
		case !errors.Is(err, ErrRunNotFound):
			return nil, err
		}
	} else {
		requestKey = s.newKey()
	}

	if s.opts.PreventConcurrentRuns {
		if err := s.ensureNoActiveRun(ctx, scopeID, emp.ID); err != nil {
			return nil, err
		}
	}

	plan, err := s.planTemplate(ctx, emp, in.TemplateID, in.AutoResolveTemplate, exitType)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	run, err := s.runs.Create(ctx, &Run{
		ScopeID:    emp.ScopeID,
		EmployeeID: emp.ID,
		TemplateID: plan.templateID,
		ManagerID:  emp.ManagerID,
		LastDay:    lastDay,
		ExitType:   exitType,
		Reason:     strings.TrimSpace(in.Reason),
		Status:     RunStatusScheduled,
		RequestKey: requestKey,
		CreatedBy:  sc.ActorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	result := &CreateOffboardingResult{
		Run:          run,
		Template:     plan.template,
		TasksPlanned: len(plan.taskTemplates),
	}

	var effects []Effect
	if plan.template != nil {
		s.generateDocuments(ctx, run, plan.template, result)
	}
	if len(plan.taskTemplates) > 0 {
		drafts := s.buildTasks(ctx, run, plan.taskTemplates, now, result)
		result.Tasks = s.materializeTasks(ctx, run, drafts, result)
		effects = append(effects, s.taskAssignedEffects(emp, run, result.Tasks)...)
	}

	if _, err := s.employees.UpdateLifecycle(ctx, employee.LifecycleUpdate{
		ScopeID:         emp.ScopeID,
		ID:              emp.ID,
		Status:          employee.StatusOffboarding,
		TerminationDate: &lastDay,
		UpdatedAt:       now,
	}); err != nil {
		return nil, fmt.Errorf("update employee: %w", err)
	}

	effects = append(effects, AuditEffect(AuditEntry{
		ScopeID:           run.ScopeID,
		EventType:         AuditRunCreated,
		EntityType:        EntityTypeRun,
		EntityID:          run.ID,
		RelatedEmployeeID: emp.ID,
		ActorID:           sc.ActorID,
		Description:       fmt.Sprintf("Offboarding started for %s (last day %s)", displayName(emp), FormatDate(lastDay)),
		Metadata: map[string]any{
			"template_id":   derefString(plan.templateID),
			"exit_type":     exitType,
			"tasks_created": len(result.Tasks),
			"tasks_failed":  result.TasksFailed,
		},
		OccurredAt: now,
	}))
	if emp.HasManager() {
		effects = append(effects, NotifyEffect(Notification{
			ScopeID:           run.ScopeID,
			RecipientID:       *emp.ManagerID,
			Type:              NotificationOffboardingStarted,
			Title:             "Offboarding started",
			Message:           fmt.Sprintf("Offboarding has started for %s. Last day: %s.", displayName(emp), FormatDate(lastDay)),
			Link:              s.runLink(run.ID),
			RelatedEmployeeID: emp.ID,
			RelatedRunID:      run.ID,
		}))
	}
	s.effects.Dispatch(ctx, effects...)

	s.logger.InfoContext(ctx, "offboarding run created",
		slog.String("scope_id", run.ScopeID),
		slog.String("run_id", run.ID),
		slog.String("employee_id", emp.ID),
		slog.Int("tasks_created", len(result.Tasks)),
		slog.Int("tasks_failed", result.TasksFailed),
		slog.Int("documents_failed", result.DocumentsFailed),
	)

	return result, nil
}

func (s *Service) replayCreate(ctx context.Context, run *Run) (*CreateOffboardingResult, error) {
	tasks, err := s.tasks.ListByRun(ctx, run.ScopeID, run.ID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "offboarding request replayed",
		slog.String("run_id", run.ID),
		slog.String("request_key", run.RequestKey),
	)
	return &CreateOffboardingResult{Run: run, Tasks: tasks, TasksPlanned: len(tasks), Replayed: true}, nil
}

func (s *Service) ensureNoActiveRun(ctx context.Context, scopeID, employeeID string) error {
	runs, err := s.runs.ListByEmployee(ctx, scopeID, employeeID)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if !run.Status.IsTerminal() {
			return ErrActiveRunExists
		}
	}
	return nil
}

// planTemplate は書き込み前にテンプレートとタスクテンプレートを読み込みます。
// テンプレート本体の取得失敗は許容され、書類生成のみがスキップされます。
func (s *Service) planTemplate(ctx context.Context, emp *employee.Employee, requested *string, autoResolve bool, exitType string) (templatePlan, error) {
	var plan templatePlan

	switch {
	case requested != nil && strings.TrimSpace(*requested) != "":
		id := strings.TrimSpace(*requested)
		plan.templateID = &id
		tpl, err := s.templates.FindByID(ctx, emp.ScopeID, id)
		if err != nil {
			s.logger.WarnContext(ctx, "offboarding template metadata unavailable, skipping documents",
				slog.String("template_id", id),
				slog.Any("error", err),
			)
		} else {
			plan.template = tpl
		}
	case autoResolve:
		candidates, err := s.templates.ListActive(ctx, emp.ScopeID)
		if err != nil {
			return plan, fmt.Errorf("list templates: %w", err)
		}
		tpl := SelectTemplate(emp, exitType, candidates)
		if tpl == nil {
			return plan, nil
		}
		plan.templateID = stringPtr(tpl.ID)
		plan.template = tpl
	default:
		return plan, nil
	}

	taskTemplates, err := s.taskTemplates.ListByTemplate(ctx, emp.ScopeID, *plan.templateID)
	if err != nil {
		return plan, fmt.Errorf("load task templates: %w", err)
	}
	sort.SliceStable(taskTemplates, func(i, j int) bool {
		return taskTemplates[i].OrderIndex < taskTemplates[j].OrderIndex
	})
	plan.taskTemplates = taskTemplates
	return plan, nil
}

func (s *Service) generateDocuments(ctx context.Context, run *Run, tpl *Template, result *CreateOffboardingResult) {
	refs := tpl.DocumentTemplateRefs()
	if len(refs) == 0 {
		return
	}
	if s.documents == nil {
		s.logger.WarnContext(ctx, "document generator not configured, skipping documents", slog.String("run_id", run.ID))
		return
	}

	for _, ref := range refs {
		doc, err := s.documents.Generate(ctx, DocumentRequest{
			ScopeID:            run.ScopeID,
			EmployeeID:         run.EmployeeID,
			RunID:              run.ID,
			DocumentTemplateID: ref.TemplateID,
			Kind:               ref.Kind,
			LastDay:            run.LastDay,
			ExitType:           run.ExitType,
			Reason:             run.Reason,
		})
		if err != nil {
			result.DocumentsFailed++
			s.logger.WarnContext(ctx, "document generation failed",
				slog.String("run_id", run.ID),
				slog.String("document_template_id", ref.TemplateID),
				slog.Any("error", err),
			)
			continue
		}
		result.Documents = append(result.Documents, doc)
	}
}

func (s *Service) buildTasks(ctx context.Context, run *Run, templates []*TaskTemplate, now time.Time, result *CreateOffboardingResult) []*Task {
	drafts := make([]*Task, 0, len(templates))
	for _, tt := range templates {
		role, ok := ParseRole(tt.AssignedRole)
		if !ok {
			s.logger.WarnContext(ctx, "coercing unrecognized task role to hr",
				slog.String("task_template_id", tt.ID),
				slog.String("role", tt.AssignedRole),
			)
			role = RoleHR
			result.RolesCoerced++
		}

		required := true
		if tt.Required != nil {
			required = *tt.Required
		}

		var due *time.Time
		if tt.DueOffsetDays != nil {
			d := run.LastDay.AddDate(0, 0, *tt.DueOffsetDays)
			due = &d
		}

		code := SystemCode(normalizeToken(string(tt.SystemCode)))
		if code != SystemCodeNone && !code.IsAutomated() {
			s.logger.WarnContext(ctx, "unrecognized system code kept without automation",
				slog.String("task_template_id", tt.ID),
				slog.String("system_code", string(code)),
			)
		}

		drafts = append(drafts, &Task{
			ScopeID:        run.ScopeID,
			RunID:          run.ID,
			TaskTemplateID: stringPtr(tt.ID),
			Title:          tt.Title,
			Description:    tt.Description,
			Category:       tt.Category,
			AssignedRole:   role,
			DueDate:        due,
			Required:       required,
			Link:           tt.Link,
			SystemCode:     code,
			OrderIndex:     tt.OrderIndex,
			Status:         TaskStatusNotStarted,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return drafts
}

// materializeTasks は一括作成を試み、失敗した場合は 1 件ずつ作成します。成功分のロールバックは行いません。
func (s *Service) materializeTasks(ctx context.Context, run *Run, drafts []*Task, result *CreateOffboardingResult) []*Task {
	created, err := s.tasks.BulkCreate(ctx, drafts)
	if err == nil {
		s.logger.InfoContext(ctx, "offboarding tasks created",
			slog.String("run_id", run.ID),
			slog.Int("created", len(created)),
		)
		return created
	}

	s.logger.WarnContext(ctx, "bulk task creation failed, creating individually",
		slog.String("run_id", run.ID),
		slog.Int("tasks", len(drafts)),
		slog.Any("error", err),
	)

	created = make([]*Task, 0, len(drafts))
	for _, draft := range drafts {
		task, err := s.tasks.Create(ctx, draft)
		if err != nil {
			result.TasksFailed++
			s.logger.ErrorContext(ctx, "task creation failed",
				slog.String("run_id", run.ID),
				slog.String("title", draft.Title),
				slog.Any("error", err),
			)
			continue
		}
		created = append(created, task)
	}

	level := slog.LevelInfo
	if result.TasksFailed > 0 {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "offboarding tasks created individually",
		slog.String("run_id", run.ID),
		slog.Int("created", len(created)),
		slog.Int("failed", result.TasksFailed),
		slog.Bool("partial", result.TasksFailed > 0),
	)
	return created
}

func (s *Service) taskAssignedEffects(emp *employee.Employee, run *Run, tasks []*Task) []Effect {
	effects := make([]Effect, 0, len(tasks))
	for _, task := range tasks {
		owner := resolveOwner(emp, task.AssignedRole)
		if owner == "" {
			continue
		}
		effects = append(effects, NotifyEffect(Notification{
			ScopeID:           run.ScopeID,
			RecipientID:       owner,
			Type:              NotificationTaskAssigned,
			Title:             "Offboarding task assigned",
			Message:           fmt.Sprintf("%q has been assigned to you for the offboarding of %s.", task.Title, displayName(emp)),
			Link:              s.runLink(run.ID),
			RelatedEmployeeID: emp.ID,
			RelatedRunID:      run.ID,
		}))
	}
	return effects
}

// resolveOwner はロールに応じた直接の担当者を返します。hr/it/finance には直接の担当者はいません。
func resolveOwner(emp *employee.Employee, role Role) string {
	switch role {
	case RoleEmployee:
		return emp.ID
	case RoleManager:
		if emp.HasManager() {
			return *emp.ManagerID
		}
		return ""
	case RoleHR, RoleIT, RoleFinance:
		return ""
	default:
		return ""
	}
}

func displayName(emp *employee.Employee) string {
	if emp == nil {
		return "unknown employee"
	}
	if name := strings.TrimSpace(emp.FullName); name != "" {
		return name
	}
	return emp.ID
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
