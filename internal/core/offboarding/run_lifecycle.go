package offboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
)

// PauseRun はランを下書きに戻します。
func (s *Service) PauseRun(ctx context.Context, sc ScopeContext, runID string) (*Run, error) {
	return s.transitionRun(ctx, sc, runID, RunEventPause)
}

// StartRun はランを進行中にします。
func (s *Service) StartRun(ctx context.Context, sc ScopeContext, runID string) (*Run, error) {
	return s.transitionRun(ctx, sc, runID, RunEventStart)
}

func (s *Service) transitionRun(ctx context.Context, sc ScopeContext, runID string, event RunEvent) (*Run, error) {
	scopeID, err := requireScope(sc)
	if err != nil {
		return nil, err
	}
	id, err := normalizeID(runID, ErrInvalidID)
	if err != nil {
		return nil, err
	}

	var (
		updated *Run
		from    RunStatus
	)
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		run, err := s.runs.LockByID(txCtx, scopeID, id)
		if err != nil {
			return err
		}
		next, ok := NextRunStatus(run.Status, event)
		if !ok {
			return fmt.Errorf("%s from %s: %w", event, run.Status, ErrRunTransition)
		}
		from = run.Status

		result, err := s.runs.UpdateStatus(txCtx, RunStatusUpdate{
			ScopeID:   scopeID,
			ID:        id,
			Status:    next,
			UpdatedAt: s.clock.Now(),
		})
		if err != nil {
			return err
		}
		updated = result
		return nil
	}); err != nil {
		return nil, err
	}

	s.effects.Dispatch(ctx, AuditEffect(AuditEntry{
		ScopeID:           updated.ScopeID,
		EventType:         AuditRunStatusChanged,
		EntityType:        EntityTypeRun,
		EntityID:          updated.ID,
		RelatedEmployeeID: updated.EmployeeID,
		ActorID:           sc.ActorID,
		Description:       fmt.Sprintf("Offboarding %s: %s -> %s", event, from, updated.Status),
		Metadata:          map[string]any{"from": string(from), "to": string(updated.Status)},
		OccurredAt:        updated.UpdatedAt,
	}))
	return updated, nil
}

// CancelRun はランをキャンセルし、社員を在籍状態に戻します。
// タスクは変更されず、完了済みのタスクは監査のため完了のまま残ります。
func (s *Service) CancelRun(ctx context.Context, sc ScopeContext, runID string) (*Run, error) {
	scopeID, err := requireScope(sc)
	if err != nil {
		return nil, err
	}
	id, err := normalizeID(runID, ErrInvalidID)
	if err != nil {
		return nil, err
	}

	var cancelled *Run
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		run, err := s.runs.LockByID(txCtx, scopeID, id)
		if err != nil {
			return err
		}
		next, ok := NextRunStatus(run.Status, RunEventCancel)
		if !ok {
			return fmt.Errorf("cancel from %s: %w", run.Status, ErrRunTransition)
		}

		now := s.clock.Now()
		result, err := s.runs.UpdateStatus(txCtx, RunStatusUpdate{
			ScopeID:   scopeID,
			ID:        id,
			Status:    next,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}

		if _, err := s.employees.UpdateLifecycle(txCtx, employee.LifecycleUpdate{
			ScopeID:   scopeID,
			ID:        run.EmployeeID,
			Status:    employee.StatusActive,
			UpdatedAt: now,
		}); err != nil {
			if !errors.Is(err, employee.ErrEmployeeNotFound) {
				return fmt.Errorf("restore employee: %w", err)
			}
			s.logger.WarnContext(txCtx, "cancelled run references missing employee",
				slog.String("run_id", run.ID),
				slog.String("employee_id", run.EmployeeID),
			)
		}

		cancelled = result
		return nil
	}); err != nil {
		return nil, err
	}

	s.effects.Dispatch(ctx, AuditEffect(AuditEntry{
		ScopeID:           cancelled.ScopeID,
		EventType:         AuditRunCancelled,
		EntityType:        EntityTypeRun,
		EntityID:          cancelled.ID,
		RelatedEmployeeID: cancelled.EmployeeID,
		ActorID:           sc.ActorID,
		Description:       "Offboarding cancelled, employee restored to active",
		OccurredAt:        cancelled.UpdatedAt,
	}))
	return cancelled, nil
}

// GetProgress はタスク全体と必須タスクの完了状況を集計します。
func (s *Service) GetProgress(ctx context.Context, sc ScopeContext, runID string) (*Progress, error) {
	scopeID, err := requireScope(sc)
	if err != nil {
		return nil, err
	}
	id, err := normalizeID(runID, ErrInvalidID)
	if err != nil {
		return nil, err
	}

	var tasks []*Task
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		if _, err := s.runs.FindByID(txCtx, scopeID, id); err != nil {
			return err
		}
		found, err := s.tasks.ListByRun(txCtx, scopeID, id)
		if err != nil {
			return err
		}
		tasks = found
		return nil
	}); err != nil {
		return nil, err
	}

	return computeProgress(id, tasks), nil
}

func computeProgress(runID string, tasks []*Task) *Progress {
	p := &Progress{RunID: runID}
	for _, task := range tasks {
		done := task.Status == TaskStatusCompleted
		p.Total++
		if done {
			p.Completed++
		}
		if task.Required {
			p.RequiredTotal++
			if done {
				p.RequiredCompleted++
			}
		}
	}
	p.Percent = percent(p.Completed, p.Total)
	p.RequiredPercent = percent(p.RequiredCompleted, p.RequiredTotal)
	return p
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}

// GetRun はランを取得します。
func (s *Service) GetRun(ctx context.Context, sc ScopeContext, runID string) (*Run, error) {
	scopeID, err := requireScope(sc)
	if err != nil {
		return nil, err
	}
	id, err := normalizeID(runID, ErrInvalidID)
	if err != nil {
		return nil, err
	}

	var run *Run
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.runs.FindByID(txCtx, scopeID, id)
		if err != nil {
			return err
		}
		run = found
		return nil
	}); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRunTasks はランのタスクを order index 順に返します。
func (s *Service) ListRunTasks(ctx context.Context, sc ScopeContext, runID string) ([]*Task, error) {
	scopeID, err := requireScope(sc)
	if err != nil {
		return nil, err
	}
	id, err := normalizeID(runID, ErrInvalidID)
	if err != nil {
		return nil, err
	}

	var tasks []*Task
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		if _, err := s.runs.FindByID(txCtx, scopeID, id); err != nil {
			return err
		}
		found, err := s.tasks.ListByRun(txCtx, scopeID, id)
		if err != nil {
			return err
		}
		tasks = found
		return nil
	}); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListRuns は社員のランを新しい順に返します。
func (s *Service) ListRuns(ctx context.Context, sc ScopeContext, employeeID string) ([]*Run, error) {
	scopeID, err := requireScope(sc)
	if err != nil {
		return nil, err
	}
	id, err := normalizeID(employeeID, ErrInvalidEmployeeID)
	if err != nil {
		return nil, err
	}

	var runs []*Run
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.runs.ListByEmployee(txCtx, scopeID, id)
		if err != nil {
			return err
		}
		runs = found
		return nil
	}); err != nil {
		return nil, err
	}
	return runs, nil
}
