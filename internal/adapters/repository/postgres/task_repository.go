package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	pgdb "github.com/ogurasousui/offboarding-engine/internal/platform/db/postgres"
)

const (
	taskColumns       = `id, scope_id, run_id, task_template_id, title, description, category, assigned_role, assigned_employee_id, due_date, required, link, system_code, order_index, status, blocked_reason, completed_at, created_at, updated_at`
	taskInsertColumns = `scope_id, run_id, task_template_id, title, description, category, assigned_role, assigned_employee_id, due_date, required, link, system_code, order_index, status, blocked_reason, completed_at, created_at, updated_at`
	taskInsertArity   = 18
)

// TaskRepository はタスクインスタンスの永続化を提供します。
type TaskRepository struct {
	pool pgdb.Queryer
}

// NewTaskRepository は TaskRepository を生成します。
func NewTaskRepository(pool pgdb.Queryer) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// FindByID は ID でタスクを取得します。スコープはレコード自身の値で呼び出し側が検証します。
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*offboarding.Task, error) {
	return r.findByID(ctx, id, "")
}

// LockByID は FOR UPDATE でタスクの行ロックを取得して返します。
func (r *TaskRepository) LockByID(ctx context.Context, id string) (*offboarding.Task, error) {
	return r.findByID(ctx, id, " FOR UPDATE")
}

func (r *TaskRepository) findByID(ctx context.Context, id, lockClause string) (*offboarding.Task, error) {
	if !isUUID(id) {
		return nil, offboarding.ErrTaskNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+taskColumns+`
          FROM offboarding_tasks
         WHERE id = $1
         LIMIT 1`+lockClause, id)

	found, err := scanTask(row)
	if err != nil {
		return nil, translateTaskPgError(err)
	}
	return found, nil
}

// ListByRun はランのタスクを order_index 順に返します。
func (r *TaskRepository) ListByRun(ctx context.Context, scopeID, runID string) ([]*offboarding.Task, error) {
	if !isUUID(runID) {
		return nil, nil
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT `+taskColumns+`
          FROM offboarding_tasks
         WHERE scope_id = $1 AND run_id = $2
         ORDER BY order_index, created_at, id
    `, scopeID, runID)
	if err != nil {
		return nil, translateTaskPgError(err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// Create はタスクを 1 件作成します。
func (r *TaskRepository) Create(ctx context.Context, task *offboarding.Task) (*offboarding.Task, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO offboarding_tasks (`+taskInsertColumns+`)
        VALUES `+insertPlaceholders(1, taskInsertArity)+`
        RETURNING `+taskColumns+`
    `, taskInsertArgs(task)...)

	created, err := scanTask(row)
	if err != nil {
		return nil, translateTaskPgError(err)
	}
	return created, nil
}

// BulkCreate は複数のタスクを 1 回の INSERT で作成します。いずれかが失敗した場合は 1 件も作成されません。
func (r *TaskRepository) BulkCreate(ctx context.Context, tasks []*offboarding.Task) ([]*offboarding.Task, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(tasks)*taskInsertArity)
	for _, task := range tasks {
		args = append(args, taskInsertArgs(task)...)
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        INSERT INTO offboarding_tasks (`+taskInsertColumns+`)
        VALUES `+insertPlaceholders(len(tasks), taskInsertArity)+`
        RETURNING `+taskColumns+`
    `, args...)
	if err != nil {
		return nil, translateTaskPgError(err)
	}
	defer rows.Close()

	created, err := collectTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(created) != len(tasks) {
		return nil, errors.New("postgres: bulk task insert returned unexpected row count")
	}
	return created, nil
}

// Update はタスクの可変項目を更新します。
func (r *TaskRepository) Update(ctx context.Context, task *offboarding.Task) (*offboarding.Task, error) {
	if !isUUID(task.ID) {
		return nil, offboarding.ErrTaskNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE offboarding_tasks
           SET assigned_role = $1,
               assigned_employee_id = $2,
               due_date = $3,
               status = $4,
               blocked_reason = $5,
               completed_at = $6,
               updated_at = $7
         WHERE scope_id = $8 AND id = $9
        RETURNING `+taskColumns+`
    `,
		string(task.AssignedRole),
		nullableString(task.AssignedEmployeeID),
		nullableDate(task.DueDate),
		string(task.Status),
		nullableString(task.BlockedReason),
		nullableTimestamp(task.CompletedAt),
		task.UpdatedAt,
		task.ScopeID,
		task.ID,
	)

	updated, err := scanTask(row)
	if err != nil {
		return nil, translateTaskPgError(err)
	}
	return updated, nil
}

// MarkCompleted は未完了のタスクを完了にします。担当者や期限など他の列は更新しません。
// 既に完了していれば false を返します。
func (r *TaskRepository) MarkCompleted(ctx context.Context, scopeID, id string, at time.Time) (bool, error) {
	if !isUUID(id) {
		return false, offboarding.ErrTaskNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, `
        UPDATE offboarding_tasks
           SET status = 'completed',
               blocked_reason = NULL,
               completed_at = $1,
               updated_at = $1
         WHERE scope_id = $2 AND id = $3
           AND status <> 'completed'
    `, at.UTC(), scopeID, id)
	if err != nil {
		return false, translateTaskPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// insertPlaceholders は ($1, $2, ...), ($n+1, ...) 形式の VALUES 句を生成します。
func insertPlaceholders(rows, arity int) string {
	var b strings.Builder
	n := 1
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < arity; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$" + strconv.Itoa(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func taskInsertArgs(task *offboarding.Task) []any {
	return []any{
		task.ScopeID,
		task.RunID,
		nullableString(task.TaskTemplateID),
		task.Title,
		task.Description,
		task.Category,
		string(task.AssignedRole),
		nullableString(task.AssignedEmployeeID),
		nullableDate(task.DueDate),
		task.Required,
		task.Link,
		string(task.SystemCode),
		task.OrderIndex,
		string(task.Status),
		nullableString(task.BlockedReason),
		nullableTimestamp(task.CompletedAt),
		task.CreatedAt,
		task.UpdatedAt,
	}
}

func collectTasks(rows pgx.Rows) ([]*offboarding.Task, error) {
	var tasks []*offboarding.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, translateTaskPgError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, translateTaskPgError(err)
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (*offboarding.Task, error) {
	var (
		task           offboarding.Task
		taskTemplateID sql.NullString
		role           string
		assignee       sql.NullString
		dueDate        sql.NullTime
		systemCode     string
		status         string
		blockedReason  sql.NullString
		completedAt    sql.NullTime
	)

	if err := row.Scan(
		&task.ID,
		&task.ScopeID,
		&task.RunID,
		&taskTemplateID,
		&task.Title,
		&task.Description,
		&task.Category,
		&role,
		&assignee,
		&dueDate,
		&task.Required,
		&task.Link,
		&systemCode,
		&task.OrderIndex,
		&status,
		&blockedReason,
		&completedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, offboarding.ErrTaskNotFound
		}
		return nil, err
	}

	task.TaskTemplateID = stringFromNull(taskTemplateID)
	task.AssignedRole = offboarding.Role(role)
	task.AssignedEmployeeID = stringFromNull(assignee)
	task.DueDate = dateFromNull(dueDate)
	task.SystemCode = offboarding.SystemCode(systemCode)
	task.Status = offboarding.TaskStatus(status)
	task.BlockedReason = stringFromNull(blockedReason)
	task.CompletedAt = timestampFromNull(completedAt)
	return &task, nil
}

func translateTaskPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return offboarding.ErrTaskNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case foreignKeyViolationCode:
			if pgErr.ConstraintName == "offboarding_tasks_run_id_fkey" {
				return offboarding.ErrRunNotFound
			}
			return err
		case checkViolationCode:
			if pgErr.ConstraintName == "offboarding_tasks_role_check" {
				return offboarding.ErrInvalidRole
			}
			return offboarding.ErrTaskTransition
		}
	}

	return err
}
