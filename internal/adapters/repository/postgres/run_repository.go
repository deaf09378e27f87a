package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	pgdb "github.com/ogurasousui/offboarding-engine/internal/platform/db/postgres"
)

const (
	runColumns              = `id, scope_id, employee_id, template_id, manager_id, last_day, exit_type, reason, status, request_key, created_by, created_at, updated_at, completed_at`
	runRequestKeyConstraint = "offboarding_runs_request_key_key"
)

// RunRepository は退職ランの永続化を提供します。
type RunRepository struct {
	pool pgdb.Queryer
}

// NewRunRepository は RunRepository を生成します。
func NewRunRepository(pool pgdb.Queryer) *RunRepository {
	return &RunRepository{pool: pool}
}

// Create はランを新規作成します。
func (r *RunRepository) Create(ctx context.Context, run *offboarding.Run) (*offboarding.Run, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO offboarding_runs (scope_id, employee_id, template_id, manager_id, last_day, exit_type, reason, status, request_key, created_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING `+runColumns+`
    `,
		run.ScopeID,
		run.EmployeeID,
		nullableString(run.TemplateID),
		nullableString(run.ManagerID),
		toDate(run.LastDay),
		run.ExitType,
		run.Reason,
		string(run.Status),
		run.RequestKey,
		run.CreatedBy,
		run.CreatedAt,
		run.UpdatedAt,
	)

	created, err := scanRun(row)
	if err != nil {
		return nil, translateRunPgError(err)
	}
	return created, nil
}

// FindByID はスコープ内のランを取得します。
func (r *RunRepository) FindByID(ctx context.Context, scopeID, id string) (*offboarding.Run, error) {
	return r.findByID(ctx, scopeID, id, "")
}

// LockByID は FOR UPDATE でランの行ロックを取得して返します。ロックはトランザクション終了まで保持されます。
func (r *RunRepository) LockByID(ctx context.Context, scopeID, id string) (*offboarding.Run, error) {
	return r.findByID(ctx, scopeID, id, " FOR UPDATE")
}

func (r *RunRepository) findByID(ctx context.Context, scopeID, id, lockClause string) (*offboarding.Run, error) {
	if !isUUID(id) {
		return nil, offboarding.ErrRunNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+runColumns+`
          FROM offboarding_runs
         WHERE scope_id = $1 AND id = $2
         LIMIT 1`+lockClause, scopeID, id)

	found, err := scanRun(row)
	if err != nil {
		return nil, translateRunPgError(err)
	}
	return found, nil
}

// FindByRequestKey は冪等キーでランを取得します。
func (r *RunRepository) FindByRequestKey(ctx context.Context, scopeID, key string) (*offboarding.Run, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+runColumns+`
          FROM offboarding_runs
         WHERE scope_id = $1 AND request_key = $2
         LIMIT 1
    `, scopeID, key)

	found, err := scanRun(row)
	if err != nil {
		return nil, translateRunPgError(err)
	}
	return found, nil
}

// ListByEmployee は社員のランを新しい順に返します。
func (r *RunRepository) ListByEmployee(ctx context.Context, scopeID, employeeID string) ([]*offboarding.Run, error) {
	if !isUUID(employeeID) {
		return nil, nil
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT `+runColumns+`
          FROM offboarding_runs
         WHERE scope_id = $1 AND employee_id = $2
         ORDER BY created_at DESC, id DESC
    `, scopeID, employeeID)
	if err != nil {
		return nil, translateRunPgError(err)
	}
	defer rows.Close()

	var runs []*offboarding.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, translateRunPgError(err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, translateRunPgError(err)
	}
	return runs, nil
}

// UpdateStatus はランの状態を更新します。
func (r *RunRepository) UpdateStatus(ctx context.Context, in offboarding.RunStatusUpdate) (*offboarding.Run, error) {
	if !isUUID(in.ID) {
		return nil, offboarding.ErrRunNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE offboarding_runs
           SET status = $1,
               completed_at = $2,
               updated_at = $3
         WHERE scope_id = $4 AND id = $5
        RETURNING `+runColumns+`
    `,
		string(in.Status),
		nullableTimestamp(in.CompletedAt),
		in.UpdatedAt,
		in.ScopeID,
		in.ID,
	)

	updated, err := scanRun(row)
	if err != nil {
		return nil, translateRunPgError(err)
	}
	return updated, nil
}

// MarkCompleted は状態が from のままのランを完了にします。別の処理が先に状態を変えていれば false を返し、何も更新しません。
func (r *RunRepository) MarkCompleted(ctx context.Context, scopeID, id string, from offboarding.RunStatus, at time.Time) (bool, error) {
	if !isUUID(id) {
		return false, offboarding.ErrRunNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, `
        UPDATE offboarding_runs
           SET status = 'completed',
               completed_at = $1,
               updated_at = $1
         WHERE scope_id = $2 AND id = $3
           AND status = $4
    `, at.UTC(), scopeID, id, string(from))
	if err != nil {
		return false, translateRunPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanRun(row pgx.Row) (*offboarding.Run, error) {
	var (
		run         offboarding.Run
		templateID  sql.NullString
		managerID   sql.NullString
		lastDay     time.Time
		status      string
		completedAt sql.NullTime
	)

	if err := row.Scan(
		&run.ID,
		&run.ScopeID,
		&run.EmployeeID,
		&templateID,
		&managerID,
		&lastDay,
		&run.ExitType,
		&run.Reason,
		&status,
		&run.RequestKey,
		&run.CreatedBy,
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, offboarding.ErrRunNotFound
		}
		return nil, err
	}

	run.TemplateID = stringFromNull(templateID)
	run.ManagerID = stringFromNull(managerID)
	run.LastDay = toDate(lastDay.UTC())
	run.Status = offboarding.RunStatus(status)
	run.CompletedAt = timestampFromNull(completedAt)
	return &run, nil
}

func translateRunPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return offboarding.ErrRunNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			if pgErr.ConstraintName == runRequestKeyConstraint {
				return offboarding.ErrRequestKeyDuplicate
			}
			return err
		case foreignKeyViolationCode:
			switch pgErr.ConstraintName {
			case "offboarding_runs_employee_id_fkey":
				return employee.ErrEmployeeNotFound
			case "offboarding_runs_template_id_fkey":
				return offboarding.ErrTemplateNotFound
			default:
				return err
			}
		case checkViolationCode:
			return offboarding.ErrRunTransition
		}
	}

	return err
}
