package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
	pgdb "github.com/ogurasousui/offboarding-engine/internal/platform/db/postgres"
)

const employeeColumns = `id, scope_id, entity_id, department_id, employment_type, manager_id, email, full_name, status, termination_date, created_at, updated_at`

// EmployeeRepository は PostgreSQL を利用した社員永続化の実装です。
type EmployeeRepository struct {
	pool pgdb.Queryer
}

// NewEmployeeRepository は EmployeeRepository を生成します。
func NewEmployeeRepository(pool pgdb.Queryer) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

// FindByID は ID で社員を取得します。スコープの検証は呼び出し側で行います。
func (r *EmployeeRepository) FindByID(ctx context.Context, id string) (*employee.Employee, error) {
	if !isUUID(id) {
		return nil, employee.ErrEmployeeNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+employeeColumns+`
          FROM employees
         WHERE id = $1
         LIMIT 1
    `, id)

	found, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return found, nil
}

// UpdateLifecycle は在籍状態と退職日を更新します。
func (r *EmployeeRepository) UpdateLifecycle(ctx context.Context, in employee.LifecycleUpdate) (*employee.Employee, error) {
	if !isUUID(in.ID) {
		return nil, employee.ErrEmployeeNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE employees
           SET status = $1,
               termination_date = $2,
               updated_at = $3
         WHERE id = $4 AND scope_id = $5
        RETURNING `+employeeColumns+`
    `,
		string(in.Status),
		nullableDate(in.TerminationDate),
		in.UpdatedAt,
		in.ID,
		in.ScopeID,
	)

	updated, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return updated, nil
}

func scanEmployee(row pgx.Row) (*employee.Employee, error) {
	var (
		id              string
		scopeID         string
		entityID        string
		departmentID    string
		employmentType  string
		managerID       sql.NullString
		email           string
		fullName        string
		status          string
		terminationDate sql.NullTime
		createdAt       time.Time
		updatedAt       time.Time
	)

	if err := row.Scan(
		&id,
		&scopeID,
		&entityID,
		&departmentID,
		&employmentType,
		&managerID,
		&email,
		&fullName,
		&status,
		&terminationDate,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, employee.ErrEmployeeNotFound
		}
		return nil, err
	}

	return &employee.Employee{
		ID:              id,
		ScopeID:         scopeID,
		EntityID:        entityID,
		DepartmentID:    departmentID,
		EmploymentType:  employmentType,
		ManagerID:       stringFromNull(managerID),
		Email:           email,
		FullName:        fullName,
		Status:          employee.Status(status),
		TerminationDate: dateFromNull(terminationDate),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func translateEmployeePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return employee.ErrEmployeeNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case checkViolationCode:
			return employee.ErrInvalidStatus
		case foreignKeyViolationCode:
			return employee.ErrEmployeeNotFound
		}
	}

	return err
}
