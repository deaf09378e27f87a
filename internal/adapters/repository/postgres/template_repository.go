package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	pgdb "github.com/ogurasousui/offboarding-engine/internal/platform/db/postgres"
)

const templateSelect = `
        SELECT t.id,
               t.scope_id,
               t.name,
               t.entity_id,
               t.department_id,
               t.employment_type,
               t.exit_type,
               t.is_default,
               t.is_active,
               t.termination_letter_template_id,
               COALESCE(array_agg(d.document_template_id::text ORDER BY d.position) FILTER (WHERE d.document_template_id IS NOT NULL), '{}'),
               t.created_at,
               t.updated_at
          FROM offboarding_templates t
          LEFT JOIN offboarding_template_documents d ON d.template_id = t.id`

// TemplateRepository は退職テンプレートの読み取りを提供します。
type TemplateRepository struct {
	pool pgdb.Queryer
}

// NewTemplateRepository は TemplateRepository を生成します。
func NewTemplateRepository(pool pgdb.Queryer) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// FindByID はスコープ内のテンプレートを取得します。
func (r *TemplateRepository) FindByID(ctx context.Context, scopeID, id string) (*offboarding.Template, error) {
	if !isUUID(id) {
		return nil, offboarding.ErrTemplateNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, templateSelect+`
         WHERE t.scope_id = $1 AND t.id = $2
         GROUP BY t.id
    `, scopeID, id)

	tpl, err := scanTemplate(row)
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// ListActive はスコープ内の有効なテンプレートを作成順に返します。
// 返却順はテンプレート選択の同点判定に使われます。
func (r *TemplateRepository) ListActive(ctx context.Context, scopeID string) ([]*offboarding.Template, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, templateSelect+`
         WHERE t.scope_id = $1 AND t.is_active
         GROUP BY t.id
         ORDER BY t.created_at, t.id
    `, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*offboarding.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

func scanTemplate(row pgx.Row) (*offboarding.Template, error) {
	var (
		tpl        offboarding.Template
		letterID   sql.NullString
		exitDocIDs []string
		createdAt  time.Time
		updatedAt  time.Time
	)

	if err := row.Scan(
		&tpl.ID,
		&tpl.ScopeID,
		&tpl.Name,
		&tpl.EntityID,
		&tpl.DepartmentID,
		&tpl.EmploymentType,
		&tpl.ExitType,
		&tpl.IsDefault,
		&tpl.IsActive,
		&letterID,
		&exitDocIDs,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, offboarding.ErrTemplateNotFound
		}
		return nil, err
	}

	if letterID.Valid {
		tpl.TerminationLetterTemplateID = letterID.String
	}
	tpl.ExitDocumentTemplateIDs = exitDocIDs
	tpl.CreatedAt = createdAt
	tpl.UpdatedAt = updatedAt
	return &tpl, nil
}

// TaskTemplateRepository はタスクテンプレートの読み取りを提供します。
type TaskTemplateRepository struct {
	pool pgdb.Queryer
}

// NewTaskTemplateRepository は TaskTemplateRepository を生成します。
func NewTaskTemplateRepository(pool pgdb.Queryer) *TaskTemplateRepository {
	return &TaskTemplateRepository{pool: pool}
}

// ListByTemplate はテンプレートに属するタスクテンプレートを order_index 順に返します。
func (r *TaskTemplateRepository) ListByTemplate(ctx context.Context, scopeID, templateID string) ([]*offboarding.TaskTemplate, error) {
	if !isUUID(templateID) {
		return nil, nil
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT id, template_id, scope_id, title, description, category, assigned_role, required, order_index, due_offset_days, system_code, link
          FROM offboarding_task_templates
         WHERE scope_id = $1 AND template_id = $2
         ORDER BY order_index, id
    `, scopeID, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*offboarding.TaskTemplate
	for rows.Next() {
		var (
			tt         offboarding.TaskTemplate
			required   sql.NullBool
			offset     sql.NullInt32
			systemCode string
		)
		if err := rows.Scan(
			&tt.ID,
			&tt.TemplateID,
			&tt.ScopeID,
			&tt.Title,
			&tt.Description,
			&tt.Category,
			&tt.AssignedRole,
			&required,
			&tt.OrderIndex,
			&offset,
			&systemCode,
			&tt.Link,
		); err != nil {
			return nil, err
		}
		if required.Valid {
			v := required.Bool
			tt.Required = &v
		}
		if offset.Valid {
			v := int(offset.Int32)
			tt.DueOffsetDays = &v
		}
		tt.SystemCode = offboarding.SystemCode(systemCode)
		items = append(items, &tt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
