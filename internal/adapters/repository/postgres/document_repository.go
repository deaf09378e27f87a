package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	pgdb "github.com/ogurasousui/offboarding-engine/internal/platform/db/postgres"
)

// DocumentTemplateRepository は書類テンプレートの読み取りを提供します。
type DocumentTemplateRepository struct {
	pool pgdb.Queryer
}

// NewDocumentTemplateRepository は DocumentTemplateRepository を生成します。
func NewDocumentTemplateRepository(pool pgdb.Queryer) *DocumentTemplateRepository {
	return &DocumentTemplateRepository{pool: pool}
}

// FindByID はスコープ内の書類テンプレートを取得します。
func (r *DocumentTemplateRepository) FindByID(ctx context.Context, scopeID, id string) (*offboarding.DocumentTemplate, error) {
	if !isUUID(id) {
		return nil, offboarding.ErrDocumentTemplateNotFound
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT id, scope_id, name, body
          FROM document_templates
         WHERE scope_id = $1 AND id = $2
         LIMIT 1
    `, scopeID, id)

	var tpl offboarding.DocumentTemplate
	if err := row.Scan(&tpl.ID, &tpl.ScopeID, &tpl.Name, &tpl.Body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, offboarding.ErrDocumentTemplateNotFound
		}
		return nil, err
	}
	return &tpl, nil
}

// DocumentRepository は生成済み書類の永続化を提供します。
type DocumentRepository struct {
	pool pgdb.Queryer
}

// NewDocumentRepository は DocumentRepository を生成します。
func NewDocumentRepository(pool pgdb.Queryer) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// Create は書類を保存します。
func (r *DocumentRepository) Create(ctx context.Context, doc *offboarding.Document) (*offboarding.Document, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO documents (scope_id, employee_id, run_id, document_template_id, kind, title, body, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at
    `,
		doc.ScopeID,
		doc.EmployeeID,
		nullableString(&doc.RunID),
		nullableString(&doc.DocumentTemplateID),
		string(doc.Kind),
		doc.Title,
		doc.Body,
		doc.CreatedAt,
	)

	created := *doc
	if err := row.Scan(&created.ID, &created.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode {
			return nil, offboarding.ErrRunNotFound
		}
		return nil, err
	}
	return &created, nil
}
