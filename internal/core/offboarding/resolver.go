package offboarding

import (
	"context"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
)

// テンプレート選択のスコア配分。
const (
	scoreEntityMatch         = 4
	scoreDepartmentMatch     = 2
	scoreEmploymentTypeMatch = 2
	scoreExitTypeMatch       = 3
	scoreDefault             = 1
)

// ResolveTemplateInput はテンプレート選択のプレビュー入力です。
type ResolveTemplateInput struct {
	EmployeeID string
	ExitType   string
}

// SelectTemplate は社員と退職種別に最も合致するテンプレートを返します。
// 事業体の制限が社員と一致しないテンプレートは除外され、同点の場合は入力順で先のものが選ばれます。
// 候補がなければ nil を返します。
func SelectTemplate(emp *employee.Employee, exitType string, candidates []*Template) *Template {
	if emp == nil {
		return nil
	}

	var (
		best      *Template
		bestScore = -1
	)
	for _, tpl := range candidates {
		if tpl == nil {
			continue
		}
		if tpl.EntityID != "" && tpl.EntityID != emp.EntityID {
			continue
		}
		score := ScoreTemplate(emp, exitType, tpl)
		if score > bestScore {
			best = tpl
			bestScore = score
		}
	}
	return best
}

// ScoreTemplate はテンプレートの合致度を計算します。
func ScoreTemplate(emp *employee.Employee, exitType string, tpl *Template) int {
	score := 0
	if tpl.EntityID != "" && tpl.EntityID == emp.EntityID {
		score += scoreEntityMatch
	}
	if tpl.DepartmentID != "" && tpl.DepartmentID == emp.DepartmentID {
		score += scoreDepartmentMatch
	}
	if tpl.EmploymentType != "" && normalizeToken(tpl.EmploymentType) == normalizeToken(emp.EmploymentType) {
		score += scoreEmploymentTypeMatch
	}
	if tpl.ExitType != "" && normalizeToken(tpl.ExitType) == normalizeToken(exitType) {
		score += scoreExitTypeMatch
	}
	if tpl.IsDefault {
		score += scoreDefault
	}
	return score
}

// ResolveTemplate はスコープ内の有効なテンプレートから最適なものを選択します。
// 該当がなければ ErrTemplateNotFound を返します。
func (s *Service) ResolveTemplate(ctx context.Context, sc ScopeContext, in ResolveTemplateInput) (*Template, error) {
	scopeID, err := requireScope(sc)
	if err != nil {
		return nil, err
	}
	employeeID, err := normalizeID(in.EmployeeID, ErrInvalidEmployeeID)
	if err != nil {
		return nil, err
	}

	var selected *Template
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		emp, err := s.loadScopedEmployee(txCtx, scopeID, employeeID)
		if err != nil {
			return err
		}
		candidates, err := s.templates.ListActive(txCtx, scopeID)
		if err != nil {
			return err
		}
		selected = SelectTemplate(emp, in.ExitType, candidates)
		return nil
	}); err != nil {
		return nil, err
	}

	if selected == nil {
		return nil, ErrTemplateNotFound
	}
	return selected, nil
}

// loadScopedEmployee は社員を取得し、スコープが呼び出し元と一致することを検証します。
func (s *Service) loadScopedEmployee(ctx context.Context, scopeID, employeeID string) (*employee.Employee, error) {
	emp, err := s.employees.FindByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if emp.ScopeID == "" {
		return nil, ErrScopeMissing
	}
	if emp.ScopeID != scopeID {
		return nil, ErrScopeMismatch
	}
	return emp, nil
}
