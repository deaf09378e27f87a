package document

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Generator は保存済みの書類テンプレートを社員の情報で描画し、書類として保存します。
type Generator struct {
	templates offboarding.DocumentTemplateRepository
	documents offboarding.DocumentRepository
	employees employee.Repository
	clock     Clock
}

// NewGenerator は Generator を生成します。clock が nil の場合はシステム時刻を使います。
func NewGenerator(templates offboarding.DocumentTemplateRepository, documents offboarding.DocumentRepository, employees employee.Repository, clock Clock) *Generator {
	if clock == nil {
		clock = systemClock{}
	}
	return &Generator{templates: templates, documents: documents, employees: employees, clock: clock}
}

// Data はテンプレート本文に渡される値です。
type Data struct {
	EmployeeID     string
	EmployeeName   string
	EmployeeEmail  string
	DepartmentID   string
	EmploymentType string
	LastDay        string
	ExitType       string
	Reason         string
	RunID          string
	GeneratedOn    string
}

// Generate は書類を 1 件生成して保存します。
func (g *Generator) Generate(ctx context.Context, req offboarding.DocumentRequest) (*offboarding.Document, error) {
	tpl, err := g.templates.FindByID(ctx, req.ScopeID, req.DocumentTemplateID)
	if err != nil {
		return nil, fmt.Errorf("document: load template %s: %w", req.DocumentTemplateID, err)
	}

	emp, err := g.employees.FindByID(ctx, req.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("document: load employee %s: %w", req.EmployeeID, err)
	}
	if emp.ScopeID != req.ScopeID {
		return nil, fmt.Errorf("document: load employee %s: %w", req.EmployeeID, employee.ErrEmployeeNotFound)
	}

	now := g.clock.Now()
	body, err := Render(tpl.Name, tpl.Body, Data{
		EmployeeID:     emp.ID,
		EmployeeName:   emp.FullName,
		EmployeeEmail:  emp.Email,
		DepartmentID:   emp.DepartmentID,
		EmploymentType: emp.EmploymentType,
		LastDay:        offboarding.FormatDate(req.LastDay),
		ExitType:       req.ExitType,
		Reason:         req.Reason,
		RunID:          req.RunID,
		GeneratedOn:    offboarding.FormatDate(now),
	})
	if err != nil {
		return nil, err
	}

	doc, err := g.documents.Create(ctx, &offboarding.Document{
		ScopeID:            req.ScopeID,
		EmployeeID:         emp.ID,
		RunID:              req.RunID,
		DocumentTemplateID: tpl.ID,
		Kind:               req.Kind,
		Title:              tpl.Name,
		Body:               body,
		CreatedAt:          now,
	})
	if err != nil {
		return nil, fmt.Errorf("document: save %s: %w", tpl.ID, err)
	}
	return doc, nil
}

// Render は text/template 形式の本文を描画します。未定義のフィールド参照はエラーになります。
func Render(name, body string, data Data) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return "", fmt.Errorf("document: parse template %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("document: render template %q: %w", name, err)
	}
	return buf.String(), nil
}
