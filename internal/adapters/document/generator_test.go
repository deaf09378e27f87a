package document

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubTemplates struct {
	items map[string]*offboarding.DocumentTemplate
}

func (s *stubTemplates) FindByID(_ context.Context, scopeID, id string) (*offboarding.DocumentTemplate, error) {
	tpl, ok := s.items[id]
	if !ok || tpl.ScopeID != scopeID {
		return nil, offboarding.ErrDocumentTemplateNotFound
	}
	return tpl, nil
}

type stubDocuments struct {
	saved []*offboarding.Document
	err   error
}

func (s *stubDocuments) Create(_ context.Context, doc *offboarding.Document) (*offboarding.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	created := *doc
	created.ID = "doc-1"
	s.saved = append(s.saved, &created)
	return &created, nil
}

type stubEmployees struct {
	items map[string]*employee.Employee
}

func (s *stubEmployees) FindByID(_ context.Context, id string) (*employee.Employee, error) {
	emp, ok := s.items[id]
	if !ok {
		return nil, employee.ErrEmployeeNotFound
	}
	return emp, nil
}

func (s *stubEmployees) UpdateLifecycle(context.Context, employee.LifecycleUpdate) (*employee.Employee, error) {
	return nil, errors.New("not supported")
}

func newGenerator(docs *stubDocuments) *Generator {
	templates := &stubTemplates{items: map[string]*offboarding.DocumentTemplate{
		"letter": {ID: "letter", ScopeID: "org-1", Name: "Termination letter", Body: "Dear {{.EmployeeName}}, your last day is {{.LastDay}} ({{.ExitType}}). Issued {{.GeneratedOn}}."},
		"broken": {ID: "broken", ScopeID: "org-1", Name: "Broken", Body: "{{.Salary}}"},
	}}
	employees := &stubEmployees{items: map[string]*employee.Employee{
		"emp-1":   {ID: "emp-1", ScopeID: "org-1", FullName: "Taro Yamada"},
		"emp-org": {ID: "emp-org", ScopeID: "org-2", FullName: "Other"},
	}}
	return NewGenerator(templates, docs, employees, fixedClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)})
}

func TestGenerator_Generate(t *testing.T) {
	t.Parallel()

	docs := &stubDocuments{}
	gen := newGenerator(docs)

	doc, err := gen.Generate(context.Background(), offboarding.DocumentRequest{
		ScopeID:            "org-1",
		EmployeeID:         "emp-1",
		RunID:              "run-1",
		DocumentTemplateID: "letter",
		Kind:               offboarding.DocumentKindTerminationLetter,
		LastDay:            time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		ExitType:           "voluntary",
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	want := "Dear Taro Yamada, your last day is 2024-06-30 (voluntary). Issued 2024-06-01."
	if doc.Body != want {
		t.Fatalf("unexpected body:\n got: %q\nwant: %q", doc.Body, want)
	}
	if doc.ID != "doc-1" || doc.Title != "Termination letter" || doc.Kind != offboarding.DocumentKindTerminationLetter {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.ScopeID != "org-1" || doc.RunID != "run-1" || doc.DocumentTemplateID != "letter" {
		t.Fatalf("unexpected references: %+v", doc)
	}
}

func TestGenerator_GenerateErrors(t *testing.T) {
	t.Parallel()

	saveErr := errors.New("insert failed")
	cases := []struct {
		name     string
		req      offboarding.DocumentRequest
		saveErr  error
		wantErr  error
		contains string
	}{
		{
			name:    "unknown template",
			req:     offboarding.DocumentRequest{ScopeID: "org-1", EmployeeID: "emp-1", DocumentTemplateID: "missing"},
			wantErr: offboarding.ErrDocumentTemplateNotFound,
		},
		{
			name:    "template from another scope",
			req:     offboarding.DocumentRequest{ScopeID: "org-2", EmployeeID: "emp-org", DocumentTemplateID: "letter"},
			wantErr: offboarding.ErrDocumentTemplateNotFound,
		},
		{
			name:    "employee from another scope",
			req:     offboarding.DocumentRequest{ScopeID: "org-1", EmployeeID: "emp-org", DocumentTemplateID: "letter"},
			wantErr: employee.ErrEmployeeNotFound,
		},
		{
			name:     "render failure",
			req:      offboarding.DocumentRequest{ScopeID: "org-1", EmployeeID: "emp-1", DocumentTemplateID: "broken"},
			contains: "render template",
		},
		{
			name:    "save failure",
			req:     offboarding.DocumentRequest{ScopeID: "org-1", EmployeeID: "emp-1", DocumentTemplateID: "letter"},
			saveErr: saveErr,
			wantErr: saveErr,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			docs := &stubDocuments{err: tc.saveErr}
			_, err := newGenerator(docs).Generate(context.Background(), tc.req)
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.contains != "" && !strings.Contains(err.Error(), tc.contains) {
				t.Fatalf("expected error containing %q, got %v", tc.contains, err)
			}
			if len(docs.saved) != 0 {
				t.Fatalf("expected nothing saved")
			}
		})
	}
}

func TestRender_ParseError(t *testing.T) {
	t.Parallel()

	if _, err := Render("bad", "{{.EmployeeName", Data{}); err == nil || !strings.Contains(err.Error(), "parse template") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
