package offboarding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
)

type stubClock struct {
	now time.Time
}

func (s *stubClock) Now() time.Time {
	return s.now
}

type fakeEmployeeRepo struct {
	mu        sync.Mutex
	employees map[string]*employee.Employee
	updateErr error
	updates   int
}

func newFakeEmployeeRepo(emps ...*employee.Employee) *fakeEmployeeRepo {
	r := &fakeEmployeeRepo{employees: make(map[string]*employee.Employee)}
	for _, e := range emps {
		r.employees[e.ID] = cloneEmployee(e)
	}
	return r
}

func (r *fakeEmployeeRepo) FindByID(_ context.Context, id string) (*employee.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	emp, ok := r.employees[id]
	if !ok {
		return nil, employee.ErrEmployeeNotFound
	}
	return cloneEmployee(emp), nil
}

func (r *fakeEmployeeRepo) UpdateLifecycle(_ context.Context, in employee.LifecycleUpdate) (*employee.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	emp, ok := r.employees[in.ID]
	if !ok || emp.ScopeID != in.ScopeID {
		return nil, employee.ErrEmployeeNotFound
	}
	emp.Status = in.Status
	emp.TerminationDate = cloneTime(in.TerminationDate)
	emp.UpdatedAt = in.UpdatedAt
	r.updates++
	return cloneEmployee(emp), nil
}

func (r *fakeEmployeeRepo) get(id string) *employee.Employee {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneEmployee(r.employees[id])
}

func cloneEmployee(emp *employee.Employee) *employee.Employee {
	if emp == nil {
		return nil
	}
	clone := *emp
	clone.TerminationDate = cloneTime(emp.TerminationDate)
	return &clone
}

type fakeTemplateRepo struct {
	templates []*Template
	findErr   error
}

func (r *fakeTemplateRepo) FindByID(_ context.Context, scopeID, id string) (*Template, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, tpl := range r.templates {
		if tpl.ID == id && tpl.ScopeID == scopeID {
			return tpl, nil
		}
	}
	return nil, ErrTemplateNotFound
}

func (r *fakeTemplateRepo) ListActive(_ context.Context, scopeID string) ([]*Template, error) {
	var out []*Template
	for _, tpl := range r.templates {
		if tpl.ScopeID == scopeID && tpl.IsActive {
			out = append(out, tpl)
		}
	}
	return out, nil
}

type fakeTaskTemplateRepo struct {
	items []*TaskTemplate
}

func (r *fakeTaskTemplateRepo) ListByTemplate(_ context.Context, scopeID, templateID string) ([]*TaskTemplate, error) {
	var out []*TaskTemplate
	for _, tt := range r.items {
		if tt.ScopeID == scopeID && tt.TemplateID == templateID {
			clone := *tt
			out = append(out, &clone)
		}
	}
	return out, nil
}

type fakeRunRepo struct {
	mu        sync.Mutex
	runs      map[string]*Run
	sequence  int
	createErr error
	marked    int
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[string]*Run)}
}

func (r *fakeRunRepo) Create(_ context.Context, run *Run) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	for _, existing := range r.runs {
		if existing.ScopeID == run.ScopeID && existing.RequestKey == run.RequestKey {
			return nil, ErrRequestKeyDuplicate
		}
	}
	r.sequence++
	clone := cloneRun(run)
	clone.ID = fmt.Sprintf("run-%d", r.sequence)
	r.runs[clone.ID] = clone
	return cloneRun(clone), nil
}

func (r *fakeRunRepo) FindByID(_ context.Context, scopeID, id string) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.ScopeID != scopeID {
		return nil, ErrRunNotFound
	}
	return cloneRun(run), nil
}

func (r *fakeRunRepo) LockByID(ctx context.Context, scopeID, id string) (*Run, error) {
	return r.FindByID(ctx, scopeID, id)
}

func (r *fakeRunRepo) FindByRequestKey(_ context.Context, scopeID, key string) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.ScopeID == scopeID && run.RequestKey == key {
			return cloneRun(run), nil
		}
	}
	return nil, ErrRunNotFound
}

func (r *fakeRunRepo) ListByEmployee(_ context.Context, scopeID, employeeID string) ([]*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Run
	for _, run := range r.runs {
		if run.ScopeID == scopeID && run.EmployeeID == employeeID {
			out = append(out, cloneRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeRunRepo) UpdateStatus(_ context.Context, in RunStatusUpdate) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[in.ID]
	if !ok || run.ScopeID != in.ScopeID {
		return nil, ErrRunNotFound
	}
	run.Status = in.Status
	run.CompletedAt = cloneTime(in.CompletedAt)
	run.UpdatedAt = in.UpdatedAt
	return cloneRun(run), nil
}

func (r *fakeRunRepo) MarkCompleted(_ context.Context, scopeID, id string, from RunStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.ScopeID != scopeID {
		return false, ErrRunNotFound
	}
	if run.Status != from {
		return false, nil
	}
	run.Status = RunStatusCompleted
	run.CompletedAt = &at
	run.UpdatedAt = at
	r.marked++
	return true, nil
}

func (r *fakeRunRepo) get(id string) *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRun(r.runs[id])
}

func (r *fakeRunRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func cloneRun(run *Run) *Run {
	if run == nil {
		return nil
	}
	clone := *run
	clone.CompletedAt = cloneTime(run.CompletedAt)
	return &clone
}

type fakeTaskRepo struct {
	mu          sync.Mutex
	tasks       map[string]*Task
	sequence    int
	bulkErr     error
	failTitles  map[string]bool
	bulkCalls   int
	createCalls int
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[string]*Task), failTitles: make(map[string]bool)}
}

func (r *fakeTaskRepo) FindByID(_ context.Context, id string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (r *fakeTaskRepo) LockByID(ctx context.Context, id string) (*Task, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeTaskRepo) ListByRun(_ context.Context, scopeID, runID string) ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Task
	for _, task := range r.tasks {
		if task.ScopeID == scopeID && task.RunID == runID {
			out = append(out, cloneTask(task))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (r *fakeTaskRepo) Create(_ context.Context, task *Task) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.failTitles[task.Title] {
		return nil, errors.New("insert failed")
	}
	return r.insertLocked(task), nil
}

func (r *fakeTaskRepo) BulkCreate(_ context.Context, tasks []*Task) ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bulkCalls++
	if r.bulkErr != nil {
		return nil, r.bulkErr
	}
	out := make([]*Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, r.insertLocked(task))
	}
	return out, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, task *Task) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID]; !ok {
		return nil, ErrTaskNotFound
	}
	r.tasks[task.ID] = cloneTask(task)
	return cloneTask(task), nil
}

func (r *fakeTaskRepo) MarkCompleted(_ context.Context, scopeID, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.ScopeID != scopeID {
		return false, ErrTaskNotFound
	}
	if task.Status == TaskStatusCompleted {
		return false, nil
	}
	task.Status = TaskStatusCompleted
	task.BlockedReason = nil
	task.CompletedAt = &at
	task.UpdatedAt = at
	return true, nil
}

func (r *fakeTaskRepo) insertLocked(task *Task) *Task {
	r.sequence++
	clone := cloneTask(task)
	clone.ID = fmt.Sprintf("task-%d", r.sequence)
	r.tasks[clone.ID] = clone
	return cloneTask(clone)
}

func (r *fakeTaskRepo) put(task *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = cloneTask(task)
}

func (r *fakeTaskRepo) get(id string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneTask(r.tasks[id])
}

func (r *fakeTaskRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}
	clone := *task
	clone.DueDate = cloneTime(task.DueDate)
	clone.CompletedAt = cloneTime(task.CompletedAt)
	return &clone
}

type recordingDispatcher struct {
	mu      sync.Mutex
	effects []Effect
}

func (d *recordingDispatcher) Dispatch(_ context.Context, effects ...Effect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.effects = append(d.effects, effects...)
}

func (d *recordingDispatcher) audits(eventType string) []AuditEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []AuditEntry
	for _, e := range d.effects {
		if e.Kind == EffectAudit && e.Audit.EventType == eventType {
			out = append(out, *e.Audit)
		}
	}
	return out
}

func (d *recordingDispatcher) notifications(kind string) []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Notification
	for _, e := range d.effects {
		if e.Kind == EffectNotify && e.Notification.Type == kind {
			out = append(out, *e.Notification)
		}
	}
	return out
}

type fakeDeprovisioner struct {
	mu     sync.Mutex
	result DeprovisionResult
	calls  []string
}

func (d *fakeDeprovisioner) Suspend(_ context.Context, emp *employee.Employee) DeprovisionResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, emp.ID)
	return d.result
}

type fakeDocumentGenerator struct {
	failFor  map[string]bool
	requests []DocumentRequest
}

func (g *fakeDocumentGenerator) Generate(_ context.Context, req DocumentRequest) (*Document, error) {
	g.requests = append(g.requests, req)
	if g.failFor[req.DocumentTemplateID] {
		return nil, errors.New("render failed")
	}
	return &Document{
		ID:                 "doc-" + req.DocumentTemplateID,
		ScopeID:            req.ScopeID,
		EmployeeID:         req.EmployeeID,
		RunID:              req.RunID,
		DocumentTemplateID: req.DocumentTemplateID,
		Kind:               req.Kind,
	}, nil
}

type fixture struct {
	svc           *Service
	clock         *stubClock
	employees     *fakeEmployeeRepo
	templates     *fakeTemplateRepo
	taskTemplates *fakeTaskTemplateRepo
	runs          *fakeRunRepo
	tasks         *fakeTaskRepo
	effects       *recordingDispatcher
	identity      *fakeDeprovisioner
	documents     *fakeDocumentGenerator
}

const testScope = "org-1"

var testScopeContext = ScopeContext{ScopeID: testScope, ActorID: "hr-admin"}

func newFixture(t *testing.T, opts Options, emps ...*employee.Employee) *fixture {
	t.Helper()

	f := &fixture{
		clock:         &stubClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
		employees:     newFakeEmployeeRepo(emps...),
		templates:     &fakeTemplateRepo{},
		taskTemplates: &fakeTaskTemplateRepo{},
		runs:          newFakeRunRepo(),
		tasks:         newFakeTaskRepo(),
		effects:       &recordingDispatcher{},
		identity:      &fakeDeprovisioner{result: DeprovisionResult{OK: true}},
		documents:     &fakeDocumentGenerator{failFor: map[string]bool{}},
	}
	f.svc = NewService(Dependencies{
		Employees:     f.employees,
		Templates:     f.templates,
		TaskTemplates: f.taskTemplates,
		Runs:          f.runs,
		Tasks:         f.tasks,
		Documents:     f.documents,
		Identity:      f.identity,
		Effects:       f.effects,
		Clock:         f.clock,
	}, opts)
	return f
}

func newEmployee(id string) *employee.Employee {
	manager := "mgr-1"
	return &employee.Employee{
		ID:             id,
		ScopeID:        testScope,
		EntityID:       "entity-jp",
		DepartmentID:   "dept-eng",
		EmploymentType: "full_time",
		ManagerID:      &manager,
		Email:          id + "@example.com",
		FullName:       "Taro Yamada",
		Status:         employee.StatusActive,
	}
}

func intPtr(v int) *int {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	d, ok := NormalizeDate(raw)
	if !ok {
		t.Fatalf("invalid date %q", raw)
	}
	return d
}
