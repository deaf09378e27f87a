package offboarding

import "time"

// RunStatus は退職プロセス（ラン）の状態です。
type RunStatus string

const (
	RunStatusDraft      RunStatus = "draft"
	RunStatusScheduled  RunStatus = "scheduled"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// TaskStatus はタスクインスタンスの状態です。
type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "not_started"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Role はタスクの担当ロールです。
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleHR       Role = "hr"
	RoleIT       Role = "it"
	RoleFinance  Role = "finance"
)

// SystemCode はタスク完了時に実行する自動アクションの識別子です。
type SystemCode string

const (
	SystemCodeNone            SystemCode = ""
	SystemCodeSuspendIdentity SystemCode = "suspend_identity"
)

// DocumentKind は退職時に生成する書類の種別です。
type DocumentKind string

const (
	DocumentKindTerminationLetter DocumentKind = "termination_letter"
	DocumentKindExitDocument      DocumentKind = "exit_document"
)

// ScopeContext は呼び出し元のテナント（スコープ）と操作者を表します。
// エンジンのすべての操作に明示的に渡されます。
type ScopeContext struct {
	ScopeID string
	ActorID string
}

// Template は退職テンプレートです。制限項目が空の場合は制限なしを意味します。
type Template struct {
	ID                          string
	ScopeID                     string
	Name                        string
	EntityID                    string
	DepartmentID                string
	EmploymentType              string
	ExitType                    string
	IsDefault                   bool
	IsActive                    bool
	TerminationLetterTemplateID string
	ExitDocumentTemplateIDs     []string
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// DocumentTemplateRefs は生成対象の書類テンプレートを退職届、退職書類の順に返します。
func (t *Template) DocumentTemplateRefs() []DocumentRef {
	if t == nil {
		return nil
	}
	refs := make([]DocumentRef, 0, len(t.ExitDocumentTemplateIDs)+1)
	if t.TerminationLetterTemplateID != "" {
		refs = append(refs, DocumentRef{TemplateID: t.TerminationLetterTemplateID, Kind: DocumentKindTerminationLetter})
	}
	for _, id := range t.ExitDocumentTemplateIDs {
		if id == "" {
			continue
		}
		refs = append(refs, DocumentRef{TemplateID: id, Kind: DocumentKindExitDocument})
	}
	return refs
}

// DocumentRef は書類テンプレートへの参照です。
type DocumentRef struct {
	TemplateID string
	Kind       DocumentKind
}

// TaskTemplate はテンプレートに属するタスク定義です。
// AssignedRole と Required は未正規化の値を保持し、インスタンス化時に解釈されます。
type TaskTemplate struct {
	ID            string
	TemplateID    string
	ScopeID       string
	Title         string
	Description   string
	Category      string
	AssignedRole  string
	Required      *bool
	OrderIndex    int
	DueOffsetDays *int
	SystemCode    SystemCode
	Link          string
}

// Run は 1 名の社員に対する退職プロセスのインスタンスです。
type Run struct {
	ID          string
	ScopeID     string
	EmployeeID  string
	TemplateID  *string
	ManagerID   *string
	LastDay     time.Time
	ExitType    string
	Reason      string
	Status      RunStatus
	RequestKey  string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Task はラン内の作業単位です。
type Task struct {
	ID                 string
	ScopeID            string
	RunID              string
	TaskTemplateID     *string
	Title              string
	Description        string
	Category           string
	AssignedRole       Role
	AssignedEmployeeID *string
	DueDate            *time.Time
	Required           bool
	Link               string
	SystemCode         SystemCode
	OrderIndex         int
	Status             TaskStatus
	BlockedReason      *string
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DocumentTemplate は書類の雛形です。Body は text/template 形式です。
type DocumentTemplate struct {
	ID      string
	ScopeID string
	Name    string
	Body    string
}

// Document は社員に紐づけて生成された書類です。
type Document struct {
	ID                 string
	ScopeID            string
	EmployeeID         string
	RunID              string
	DocumentTemplateID string
	Kind               DocumentKind
	Title              string
	Body               string
	CreatedAt          time.Time
}

// Progress はランの進捗集計です。
type Progress struct {
	RunID             string
	Total             int
	Completed         int
	Percent           int
	RequiredTotal     int
	RequiredCompleted int
	RequiredPercent   int
}
