package offboarding

import (
	"context"
	"time"
)

// TemplateRepository は退職テンプレートの読み取りを提供します。
type TemplateRepository interface {
	FindByID(ctx context.Context, scopeID, id string) (*Template, error)
	ListActive(ctx context.Context, scopeID string) ([]*Template, error)
}

// TaskTemplateRepository はタスクテンプレートの読み取りを提供します。
type TaskTemplateRepository interface {
	// ListByTemplate は order index の昇順で返します。
	ListByTemplate(ctx context.Context, scopeID, templateID string) ([]*TaskTemplate, error)
}

// RunRepository はランの永続化の抽象です。
type RunRepository interface {
	Create(ctx context.Context, run *Run) (*Run, error)
	FindByID(ctx context.Context, scopeID, id string) (*Run, error)
	// LockByID はトランザクション内でランの行ロックを取得してから返します。
	// 同じランに対するタスク完了や状態変更はこのロックで直列化されます。
	LockByID(ctx context.Context, scopeID, id string) (*Run, error)
	FindByRequestKey(ctx context.Context, scopeID, requestKey string) (*Run, error)
	ListByEmployee(ctx context.Context, scopeID, employeeID string) ([]*Run, error)
	UpdateStatus(ctx context.Context, in RunStatusUpdate) (*Run, error)
	// MarkCompleted は状態が from のままのランを完了にします。更新した場合に true を返します。
	MarkCompleted(ctx context.Context, scopeID, id string, from RunStatus, at time.Time) (bool, error)
}

// RunStatusUpdate はランの状態更新内容です。
type RunStatusUpdate struct {
	ScopeID     string
	ID          string
	Status      RunStatus
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// TaskRepository はタスクインスタンスの永続化の抽象です。
type TaskRepository interface {
	// FindByID はスコープを問わず取得します。スコープはレコード自身の値で検証されます。
	FindByID(ctx context.Context, id string) (*Task, error)
	// LockByID は FindByID と同じですが、トランザクション内で行ロックを取得します。
	LockByID(ctx context.Context, id string) (*Task, error)
	ListByRun(ctx context.Context, scopeID, runID string) ([]*Task, error)
	Create(ctx context.Context, task *Task) (*Task, error)
	BulkCreate(ctx context.Context, tasks []*Task) ([]*Task, error)
	Update(ctx context.Context, task *Task) (*Task, error)
	// MarkCompleted は未完了のタスクのみを完了にし、担当者や期限には触れません。更新した場合に true を返します。
	MarkCompleted(ctx context.Context, scopeID, id string, at time.Time) (bool, error)
}

// DocumentTemplateRepository は書類テンプレートの読み取りを提供します。
type DocumentTemplateRepository interface {
	FindByID(ctx context.Context, scopeID, id string) (*DocumentTemplate, error)
}

// DocumentRepository は生成済み書類の永続化の抽象です。
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) (*Document, error)
}
