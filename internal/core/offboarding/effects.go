package offboarding

import (
	"context"
	"time"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
)

// 通知種別。
const (
	NotificationTaskAssigned       = "offboarding_task_assigned"
	NotificationOffboardingStarted = "offboarding_started"
)

// 監査イベント種別。
const (
	AuditRunCreated         = "offboarding.run_created"
	AuditRunStatusChanged   = "offboarding.run_status_changed"
	AuditRunCompleted       = "offboarding.run_completed"
	AuditRunCancelled       = "offboarding.run_cancelled"
	AuditTaskAdded          = "offboarding.task_added"
	AuditTaskCompleted      = "offboarding.task_completed"
	AuditTaskUpdated        = "offboarding.task_updated"
	AuditSystemActionFailed = "offboarding.system_action_failed"
)

// 監査対象のエンティティ種別。
const (
	EntityTypeRun  = "employee_offboarding"
	EntityTypeTask = "employee_offboarding_task"
)

// Notification は通知の送信内容です。
type Notification struct {
	ScopeID           string
	RecipientID       string
	Type              string
	Title             string
	Message           string
	Link              string
	RelatedEmployeeID string
	RelatedRunID      string
}

// AuditEntry は監査ログの 1 件です。
type AuditEntry struct {
	ScopeID           string
	EventType         string
	EntityType        string
	EntityID          string
	RelatedEmployeeID string
	ActorID           string
	Description       string
	Metadata          map[string]any
	OccurredAt        time.Time
}

// EffectKind は副作用インテントの種類です。
type EffectKind string

const (
	EffectNotify EffectKind = "notify"
	EffectAudit  EffectKind = "audit"
)

// Effect はコアの状態遷移が生成する副作用のインテントです。
// 配送はディスパッチャが担い、失敗はコアへ伝播しません。
type Effect struct {
	Kind         EffectKind
	Notification *Notification
	Audit        *AuditEntry
}

// NotifyEffect は通知インテントを生成します。
func NotifyEffect(n Notification) Effect {
	return Effect{Kind: EffectNotify, Notification: &n}
}

// AuditEffect は監査インテントを生成します。
func AuditEffect(entry AuditEntry) Effect {
	return Effect{Kind: EffectAudit, Audit: &entry}
}

// EffectDispatcher は副作用インテントを配送します。エラーは返しません。
type EffectDispatcher interface {
	Dispatch(ctx context.Context, effects ...Effect)
}

// Notifier は通知サービスです。
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// AuditLogger は監査ログの書き込み先です。
type AuditLogger interface {
	Log(ctx context.Context, entry AuditEntry) error
}

// DeprovisionResult はアイデンティティ停止の結果です。
type DeprovisionResult struct {
	OK    bool
	Error string
}

// Deprovisioner はアイデンティティの停止を行います。結果はタスク完了を妨げません。
type Deprovisioner interface {
	Suspend(ctx context.Context, emp *employee.Employee) DeprovisionResult
}

// DocumentRequest は書類生成の依頼内容です。
type DocumentRequest struct {
	ScopeID            string
	EmployeeID         string
	RunID              string
	DocumentTemplateID string
	Kind               DocumentKind
	LastDay            time.Time
	ExitType           string
	Reason             string
}

// DocumentGenerator は書類テンプレートから書類を生成し保存します。
type DocumentGenerator interface {
	Generate(ctx context.Context, req DocumentRequest) (*Document, error)
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, ...Effect) {}
