package employee

import "time"

// Status は社員のライフサイクル状態を表します。
type Status string

const (
	StatusActive      Status = "active"
	StatusOnboarding  Status = "onboarding"
	StatusOffboarding Status = "offboarding"
	StatusTerminated  Status = "terminated"
)

// Employee は退職プロセスが参照・更新する社員エンティティです。
// HR ドメイン全体の一部のみを保持します。
type Employee struct {
	ID              string
	ScopeID         string
	EntityID        string
	DepartmentID    string
	EmploymentType  string
	ManagerID       *string
	Email           string
	FullName        string
	Status          Status
	TerminationDate *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasManager は上長が設定されているかを返します。
func (e *Employee) HasManager() bool {
	return e != nil && e.ManagerID != nil && *e.ManagerID != ""
}

// LifecycleUpdate は退職エンジンが更新するフィールドのみをまとめたものです。
type LifecycleUpdate struct {
	ScopeID         string
	ID              string
	Status          Status
	TerminationDate *time.Time
	UpdatedAt       time.Time
}
