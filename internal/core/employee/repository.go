package employee

import "context"

// Repository は社員永続化の抽象です。
type Repository interface {
	// FindByID はスコープを問わず ID で社員を取得します。スコープの検証は呼び出し側が行います。
	FindByID(ctx context.Context, id string) (*Employee, error)
	UpdateLifecycle(ctx context.Context, in LifecycleUpdate) (*Employee, error)
}
