package identity

import (
	"context"
	"io"
	"log/slog"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
)

// LogOnly はディレクトリ連携が設定されていない環境向けの Deprovisioner です。
// 停止は行わず、手動対応が必要であることを記録して失敗結果を返します。
type LogOnly struct {
	logger *slog.Logger
}

// NewLogOnly は LogOnly を生成します。
func NewLogOnly(logger *slog.Logger) *LogOnly {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogOnly{logger: logger}
}

// Suspend は常に OK=false を返します。
func (l *LogOnly) Suspend(_ context.Context, emp *employee.Employee) offboarding.DeprovisionResult {
	id := ""
	if emp != nil {
		id = emp.ID
	}
	l.logger.Warn("identity provider is not configured, suspend the account manually", slog.String("employee_id", id))
	return offboarding.DeprovisionResult{OK: false, Error: "identity provider is not configured"}
}
