package offboarding

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

const dateLayout = "2006-01-02"

// UseCase は退職エンジンの公開インターフェースです。
type UseCase interface {
	ResolveTemplate(ctx context.Context, sc ScopeContext, in ResolveTemplateInput) (*Template, error)
	CreateOffboarding(ctx context.Context, sc ScopeContext, in CreateOffboardingInput) (*CreateOffboardingResult, error)
	AddTask(ctx context.Context, sc ScopeContext, in AddTaskInput) (*Task, error)
	CompleteTask(ctx context.Context, sc ScopeContext, taskID string) (*CompleteTaskResult, error)
	StartTask(ctx context.Context, sc ScopeContext, taskID string) (*Task, error)
	BlockTask(ctx context.Context, sc ScopeContext, taskID, reason string) (*Task, error)
	UnblockTask(ctx context.Context, sc ScopeContext, taskID string) (*Task, error)
	UpdateTask(ctx context.Context, sc ScopeContext, in UpdateTaskInput) (*Task, error)
	PauseRun(ctx context.Context, sc ScopeContext, runID string) (*Run, error)
	StartRun(ctx context.Context, sc ScopeContext, runID string) (*Run, error)
	CancelRun(ctx context.Context, sc ScopeContext, runID string) (*Run, error)
	GetProgress(ctx context.Context, sc ScopeContext, runID string) (*Progress, error)
	GetRun(ctx context.Context, sc ScopeContext, runID string) (*Run, error)
	ListRunTasks(ctx context.Context, sc ScopeContext, runID string) ([]*Task, error)
	ListRuns(ctx context.Context, sc ScopeContext, employeeID string) ([]*Run, error)
}

// Dependencies は Service が利用する外部協調者です。
// Documents, Identity, Effects, Clock, Tx, Logger は省略可能です。
type Dependencies struct {
	Employees     employee.Repository
	Templates     TemplateRepository
	TaskTemplates TaskTemplateRepository
	Runs          RunRepository
	Tasks         TaskRepository
	Documents     DocumentGenerator
	Identity      Deprovisioner
	Effects       EffectDispatcher
	Clock         Clock
	Tx            TransactionManager
	Logger        *slog.Logger
}

// Options はエンジンの挙動を切り替えます。
type Options struct {
	// PreventConcurrentRuns が true の場合、未終了のランを持つ社員への新規作成を拒否します。
	PreventConcurrentRuns bool
	// LinkPrefix は通知に含めるランへのリンクの接頭辞です。
	LinkPrefix string
}

// Service は退職ライフサイクルのユースケースをまとめます。
type Service struct {
	employees     employee.Repository
	templates     TemplateRepository
	taskTemplates TaskTemplateRepository
	runs          RunRepository
	tasks         TaskRepository
	documents     DocumentGenerator
	identity      Deprovisioner
	effects       EffectDispatcher
	clock         Clock
	tx            TransactionManager
	logger        *slog.Logger
	opts          Options
	newKey        func() string
}

// NewService は Service を生成します。
func NewService(deps Dependencies, opts Options) *Service {
	s := &Service{
		employees:     deps.Employees,
		templates:     deps.Templates,
		taskTemplates: deps.TaskTemplates,
		runs:          deps.Runs,
		tasks:         deps.Tasks,
		documents:     deps.Documents,
		identity:      deps.Identity,
		effects:       deps.Effects,
		clock:         deps.Clock,
		tx:            deps.Tx,
		logger:        deps.Logger,
		opts:          opts,
		newKey:        uuid.NewString,
	}
	if s.effects == nil {
		s.effects = noopDispatcher{}
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.tx == nil {
		s.tx = noopTransactionManager{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.opts.LinkPrefix == "" {
		s.opts.LinkPrefix = "/offboarding/runs/"
	}
	return s
}

func requireScope(sc ScopeContext) (string, error) {
	scopeID := strings.TrimSpace(sc.ScopeID)
	if scopeID == "" {
		return "", ErrScopeMissing
	}
	return scopeID, nil
}

func normalizeID(raw string, invalid error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", invalid
	}
	return trimmed, nil
}

func normalizeToken(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizeDate は YYYY-MM-DD または RFC3339 形式の文字列を UTC の日付に正規化します。
func NormalizeDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(dateLayout, trimmed, time.UTC); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return truncateDate(t), true
	}
	return time.Time{}, false
}

// FormatDate は日付を YYYY-MM-DD 形式に整形します。
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

func stringPtr(v string) *string {
	return &v
}

func (s *Service) runLink(runID string) string {
	return s.opts.LinkPrefix + runID
}
