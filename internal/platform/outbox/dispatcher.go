package outbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	"github.com/ogurasousui/offboarding-engine/internal/platform/config"
)

var errUnknownEffect = errors.New("outbox: unknown effect kind")

// Stats は配送結果の累計です。
type Stats struct {
	Delivered int64
	Retried   int64
	Failed    int64
}

// envelope は 1 つの配送先への 1 件の配送です。通知は配送先チャネルごとに分かれます。
type envelope struct {
	id      string
	ctx     context.Context
	effect  offboarding.Effect
	channel int
}

// Dispatcher は offboarding.EffectDispatcher の実装です。
// 通知と監査のインテントを上限付きリトライで配送し、失敗はログに記録するのみで呼び出し元へは返しません。
// 通知はチャネルごとに独立して配送されるため、あるチャネルの再送が他のチャネルへ重複送信されることはありません。
type Dispatcher struct {
	notifiers   []offboarding.Notifier
	audit       offboarding.AuditLogger
	logger      *slog.Logger
	async       bool
	maxAttempts int
	backoff     time.Duration
	wait        func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	closed bool
	queue  chan envelope

	delivered atomic.Int64
	retried   atomic.Int64
	failed    atomic.Int64
}

// New は Dispatcher を生成します。audit と各 notifier は nil を許容し、その配送先は無視されます。
func New(cfg config.OutboxConfig, logger *slog.Logger, audit offboarding.AuditLogger, notifiers ...offboarding.Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var channels []offboarding.Notifier
	for _, n := range notifiers {
		if n != nil {
			channels = append(channels, n)
		}
	}
	d := &Dispatcher{
		notifiers:   channels,
		audit:       audit,
		logger:      logger.With(slog.String("component", "outbox")),
		async:       cfg.Mode == config.OutboxModeAsync,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		wait:        sleepContext,
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = 1
	}
	if d.async {
		size := cfg.BufferSize
		if size <= 0 {
			size = 1
		}
		d.queue = make(chan envelope, size)
	}
	return d
}

// Async は非同期モードで動作しているかを返します。
func (d *Dispatcher) Async() bool {
	return d.async
}

// Dispatch はインテントを配送します。
// 非同期モードではキューへ積み、キューが満杯か停止済みの場合はその場で配送します。
func (d *Dispatcher) Dispatch(ctx context.Context, effects ...offboarding.Effect) {
	// リクエストのキャンセルで配送が中断されないようにする
	detached := context.WithoutCancel(ctx)

	for _, effect := range effects {
		for _, env := range d.expand(detached, effect) {
			if d.async && d.enqueue(env) {
				continue
			}
			d.deliver(detached, env)
		}
	}
}

func (d *Dispatcher) expand(ctx context.Context, effect offboarding.Effect) []envelope {
	id := uuid.NewString()
	if effect.Kind != offboarding.EffectNotify || effect.Notification == nil {
		return []envelope{{id: id, ctx: ctx, effect: effect}}
	}
	envs := make([]envelope, 0, len(d.notifiers))
	for i := range d.notifiers {
		envs = append(envs, envelope{id: id, ctx: ctx, effect: effect, channel: i})
	}
	return envs
}

func (d *Dispatcher) enqueue(env envelope) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- env:
		return true
	default:
		d.logger.Warn("outbox queue is full, delivering inline", slog.String("effect_id", env.id))
		return false
	}
}

// Run は非同期モードのワーカーです。Close されるまでキューを処理し、
// ctx が終了した場合は残りをリトライなしで配送してから戻ります。
func (d *Dispatcher) Run(ctx context.Context) {
	if !d.async {
		return
	}
	for {
		select {
		case env, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, env)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case env, ok := <-d.queue:
			if !ok {
				return
			}
			d.attempt(env.ctx, env, 1, 1)
		default:
			return
		}
	}
}

// Close は以後のインテントを受け付けずキューを閉じます。二度目以降の呼び出しは何もしません。
func (d *Dispatcher) Close() {
	if !d.async {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

// Stats は配送結果の累計を返します。
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Retried:   d.retried.Load(),
		Failed:    d.failed.Load(),
	}
}

// deliver は最大 maxAttempts 回まで配送を試みます。待機は waitCtx の終了で打ち切られます。
func (d *Dispatcher) deliver(waitCtx context.Context, env envelope) {
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if d.attempt(env.ctx, env, attempt, d.maxAttempts) {
			return
		}
		d.retried.Add(1)
		if err := d.wait(waitCtx, d.backoff*time.Duration(attempt)); err != nil {
			d.failed.Add(1)
			d.logger.Error("effect abandoned", slog.String("effect_id", env.id), slog.Any("error", err))
			return
		}
	}
}

// attempt は 1 回分の配送を行い、これ以上リトライしない場合に true を返します。
func (d *Dispatcher) attempt(ctx context.Context, env envelope, attempt, maxAttempts int) bool {
	err := d.send(ctx, env)
	if err == nil {
		d.delivered.Add(1)
		return true
	}

	attrs := []any{
		slog.String("effect_id", env.id),
		slog.String("kind", string(env.effect.Kind)),
		slog.Int("channel", env.channel),
		slog.Int("attempt", attempt),
		slog.Any("error", err),
	}
	if errors.Is(err, errUnknownEffect) || attempt >= maxAttempts {
		d.failed.Add(1)
		d.logger.Error("effect delivery failed", attrs...)
		return true
	}
	d.logger.Warn("effect delivery failed, retrying", attrs...)
	return false
}

func (d *Dispatcher) send(ctx context.Context, env envelope) error {
	effect := env.effect
	switch effect.Kind {
	case offboarding.EffectNotify:
		if effect.Notification == nil {
			return fmt.Errorf("%w: notify without payload", errUnknownEffect)
		}
		return d.notifiers[env.channel].Send(ctx, *effect.Notification)
	case offboarding.EffectAudit:
		if effect.Audit == nil {
			return fmt.Errorf("%w: audit without payload", errUnknownEffect)
		}
		if d.audit == nil {
			return nil
		}
		return d.audit.Log(ctx, *effect.Audit)
	default:
		return fmt.Errorf("%w: %q", errUnknownEffect, effect.Kind)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
