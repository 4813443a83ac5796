package event

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// DefaultQueueSize はAsyncの既定のキュー長。
const DefaultQueueSize = 256

var (
	// ErrQueueFull はAsyncのキューが満杯でイベントを受け付けられないことを表す。
	ErrQueueFull = errors.New("event queue is full")
	// ErrClosed はClose済みのAsyncに配信しようとしたことを表す。
	ErrClosed = errors.New("event publisher is closed")
)

// queued はキューに積まれたイベントと配信時に使うコンテキスト。
type queued struct {
	ctx   context.Context
	event *Event
}

// Async は別のPublisherへの配信をバックグラウンドのgoroutineで行う。
// Publishはキューに積むだけで、配信先の遅延や失敗を待たない。
type Async struct {
	next   Publisher
	logger *slog.Logger
	queue  chan queued
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ Publisher = (*Async)(nil)

// NewAsync はnextへ配信するAsyncを生成し、配信用のgoroutineを開始する。
// sizeが0以下の場合はDefaultQueueSizeを使う。
func NewAsync(next Publisher, logger *slog.Logger, size int) *Async {
	if next == nil {
		next = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	a := &Async{
		next:   next,
		logger: logger,
		queue:  make(chan queued, size),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish はイベントをキューに積む。
// 配信にはctxのキャンセルを引き継がないコンテキストを使うため、
// リクエストが終わった後でも配信は続く。
func (a *Async) Publish(ctx context.Context, e *Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- queued{ctx: context.WithoutCancel(ctx), event: e}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close は新しいイベントの受け付けを止め、キューに残ったイベントの配信完了を待つ。
// ctxが先に終了した場合は配信を待たずにctxのエラーを返す。
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for q := range a.queue {
		if err := a.next.Publish(q.ctx, q.event); err != nil {
			a.logger.Warn("failed to publish event",
				"event_id", q.event.ID,
				"event_type", q.event.EventType,
				"aggregate_id", q.event.AggregateID,
				"error", err,
			)
		}
	}
}
