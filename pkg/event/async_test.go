package event

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// blockingPublisher はreleaseが閉じられるまでPublishから戻らないPublisher。
type blockingPublisher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	events []*Event
	ctxs   []context.Context
}

func newBlockingPublisher() *blockingPublisher {
	return &blockingPublisher{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingPublisher) Publish(ctx context.Context, e *Event) error {
	b.once.Do(func() { close(b.started) })
	<-b.release

	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	b.ctxs = append(b.ctxs, ctx)
	return nil
}

func (b *blockingPublisher) delivered() ([]*Event, []context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Event(nil), b.events...), append([]context.Context(nil), b.ctxs...)
}

// mustNewEvent はテスト用のイベントを生成する。
func mustNewEvent(t *testing.T, aggregateID string) *Event {
	t.Helper()

	e, err := New(aggregateID, AggregateTypeTask, TypeTaskCreated, "u1", TaskCreatedData{Title: "t"})
	if err != nil {
		t.Fatalf("New()でエラーが発生: %v", err)
	}
	return e
}

// ctxKey はコンテキストの値の引き継ぎを確認するためのキー。
type ctxKey struct{}

// TestAsync はAsyncの非同期配信を検証する。
func TestAsync(t *testing.T) {
	t.Parallel()

	t.Run("配信先が止まっていてもPublishはすぐに戻りCloseで配信が完了すること", func(t *testing.T) {
		t.Parallel()

		next := newBlockingPublisher()
		async := NewAsync(next, discardLogger(), 4)

		start := time.Now()
		for _, id := range []string{"t1", "t2", "t3"} {
			if err := async.Publish(t.Context(), mustNewEvent(t, id)); err != nil {
				t.Fatalf("Publish()でエラーが発生: %v", err)
			}
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("Publish()が配信先を待っている: %v", elapsed)
		}

		close(next.release)
		if err := async.Close(t.Context()); err != nil {
			t.Fatalf("Close()でエラーが発生: %v", err)
		}

		events, _ := next.delivered()
		if len(events) != 3 {
			t.Fatalf("配信件数 = %d, want 3", len(events))
		}
		for i, id := range []string{"t1", "t2", "t3"} {
			if events[i].AggregateID != id {
				t.Errorf("events[%d].AggregateID = %q, want %q", i, events[i].AggregateID, id)
			}
		}
	})

	t.Run("呼び出し元のコンテキストがキャンセルされても配信されること", func(t *testing.T) {
		t.Parallel()

		next := newBlockingPublisher()
		async := NewAsync(next, discardLogger(), 1)

		ctx, cancel := context.WithCancel(context.WithValue(t.Context(), ctxKey{}, "request-1"))
		if err := async.Publish(ctx, mustNewEvent(t, "t1")); err != nil {
			t.Fatalf("Publish()でエラーが発生: %v", err)
		}
		cancel()

		close(next.release)
		if err := async.Close(t.Context()); err != nil {
			t.Fatalf("Close()でエラーが発生: %v", err)
		}

		_, ctxs := next.delivered()
		if len(ctxs) != 1 {
			t.Fatalf("配信件数 = %d, want 1", len(ctxs))
		}
		if err := ctxs[0].Err(); err != nil {
			t.Errorf("配信時のコンテキストがキャンセルされている: %v", err)
		}
		if got := ctxs[0].Value(ctxKey{}); got != "request-1" {
			t.Errorf("コンテキストの値 = %v, want %q", got, "request-1")
		}
	})

	t.Run("キューが満杯の場合はErrQueueFullが返ること", func(t *testing.T) {
		t.Parallel()

		next := newBlockingPublisher()
		async := NewAsync(next, discardLogger(), 1)
		t.Cleanup(func() {
			close(next.release)
			_ = async.Close(context.Background())
		})

		if err := async.Publish(t.Context(), mustNewEvent(t, "t1")); err != nil {
			t.Fatalf("1件目のPublish()でエラーが発生: %v", err)
		}
		<-next.started
		if err := async.Publish(t.Context(), mustNewEvent(t, "t2")); err != nil {
			t.Fatalf("2件目のPublish()でエラーが発生: %v", err)
		}

		if err := async.Publish(t.Context(), mustNewEvent(t, "t3")); !errors.Is(err, ErrQueueFull) {
			t.Errorf("err = %v, want %v", err, ErrQueueFull)
		}
	})

	t.Run("Close後のPublishはErrClosedが返りCloseは何度呼んでもよいこと", func(t *testing.T) {
		t.Parallel()

		async := NewAsync(&recordingPublisher{}, discardLogger(), 0)
		if err := async.Close(t.Context()); err != nil {
			t.Fatalf("Close()でエラーが発生: %v", err)
		}
		if err := async.Close(t.Context()); err != nil {
			t.Fatalf("2回目のClose()でエラーが発生: %v", err)
		}

		if err := async.Publish(t.Context(), mustNewEvent(t, "t1")); !errors.Is(err, ErrClosed) {
			t.Errorf("err = %v, want %v", err, ErrClosed)
		}
	})

	t.Run("配信が終わる前にCloseの期限が来た場合はエラーが返ること", func(t *testing.T) {
		t.Parallel()

		next := newBlockingPublisher()
		async := NewAsync(next, discardLogger(), 1)
		t.Cleanup(func() { close(next.release) })

		if err := async.Publish(t.Context(), mustNewEvent(t, "t1")); err != nil {
			t.Fatalf("Publish()でエラーが発生: %v", err)
		}
		<-next.started

		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()
		if err := async.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want %v", err, context.DeadlineExceeded)
		}
	})

	t.Run("配信の失敗はログに記録されること", func(t *testing.T) {
		t.Parallel()

		buf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(buf, nil))
		async := NewAsync(&recordingPublisher{err: errors.New("broker down")}, logger, 1)

		if err := async.Publish(t.Context(), mustNewEvent(t, "t1")); err != nil {
			t.Fatalf("Publish()でエラーが発生: %v", err)
		}
		if err := async.Close(t.Context()); err != nil {
			t.Fatalf("Close()でエラーが発生: %v", err)
		}

		if !strings.Contains(buf.String(), "failed to publish event") || !strings.Contains(buf.String(), "broker down") {
			t.Errorf("ログに配信失敗が記録されていない: %s", buf.String())
		}
	})
}
