package event

import (
	"context"
	"errors"
	"log/slog"
)

// Publisher はイベントを外部に配信する。
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}

// Nop は何もしないPublisher。配信先が設定されていない場合に使う。
type Nop struct{}

// Publish は何もせずnilを返す。
func (Nop) Publish(context.Context, *Event) error { return nil }

// Multi は複数のPublisherに順に配信する。
// 一部が失敗しても残りへの配信は続け、全てのエラーをまとめて返す。
type Multi []Publisher

// Publish は全てのPublisherに配信する。
func (m Multi) Publish(ctx context.Context, e *Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit はイベントを生成して配信する。
// 生成と配信の失敗はloggerに記録するだけで呼び出し元には返さない。
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, aggregateID string, aggregateType AggregateType, eventType Type, actorID string, data any) {
	if p == nil {
		return
	}
	e, err := New(aggregateID, aggregateType, eventType, actorID, data)
	if err != nil {
		logger.Error("failed to build event", "event_type", eventType, "error", err)
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Warn("failed to publish event",
			"event_id", e.ID,
			"event_type", e.EventType,
			"aggregate_id", e.AggregateID,
			"error", err,
		)
	}
}
