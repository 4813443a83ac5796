// Package task は認証済みユーザーが所有するタスクのCRUDを提供する。
//
// 全ての操作は所有者IDで絞り込まれ、他のユーザーのタスクは存在しないものとして扱う。
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/taskhub/internal/domain"
	"github.com/nao1215/taskhub/internal/repository"
	"github.com/nao1215/taskhub/pkg/event"
)

// クライアントに返すメッセージ。
const (
	msgNotFound        = "not found"
	msgUnauthenticated = "unauthenticated"
)

// CreateInput はタスク作成時の入力。
type CreateInput struct {
	Title       string
	Description string
}

// Service はタスクの操作を扱う。
type Service struct {
	tasks     repository.TaskRepository
	publisher event.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New はServiceを生成する。
func New(tasks repository.TaskRepository, publisher event.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = event.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tasks: tasks, publisher: publisher, logger: logger, now: time.Now}
}

// Create は未完了のタスクを作成する。
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (domain.Task, error) {
	if ownerID == "" {
		return domain.Task{}, domain.Unauthenticated(msgUnauthenticated)
	}

	now := s.now().UTC()
	created, err := s.tasks.CreateTask(ctx, domain.Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       in.Title,
		Description: in.Description,
		Completed:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("タスクの作成に失敗: %w", err)
	}

	event.Emit(ctx, s.publisher, s.logger, created.ID, event.AggregateTypeTask, event.TypeTaskCreated, ownerID,
		event.TaskCreatedData{Title: created.Title, Description: created.Description})
	return created, nil
}

// ListOwned は所有者のタスクを作成順に返す。タスクが無い場合は空のスライスを返す。
func (s *Service) ListOwned(ctx context.Context, ownerID string) ([]domain.Task, error) {
	if ownerID == "" {
		return nil, domain.Unauthenticated(msgUnauthenticated)
	}
	tasks, err := s.tasks.ListTasksByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗: %w", err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// GetOwned は所有者のタスクを返す。
func (s *Service) GetOwned(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	if ownerID == "" {
		return domain.Task{}, domain.Unauthenticated(msgUnauthenticated)
	}
	t, err := s.tasks.GetTaskByOwner(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, translate(err, "タスクの取得に失敗")
	}
	return t, nil
}

// UpdateOwned はpatchで指定されたフィールドだけを更新し、更新後のタスクを返す。
func (s *Service) UpdateOwned(ctx context.Context, ownerID, taskID string, patch domain.TaskPatch) (domain.Task, error) {
	if ownerID == "" {
		return domain.Task{}, domain.Unauthenticated(msgUnauthenticated)
	}
	// 変更が無ければ書き込まずに現在の値を返す
	if patch.IsEmpty() {
		return s.GetOwned(ctx, ownerID, taskID)
	}
	updated, err := s.tasks.PatchTask(ctx, ownerID, taskID, patch)
	if err != nil {
		return domain.Task{}, translate(err, "タスクの更新に失敗")
	}

	event.Emit(ctx, s.publisher, s.logger, updated.ID, event.AggregateTypeTask, event.TypeTaskUpdated, ownerID,
		event.TaskUpdatedData{
			Title:       updated.Title,
			Description: updated.Description,
			Completed:   updated.Completed,
			Fields:      patchedFields(patch),
		})
	return updated, nil
}

// DeleteOwned は所有者のタスクを削除する。
func (s *Service) DeleteOwned(ctx context.Context, ownerID, taskID string) error {
	if ownerID == "" {
		return domain.Unauthenticated(msgUnauthenticated)
	}
	if err := s.tasks.DeleteTask(ctx, ownerID, taskID); err != nil {
		return translate(err, "タスクの削除に失敗")
	}

	event.Emit(ctx, s.publisher, s.logger, taskID, event.AggregateTypeTask, event.TypeTaskDeleted, ownerID,
		event.TaskDeletedData{})
	return nil
}

// translate はストアのエラーをドメインのエラーに変換する。
func translate(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NotFound(msgNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// patchedFields はpatchに含まれるフィールド名を返す。
func patchedFields(p domain.TaskPatch) []string {
	fields := make([]string, 0, 3)
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Completed != nil {
		fields = append(fields, "completed")
	}
	return fields
}
