// Package repository は永続化層のインターフェースを定義する。
//
// 実装はSQLite（sqliteパッケージ）とPostgreSQL（postgresパッケージ）の2つがある。
// タスクに関するすべての操作は所有者IDで絞り込まれる。
package repository

import (
	"context"

	"github.com/nao1215/taskhub/internal/domain"
)

// IdentityRepository はユーザーアカウントを永続化する。
type IdentityRepository interface {
	// CreateIdentity はユーザーを登録する。ユーザー名が重複する場合はErrConflictを返す。
	CreateIdentity(ctx context.Context, identity domain.Identity) error
	// GetIdentityByUsername はユーザー名でユーザーを取得する。
	GetIdentityByUsername(ctx context.Context, username string) (domain.Identity, error)
	// CountIdentitiesByUsername は指定ユーザー名のレコード数を返す。
	CountIdentitiesByUsername(ctx context.Context, username string) (int, error)
}

// TaskRepository はタスクを永続化する。
type TaskRepository interface {
	// CreateTask はタスクを保存し、保存後の値を返す。
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	// ListTasksByOwner は所有者のタスクを作成順に返す。
	ListTasksByOwner(ctx context.Context, ownerID string) ([]domain.Task, error)
	// GetTaskByOwner は所有者のタスクを取得する。
	GetTaskByOwner(ctx context.Context, ownerID, taskID string) (domain.Task, error)
	// PatchTask は所有者のタスクを部分更新し、更新後の値を返す。
	PatchTask(ctx context.Context, ownerID, taskID string, patch domain.TaskPatch) (domain.Task, error)
	// DeleteTask は所有者のタスクを削除する。
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// Store はサーバーが利用する永続化層全体を表す。
type Store interface {
	IdentityRepository
	TaskRepository
	// Ping はデータベースとの疎通を確認する。
	Ping(ctx context.Context) error
	// SchemaVersion は適用済みマイグレーションの最新バージョンを返す。
	SchemaVersion(ctx context.Context) (int64, error)
	// Close は接続を解放する。
	Close() error
}
