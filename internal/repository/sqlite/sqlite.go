// Package sqlite はSQLite（modernc.org/sqlite）による永続化層の実装を提供する。
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nao1215/taskhub/internal/domain"
	"github.com/nao1215/taskhub/internal/repository"
	"github.com/nao1215/taskhub/pkg/migration"
)

//go:embed migrations
var migrationsFS embed.FS

// Repository はSQLiteに対する永続化処理を実装する。
type Repository struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

var _ repository.Store = (*Repository)(nil)

// Open はSQLiteデータベースを開き、マイグレーションを適用したRepositoryを返す。
// dsnには "file:taskhub.db" や ":memory:" を指定する。
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteの書き込みは直列化されるため1接続に固定する。
	// インメモリDBは接続ごとに別DBになるので、この設定が必須になる。
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("外部キー制約の有効化に失敗: %w", err)
	}

	if err := migration.Run(ctx, db, migration.DialectSQLite, migrationsFS, "migrations", logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	return &Repository{db: db}, nil
}

// Ping はデータベースとの疎通を確認する。
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SchemaVersion は適用済みマイグレーションの最新バージョンを返す。
func (r *Repository) SchemaVersion(ctx context.Context) (int64, error) {
	return migration.CurrentVersion(ctx, r.db, migration.DialectSQLite, migrationsFS, "migrations")
}

// Close はデータベース接続を閉じる。
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreateIdentity はユーザーを登録する。
func (r *Repository) CreateIdentity(ctx context.Context, identity domain.Identity) error {
	const query = `INSERT INTO identities (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, identity.ID, identity.Username, identity.PasswordHash, identity.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

// GetIdentityByUsername はユーザー名でユーザーを取得する。
func (r *Repository) GetIdentityByUsername(ctx context.Context, username string) (domain.Identity, error) {
	const query = `SELECT id, username, password_hash, created_at FROM identities WHERE username = ?`
	var i domain.Identity
	err := r.db.QueryRowContext(ctx, query, username).Scan(&i.ID, &i.Username, &i.PasswordHash, &i.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Identity{}, err
	}
	return i, nil
}

// CountIdentitiesByUsername は指定ユーザー名のレコード数を返す。
func (r *Repository) CountIdentitiesByUsername(ctx context.Context, username string) (int, error) {
	const query = `SELECT COUNT(1) FROM identities WHERE username = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CreateTask はタスクを保存する。
func (r *Repository) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	const query = `INSERT INTO tasks (id, owner_id, title, description, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	if _, err := r.db.ExecContext(ctx, query,
		task.ID, task.OwnerID, task.Title, task.Description, task.Completed, task.CreatedAt, task.UpdatedAt,
	); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// ListTasksByOwner は所有者のタスクを作成順に返す。
func (r *Repository) ListTasksByOwner(ctx context.Context, ownerID string) ([]domain.Task, error) {
	const query = `SELECT id, owner_id, title, description, completed, created_at, updated_at
		FROM tasks WHERE owner_id = ? ORDER BY created_at, rowid`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTaskByOwner は所有者のタスクを取得する。
// 他のユーザーのタスクは存在しないものとして扱う。
func (r *Repository) GetTaskByOwner(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	return getTask(ctx, r.db, ownerID, taskID)
}

// PatchTask は所有者のタスクを部分更新し、更新後の値を返す。
func (r *Repository) PatchTask(ctx context.Context, ownerID, taskID string, patch domain.TaskPatch) (domain.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := getTask(ctx, tx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}

	updated := patch.Apply(current)
	updated.UpdatedAt = time.Now().UTC()

	const query = `UPDATE tasks SET title = ?, description = ?, completed = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`
	if _, err := tx.ExecContext(ctx, query,
		updated.Title, updated.Description, updated.Completed, updated.UpdatedAt, taskID, ownerID,
	); err != nil {
		return domain.Task{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Task{}, fmt.Errorf("コミットに失敗: %w", err)
	}
	return updated, nil
}

// DeleteTask は所有者のタスクを削除する。
func (r *Repository) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	const query = `DELETE FROM tasks WHERE id = ? AND owner_id = ?`
	res, err := r.db.ExecContext(ctx, query, taskID, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// queryer は*sql.DBと*sql.Txの共通インターフェース。
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type scanner interface {
	Scan(dest ...any) error
}

func getTask(ctx context.Context, q queryer, ownerID, taskID string) (domain.Task, error) {
	const query = `SELECT id, owner_id, title, description, completed, created_at, updated_at
		FROM tasks WHERE id = ? AND owner_id = ?`
	t, err := scanTask(q.QueryRowContext(ctx, query, taskID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func scanTask(s scanner) (domain.Task, error) {
	var t domain.Task
	if err := s.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// isUniqueViolation は一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
