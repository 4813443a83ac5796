// Package postgres はPostgreSQL（pgx/v5）による永続化層の実装を提供する。
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nao1215/taskhub/internal/domain"
	"github.com/nao1215/taskhub/internal/repository"
	"github.com/nao1215/taskhub/pkg/migration"
)

//go:embed migrations
var migrationsFS embed.FS

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// Repository はPostgreSQLに対する永続化処理を実装する。
type Repository struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Repository)(nil)

// New は既存の接続プールからRepositoryを生成する。
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open は接続プールを作成し、マイグレーションを適用したRepositoryを返す。
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := migration.Run(ctx, db, migration.DialectPostgres, migrationsFS, "migrations", logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	return New(pool), nil
}

// Ping はデータベースとの疎通を確認する。
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// SchemaVersion は適用済みマイグレーションの最新バージョンを返す。
func (r *Repository) SchemaVersion(ctx context.Context) (int64, error) {
	// OpenDBFromPoolで得た*sql.DBを閉じてもプールは閉じない
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()
	return migration.CurrentVersion(ctx, db, migration.DialectPostgres, migrationsFS, "migrations")
}

// Close は接続プールを閉じる。
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// CreateIdentity はユーザーを登録する。
func (r *Repository) CreateIdentity(ctx context.Context, identity domain.Identity) error {
	const query = `INSERT INTO identities (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, identity.ID, identity.Username, identity.PasswordHash, identity.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

// GetIdentityByUsername はユーザー名でユーザーを取得する。
func (r *Repository) GetIdentityByUsername(ctx context.Context, username string) (domain.Identity, error) {
	const query = `SELECT id, username, password_hash, created_at FROM identities WHERE username = $1`
	var i domain.Identity
	err := r.pool.QueryRow(ctx, query, username).Scan(&i.ID, &i.Username, &i.PasswordHash, &i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Identity{}, err
	}
	return i, nil
}

// CountIdentitiesByUsername は指定ユーザー名のレコード数を返す。
func (r *Repository) CountIdentitiesByUsername(ctx context.Context, username string) (int, error) {
	const query = `SELECT COUNT(1) FROM identities WHERE username = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, username).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CreateTask はタスクを保存する。
func (r *Repository) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	const query = `INSERT INTO tasks (id, owner_id, title, description, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, owner_id, title, description, completed, created_at, updated_at`
	row := r.pool.QueryRow(ctx, query,
		task.ID, task.OwnerID, task.Title, task.Description, task.Completed, task.CreatedAt.UTC(), task.UpdatedAt.UTC(),
	)
	return scanTask(row)
}

// ListTasksByOwner は所有者のタスクを作成順に返す。
func (r *Repository) ListTasksByOwner(ctx context.Context, ownerID string) ([]domain.Task, error) {
	const query = `SELECT id, owner_id, title, description, completed, created_at, updated_at
		FROM tasks WHERE owner_id = $1 ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
func (r *Repository) GetTaskByOwner(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	const query = `SELECT id, owner_id, title, description, completed, created_at, updated_at
		FROM tasks WHERE id = $1 AND owner_id = $2`
	t, err := scanTask(r.pool.QueryRow(ctx, query, taskID, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// PatchTask は所有者のタスクを部分更新し、更新後の値を返す。
// nilのフィールドはCOALESCEにより既存の値を維持する。
func (r *Repository) PatchTask(ctx context.Context, ownerID, taskID string, patch domain.TaskPatch) (domain.Task, error) {
	const query = `UPDATE tasks SET
			title = COALESCE($1, title),
			description = COALESCE($2, description),
			completed = COALESCE($3, completed),
			updated_at = $4
		WHERE id = $5 AND owner_id = $6
		RETURNING id, owner_id, title, description, completed, created_at, updated_at`
	t, err := scanTask(r.pool.QueryRow(ctx, query,
		patch.Title, patch.Description, patch.Completed, time.Now().UTC(), taskID, ownerID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask は所有者のタスクを削除する。
func (r *Repository) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	const query = `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`
	tag, err := r.pool.Exec(ctx, query, taskID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var t domain.Task
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}
