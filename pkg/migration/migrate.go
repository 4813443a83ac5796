// Package migration はデータベーススキーマのマイグレーションを管理する。
// embed.FSに埋め込んだgoose形式のSQLファイルを読み込み、未適用のものだけを順に適用する。
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// Dialect はマイグレーション対象のSQL方言。
type Dialect string

const (
	// DialectSQLite はSQLiteを表す。
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres はPostgreSQLを表す。
	DialectPostgres Dialect = "postgres"
)

// gooseDialect はgooseの方言定数に変換する。
func (d Dialect) gooseDialect() (goose.Dialect, error) {
	switch d {
	case DialectSQLite:
		return goose.DialectSQLite3, nil
	case DialectPostgres:
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("未対応のSQL方言です: %q", d)
	}
}

// Run はembedされたマイグレーションファイルをバージョン順に適用する。
// 適用済みのものはスキップするため、何度呼び出しても安全。
// ファイル名形式: 00001_description.sql
func Run(ctx context.Context, db *sql.DB, dialect Dialect, fsys fs.FS, dir string, logger *slog.Logger) error {
	provider, err := newProvider(db, dialect, fsys, dir)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	for _, r := range results {
		logger.Info("migration applied",
			"version", r.Source.Version,
			"path", r.Source.Path,
			"duration_ms", r.Duration.Milliseconds(),
		)
	}
	return nil
}

// CurrentVersion は適用済みの最新バージョンを返す。未適用の場合は0を返す。
func CurrentVersion(ctx context.Context, db *sql.DB, dialect Dialect, fsys fs.FS, dir string) (int64, error) {
	provider, err := newProvider(db, dialect, fsys, dir)
	if err != nil {
		return 0, err
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}
	return version, nil
}

// newProvider はディレクトリ単位でgooseのProviderを生成する。
// グローバル状態を持つgoose.SetBaseFSは使わない。
func newProvider(db *sql.DB, dialect Dialect, fsys fs.FS, dir string) (*goose.Provider, error) {
	gd, err := dialect.gooseDialect()
	if err != nil {
		return nil, err
	}

	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションディレクトリの参照に失敗: %w", err)
	}

	provider, err := goose.NewProvider(gd, db, sub)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションの準備に失敗: %w", err)
	}
	return provider, nil
}
