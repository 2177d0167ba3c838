// Package migration は番号付きSQLファイルによるSQLiteのスキーマ管理を行う。
//
// ファイル名は "000001_description.up.sql" 形式。適用済みのバージョンは
// schema_migrations テーブルに名前と一緒に記録する。
package migration

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// upSuffix は適用用ファイルの拡張子。
const upSuffix = ".up.sql"

// Migration はスキーマ変更1件。
type Migration struct {
	// Version はファイル名先頭の番号。
	Version int
	// Name はファイル名の説明部分。
	Name string
	// SQL は実行する文。
	SQL string
}

// Load はディレクトリの .up.sql ファイルを読み込み、バージョン順に並べる。
// 番号で始まらないファイルは無視する。
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションディレクトリの読み込みに失敗: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		version, name, ok := parseFileName(entry.Name())
		if entry.IsDir() || !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s の読み込みに失敗: %w", entry.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("バージョン %06d が重複しています (%s, %s)", out[i].Version, out[i-1].Name, out[i].Name)
		}
	}
	return out, nil
}

// parseFileName は "000001_name.up.sql" をバージョンと名前に分ける。
func parseFileName(file string) (int, string, bool) {
	base, found := strings.CutSuffix(file, upSuffix)
	if !found {
		return 0, "", false
	}
	num, name, found := strings.Cut(base, "_")
	if !found {
		return 0, "", false
	}
	version, err := strconv.Atoi(num)
	if err != nil || version <= 0 {
		return 0, "", false
	}
	return version, name, true
}

// Migrator はマイグレーションの適用状態を管理する。
type Migrator struct {
	// db は対象のデータベース。
	db *sql.DB
	// logger はログ出力先。
	logger *zap.Logger
}

// New は新しいMigratorを生成する。
func New(db *sql.DB, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: db, logger: logger}
}

// ensureTable はバージョン管理テーブルを作成する。
func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`)
	if err != nil {
		return fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}
	return nil
}

// Current は適用済みの最大バージョンを返す。未適用の場合は0。
func (m *Migrator) Current(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	var version sql.NullInt64
	if err := m.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("スキーマバージョンの取得に失敗: %w", err)
	}
	return int(version.Int64), nil
}

// applied は適用済みのバージョンを返す。
func (m *Migrator) applied(ctx context.Context) (map[int]struct{}, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	done := make(map[int]struct{})
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("適用済みバージョンの読み込みに失敗: %w", err)
		}
		done[v] = struct{}{}
	}
	return done, rows.Err()
}

// Up は未適用のマイグレーションを順に適用し、適用したバージョンを返す。
// 失敗した場合はそれまでに適用したバージョンとエラーを返す。
func (m *Migrator) Up(ctx context.Context, migrations []Migration) ([]int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, mig := range migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return versions, fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", mig.Version, mig.Name, err)
		}
		versions = append(versions, mig.Version)
		m.logger.Info("migration applied", zap.Int("version", mig.Version), zap.String("name", mig.Name))
	}
	return versions, nil
}

// apply は1件をトランザクション内で実行し、バージョンを記録する。
func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, mig.Version, mig.Name); err != nil {
		return err
	}
	return tx.Commit()
}

// Run はディレクトリのマイグレーションを読み込んで適用する。
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, logger *zap.Logger) ([]int, error) {
	migrations, err := Load(fsys, dir)
	if err != nil {
		return nil, err
	}
	return New(db, logger).Up(ctx, migrations)
}
