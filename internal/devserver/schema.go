package devserver

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"go.uber.org/zap"

	"github.com/nao1215/notifysync/pkg/migration"
)

// migrationsFS はスキーマ定義のマイグレーションファイル。
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
