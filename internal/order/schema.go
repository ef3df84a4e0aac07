package order

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/nao1215/ecommerce/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// initSchema は注文サービスのマイグレーションを適用する。
func initSchema(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
