package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/wfunc/emojirades/internal/errors"
	"github.com/wfunc/emojirades/internal/models"
)

// Migrate creates or updates every table. File-backed sqlite databases are
// guarded by a lock file so two processes never migrate at once.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	if db == nil {
		return apperrors.New(apperrors.ErrDatabaseConnect, "database not initialized")
	}
	if log == nil {
		log = zap.NewNop()
	}

	if path := sqliteFile(db); path != "" {
		lockFile, err := acquireMigrationLock(path, log)
		if err != nil {
			return err
		}
		defer releaseMigrationLock(lockFile, log)
	}

	log.Info("migrating database")
	for _, model := range models.All() {
		if err := db.AutoMigrate(model); err != nil {
			log.Error("migration failed", zap.String("model", fmt.Sprintf("%T", model)), zap.Error(err))
			return apperrors.Wrapf(err, apperrors.ErrPersistenceWrite, "migrate %T", model)
		}
		log.Debug("migrated", zap.String("model", fmt.Sprintf("%T", model)))
	}
	log.Info("database migrated")
	return nil
}

// sqliteFile returns the main database file of a sqlite connection, or ""
// for other drivers and in-memory databases.
func sqliteFile(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "sqlite", "sqlite3":
	default:
		return ""
	}

	sqlDB, err := db.DB()
	if err != nil {
		return ""
	}
	rows, err := sqlDB.Query("PRAGMA database_list")
	if err != nil {
		return ""
	}
	defer rows.Close()

	for rows.Next() {
		var seq int
		var name, file string
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return ""
		}
		if name == "main" {
			return file
		}
	}
	return ""
}

// DropAll drops every table. Used by tests.
func DropAll(db *gorm.DB) error {
	all := models.All()
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return err
		}
	}
	return nil
}
