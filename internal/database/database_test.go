package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/emojirades/internal/config"
	apperrors "github.com/wfunc/emojirades/internal/errors"
	"github.com/wfunc/emojirades/internal/models"
)

func TestOpenAndMigrateSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emojirades.db")
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", DSN: path, LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	defer Close(db)

	assert.True(t, IsConnected(context.Background(), db))
	assert.Equal(t, filepath.Base(path), filepath.Base(sqliteFile(db)))

	require.NoError(t, Migrate(db, zap.NewNop()))
	assert.True(t, db.Migrator().HasTable(&models.ChannelState{}))
	assert.True(t, db.Migrator().HasTable(&models.ScoreEvent{}))

	_, err = os.Stat(path + ".migration.lock")
	assert.True(t, os.IsNotExist(err), "lock released")

	// Migrating twice is a no-op.
	require.NoError(t, Migrate(db, nil))

	require.NoError(t, DropAll(db))
	assert.False(t, db.Migrator().HasTable(&models.ScoreEvent{}))
}

func TestStaleMigrationLockIsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emojirades.db")
	lockPath := path + ".migration.lock"
	require.NoError(t, os.WriteFile(lockPath, nil, 0644))
	stale := time.Now().Add(-2 * lockStaleAge)
	require.NoError(t, os.Chtimes(lockPath, stale, stale))

	f, err := acquireMigrationLock(path, zap.NewNop())
	require.NoError(t, err)
	releaseMigrationLock(f, zap.NewNop())
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"}, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, ParseLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, ParseLogLevel("error"))
	assert.Equal(t, gormlogger.Info, ParseLogLevel("info"))
	assert.Equal(t, gormlogger.Warn, ParseLogLevel(""))
}

func TestGormLoggerLogModeCopies(t *testing.T) {
	l := NewGormLogger(zap.NewNop(), gormlogger.Warn)
	quiet := l.LogMode(gormlogger.Silent).(*GormLogger)
	assert.Equal(t, gormlogger.Silent, quiet.logLevel)
	assert.Equal(t, gormlogger.Warn, l.logLevel)
}
