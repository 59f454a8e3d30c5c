package database

import (
	"os"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/wfunc/emojirades/internal/errors"
)

const (
	lockAttempts = 30
	lockStaleAge = 5 * time.Minute
)

// acquireMigrationLock creates <dbPath>.migration.lock exclusively, waiting
// for another process to finish and removing locks older than lockStaleAge.
func acquireMigrationLock(dbPath string, log *zap.Logger) (*os.File, error) {
	lockPath := dbPath + ".migration.lock"

	for i := 0; i < lockAttempts; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			log.Debug("migration lock acquired", zap.String("lock", lockPath))
			return lockFile, nil
		}

		if info, err := os.Stat(lockPath); err == nil && time.Since(info.ModTime()) > lockStaleAge {
			log.Warn("removing stale migration lock", zap.String("lock", lockPath))
			os.Remove(lockPath)
			continue
		}

		log.Debug("waiting for migration lock", zap.Int("attempt", i+1))
		time.Sleep(time.Second)
	}

	return nil, apperrors.Newf(apperrors.ErrDatabaseConnect, "migration lock %s is held by another process", lockPath)
}

func releaseMigrationLock(lockFile *os.File, log *zap.Logger) {
	if lockFile == nil {
		return
	}
	lockPath := lockFile.Name()
	lockFile.Close()
	os.Remove(lockPath)
	log.Debug("migration lock released", zap.String("lock", lockPath))
}
