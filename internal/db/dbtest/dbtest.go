// Package dbtest opens throwaway SQLite databases for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/event-network/internal/db"
)

// Open returns a migrated in-memory SQLite database private to t.
//
// The pool is capped at one connection so that concurrent callers
// serialize on the same shared-cache database instead of failing with
// "database table is locked".
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// SeedProfiles inserts profiles and registers each of them to eventID when non-zero.
func SeedProfiles(t *testing.T, gdb *gorm.DB, eventID uint64, profiles ...db.Profile) {
	t.Helper()

	for i := range profiles {
		require.NoError(t, gdb.Create(&profiles[i]).Error)
		if eventID != 0 {
			require.NoError(t, gdb.Create(&db.Registration{EventID: eventID, UserID: profiles[i].ID}).Error)
		}
	}
}
