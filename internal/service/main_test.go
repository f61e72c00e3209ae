package service

import (
	"context"
	"path/filepath"
	"testing"

	"lenscape/internal/config"
	"lenscape/internal/database"
	"lenscape/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupSQLite returns a migrated database in a per-test file.
func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(&config.Config{
		DBDriver:   config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "lenscape.db"),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.WithContext(context.Background()).Create(user).Error)
	return user
}
