package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"community-points/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string, points int64, joined time.Time) *models.User {
	t.Helper()
	u := &models.User{
		ExternalID:  "ext-" + username,
		Username:    username,
		DisplayName: username,
		TotalPoints: points,
		JoinedAt:    joined,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createPost(t *testing.T, db *gorm.DB, owner *models.User, externalID string, status models.PostStatus) *models.Post {
	t.Helper()
	p := &models.Post{
		UserID:         owner.ID,
		ExternalPostID: externalID,
		URL:            "https://x.com/" + owner.Username + "/status/" + externalID,
		AuthorUsername: owner.Username,
		Content:        "Excited about @layeredge",
		Status:         status,
		Source:         "api",
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func ledgerSum(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, db.Model(&models.PointsHistory{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points_awarded), 0)").
		Scan(&sum).Error)
	return sum
}

func reloadUser(t *testing.T, db *gorm.DB, id string) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.Where("id = ?", id).First(&u).Error)
	return u
}
