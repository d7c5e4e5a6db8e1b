// Package testutil 提供测试共用的内存数据库。
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"praivio-go/internal/model"
)

// OpenDB 为每个测试打开一个独立的内存 sqlite 库并迁移全部模型。
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// CreateUser 写入一个测试用户。
func CreateUser(t *testing.T, db *gorm.DB, username string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.org",
		PasswordHash: "x",
		PasswordSalt: "x",
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}
