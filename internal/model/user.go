// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// User 对应 users 表。密码只保存 PBKDF2 哈希和盐。
type User struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"type:varchar(128);not null" json:"-"`
	PasswordSalt string     `gorm:"type:varchar(128);not null" json:"-"`
	Role         Role       `gorm:"type:varchar(16);not null" json:"role"`
	Organization string     `gorm:"type:varchar(255)" json:"organization"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
