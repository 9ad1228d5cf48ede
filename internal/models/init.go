package models

import (
	"errors"
	"strings"

	"github.com/adsboard-next/internal/constants"
	"github.com/adsboard-next/internal/logger"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	defaultUserEmail    = "admin@adsboard.local"
	defaultUserPassword = "admin123"
)

// InitDefaultUser 初始化默认后台账号，已存在用户时直接返回该邮箱对应账号
func InitDefaultUser(db *gorm.DB, email, password string) (*User, error) {
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		email = defaultUserEmail
	}

	var existing User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		logger.Infow("default_user_skipped_users_exist", "count", count)
		return nil, nil
	}

	if password == "" {
		password = defaultUserPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  "Administrator",
		Status:       constants.UserStatusActive,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}

	if password == defaultUserPassword {
		logger.Warnw("default_user_created_with_default_password", "email", email)
		logger.Warnw("default_user_password_change_required", "email", email)
	} else {
		logger.Warnw("default_user_created", "email", email, "password_hidden", true)
	}
	return &user, nil
}
