package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
)

// MigrateDB 迁移全部数据库模式。
// users 表使用自定义 SQL 创建：password 是 TEXT 列，AutoMigrate 在 MySQL 上
// 处理带 TEXT 列的表时需要显式的索引长度，其余表交给 AutoMigrate。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if err := migrateUsersTable(db); err != nil {
		return fmt.Errorf("failed to migrate users table: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.Room{},
		&domain.Membership{},
		&domain.Message{},
	); err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// migrateUsersTable 创建或更新 users 表
func migrateUsersTable(db *gorm.DB) error {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'users'").Count(&count)

	if count == 0 {
		sql := `
		CREATE TABLE users (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(191) NOT NULL,
			password TEXT NOT NULL,
			email VARCHAR(191),
			created_at DATETIME(3),
			updated_at DATETIME(3),
			UNIQUE INDEX idx_username (username),
			UNIQUE INDEX idx_email (email)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
		`
		if err := db.Exec(sql).Error; err != nil {
			logrus.Errorf("Failed to create users table: %v", err)
			return fmt.Errorf("failed to create users table: %w", err)
		}
		logrus.Info("Users table created successfully")
		return nil
	}

	// 表已存在，让 AutoMigrate 补齐缺失的列或索引
	if err := db.AutoMigrate(&domain.User{}); err != nil {
		logrus.Errorf("Failed to auto-migrate User table: %v", err)
		return fmt.Errorf("failed to migrate user indexes: %w", err)
	}
	logrus.Info("Users table schema checked/updated successfully")
	return nil
}
