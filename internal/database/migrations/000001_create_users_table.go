package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createUsersTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_users_table",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`
				CREATE EXTENSION IF NOT EXISTS "pgcrypto";

				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					email VARCHAR(255) NOT NULL,
					username VARCHAR(50),
					referral_code VARCHAR(64) NOT NULL,
					referred_by UUID REFERENCES users(id),
					telegram_chat_id BIGINT,
					language VARCHAR(8) DEFAULT 'en',
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_referral_code ON users(referral_code);
				CREATE INDEX IF NOT EXISTS idx_users_referred_by ON users(referred_by);
				CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);
				CREATE INDEX IF NOT EXISTS idx_users_deleted_at ON users(deleted_at);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP TABLE IF EXISTS users`).Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createUsersTableMigration())
}
