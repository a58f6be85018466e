package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createSnapshotAndAuditTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_snapshot_and_audit_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS profit_snapshots (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id UUID NOT NULL REFERENCES users(id),
					total_profit NUMERIC(38,18) NOT NULL,
					daily_increase NUMERIC(38,18) NOT NULL,
					recorded_at TIMESTAMP WITH TIME ZONE NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_profit_snapshots_user_recorded ON profit_snapshots(user_id, recorded_at DESC);
				CREATE INDEX IF NOT EXISTS idx_profit_snapshots_deleted_at ON profit_snapshots(deleted_at);

				CREATE TABLE IF NOT EXISTS audit_logs (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id UUID,
					target_id UUID,
					event_type VARCHAR(50),
					severity VARCHAR(20),
					description TEXT,
					ip_address VARCHAR(64),
					user_agent TEXT,
					metadata JSONB,
					success BOOLEAN,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_target_id ON audit_logs(target_id);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`
				DROP TABLE IF EXISTS audit_logs;
				DROP TABLE IF EXISTS profit_snapshots;
			`).Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createSnapshotAndAuditTablesMigration())
}
