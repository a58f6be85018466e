package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createInvestmentTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_investment_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS investments (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					user_id UUID NOT NULL REFERENCES users(id),
					plan_tier VARCHAR(20) NOT NULL,
					amount NUMERIC(38,18) NOT NULL,
					duration INTEGER NOT NULL,
					roi NUMERIC(10,4) NOT NULL,
					duration_bonus NUMERIC(10,4) NOT NULL DEFAULT 0,
					effective_roi NUMERIC(10,4) NOT NULL,
					bonus_amount NUMERIC(38,18) NOT NULL DEFAULT 0,
					bonus_unlock_at TIMESTAMP WITH TIME ZONE,
					bonus_withdrawn BOOLEAN NOT NULL DEFAULT FALSE,
					wallet_address VARCHAR(128),
					start_date TIMESTAMP WITH TIME ZONE,
					end_date TIMESTAMP WITH TIME ZONE,
					last_upgrade_date TIMESTAMP WITH TIME ZONE,
					accumulated_interest NUMERIC(38,18) NOT NULL DEFAULT 0,
					withdrawn_profits NUMERIC(38,18) NOT NULL DEFAULT 0,
					pending_roi NUMERIC(10,4),
					pending_tier VARCHAR(20),
					rate_activation_date TIMESTAMP WITH TIME ZONE,
					status VARCHAR(20) NOT NULL,
					closed_at TIMESTAMP WITH TIME ZONE,
					version INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE,
					CONSTRAINT chk_investments_amount CHECK (amount > 0),
					CONSTRAINT chk_investments_interest CHECK (accumulated_interest >= 0 AND withdrawn_profits >= 0)
				);

				CREATE INDEX IF NOT EXISTS idx_investments_user_id ON investments(user_id);
				CREATE INDEX IF NOT EXISTS idx_investments_status ON investments(status);
				CREATE INDEX IF NOT EXISTS idx_investments_created_at ON investments(created_at);
				CREATE INDEX IF NOT EXISTS idx_investments_deleted_at ON investments(deleted_at);
				CREATE INDEX IF NOT EXISTS idx_investments_activation
					ON investments(rate_activation_date) WHERE pending_roi IS NOT NULL;
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS investment_upgrades (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					investment_id UUID NOT NULL REFERENCES investments(id),
					user_id UUID NOT NULL REFERENCES users(id),
					upgrade_type VARCHAR(20) NOT NULL,
					additional_amount NUMERIC(38,18) NOT NULL DEFAULT 0,
					old_package VARCHAR(20),
					new_package VARCHAR(20),
					old_apy NUMERIC(10,4),
					new_apy NUMERIC(10,4),
					old_duration INTEGER,
					new_duration INTEGER,
					old_end_date TIMESTAMP WITH TIME ZONE,
					new_end_date TIMESTAMP WITH TIME ZONE,
					accumulated_interest NUMERIC(38,18) NOT NULL DEFAULT 0,
					sender_address VARCHAR(128),
					status VARCHAR(20) NOT NULL,
					requested_at TIMESTAMP WITH TIME ZONE,
					processed_at TIMESTAMP WITH TIME ZONE,
					rejection_reason TEXT,
					version INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_investment_upgrades_investment_id ON investment_upgrades(investment_id);
				CREATE INDEX IF NOT EXISTS idx_investment_upgrades_user_id ON investment_upgrades(user_id);
				CREATE INDEX IF NOT EXISTS idx_investment_upgrades_status ON investment_upgrades(status);
				CREATE INDEX IF NOT EXISTS idx_investment_upgrades_created_at ON investment_upgrades(created_at);
				CREATE INDEX IF NOT EXISTS idx_investment_upgrades_deleted_at ON investment_upgrades(deleted_at);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_investment_upgrades_one_pending
					ON investment_upgrades(investment_id) WHERE status = 'PENDING' AND upgrade_type = 'amount';
			`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS reinvestments (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					investment_id UUID NOT NULL REFERENCES investments(id),
					user_id UUID NOT NULL REFERENCES users(id),
					source VARCHAR(20) NOT NULL,
					amount NUMERIC(38,18) NOT NULL,
					old_amount NUMERIC(38,18) NOT NULL,
					new_amount NUMERIC(38,18) NOT NULL,
					old_package VARCHAR(20),
					new_package VARCHAR(20),
					old_roi NUMERIC(10,4),
					new_roi NUMERIC(10,4),
					activation_date TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_reinvestments_investment_id ON reinvestments(investment_id);
				CREATE INDEX IF NOT EXISTS idx_reinvestments_user_id ON reinvestments(user_id);
				CREATE INDEX IF NOT EXISTS idx_reinvestments_deleted_at ON reinvestments(deleted_at);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`
				DROP TABLE IF EXISTS reinvestments;
				DROP TABLE IF EXISTS investment_upgrades;
				DROP TABLE IF EXISTS investments;
			`).Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createInvestmentTablesMigration())
}
