package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// The partial unique indexes back the duplicate-claim guards of the
// withdrawal ledger at the database level.
func createReferralAndWithdrawalTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_referral_and_withdrawal_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS referral_earnings (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					referrer_id UUID NOT NULL REFERENCES users(id),
					user_id UUID NOT NULL REFERENCES users(id),
					investment_id UUID NOT NULL REFERENCES investments(id),
					amount NUMERIC(38,18) NOT NULL,
					percentage NUMERIC(6,3) NOT NULL,
					level INTEGER NOT NULL,
					withdrawn BOOLEAN NOT NULL DEFAULT FALSE,
					withdrawn_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_referral_earning_triple
					ON referral_earnings(referrer_id, user_id, investment_id);
				CREATE INDEX IF NOT EXISTS idx_referral_earnings_created_at ON referral_earnings(created_at);
				CREATE INDEX IF NOT EXISTS idx_referral_earnings_deleted_at ON referral_earnings(deleted_at);
			`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS withdrawal_requests (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					kind VARCHAR(20) NOT NULL,
					user_id UUID NOT NULL REFERENCES users(id),
					investment_id UUID NOT NULL REFERENCES investments(id),
					referral_user_id UUID REFERENCES users(id),
					earning_id UUID REFERENCES referral_earnings(id),
					batch_id UUID,
					amount NUMERIC(38,18) NOT NULL,
					earned_interest NUMERIC(38,18) NOT NULL DEFAULT 0,
					withdrawn_profits NUMERIC(38,18) NOT NULL DEFAULT 0,
					days_invested INTEGER,
					address VARCHAR(128),
					status VARCHAR(20) NOT NULL,
					reason TEXT,
					processed_at TIMESTAMP WITH TIME ZONE,
					version INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE,
					CONSTRAINT chk_withdrawal_requests_amount CHECK (amount > 0)
				);

				CREATE INDEX IF NOT EXISTS idx_withdrawal_claim ON withdrawal_requests(kind, investment_id, status);
				CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_user_id ON withdrawal_requests(user_id);
				CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_referral_user_id ON withdrawal_requests(referral_user_id);
				CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_batch_id ON withdrawal_requests(batch_id);
				CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_created_at ON withdrawal_requests(created_at);
				CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_deleted_at ON withdrawal_requests(deleted_at);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_withdrawal_one_pending
					ON withdrawal_requests(investment_id, kind) WHERE status = 'PENDING' AND kind <> 'referral';
				CREATE UNIQUE INDEX IF NOT EXISTS idx_withdrawal_one_referral_claim
					ON withdrawal_requests(user_id, referral_user_id, investment_id)
					WHERE kind = 'referral' AND status IN ('PENDING', 'COMPLETED');

				CREATE TABLE IF NOT EXISTS withdrawal_histories (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					withdrawal_id UUID REFERENCES withdrawal_requests(id),
					status VARCHAR(20) NOT NULL,
					notes TEXT,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_withdrawal_histories_withdrawal_id ON withdrawal_histories(withdrawal_id);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`
				DROP TABLE IF EXISTS withdrawal_histories;
				DROP TABLE IF EXISTS withdrawal_requests;
				DROP TABLE IF EXISTS referral_earnings;
			`).Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createReferralAndWithdrawalTablesMigration())
}
