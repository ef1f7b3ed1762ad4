package model

import "gorm.io/gorm"

// AutoMigrate runs GORM auto-migration for all models and creates custom indexes.
// The partial unique indexes are the idempotency keys of the tracking flow; statements are valid on both
// PostgreSQL and SQLite.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&User{},
		&ReferralCode{},
		&Redemption{},
		&Reward{},
	); err != nil {
		return err
	}

	statements := []string{
		// Case-insensitive unique email for non-soft-deleted users when email is not empty.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower_non_empty " +
			"ON users ((lower(email))) WHERE deleted_at IS NULL AND email <> ''",
		// One open redemption per (code, referee). Emails are stored lower-cased.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_redemptions_pending_referee " +
			"ON redemptions (referral_code_id, referee_email) WHERE status = 'PENDING'",
		// At most one completed redemption per (code, order).
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_redemptions_completed_order " +
			"ON redemptions (referral_code_id, referee_order_id) WHERE status = 'COMPLETED'",
		// One reward of each type per redemption.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_rewards_redemption_type " +
			"ON rewards (redemption_id, type) WHERE redemption_id IS NOT NULL",
		"CREATE INDEX IF NOT EXISTS idx_rewards_beneficiary_type_status " +
			"ON rewards (beneficiary_user_id, type, status)",
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
