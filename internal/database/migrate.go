package database

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS license_keys (
		id SERIAL PRIMARY KEY,
		key_code VARCHAR(255) UNIQUE NOT NULL,
		customer_email VARCHAR(255) NOT NULL,
		plan VARCHAR(50) NOT NULL,
		install VARCHAR(255),

		stripe_subscription_id VARCHAR(255),
		stripe_customer_id VARCHAR(255),
		stripe_session_id VARCHAR(255),
		stripe_payment_intent_id VARCHAR(255),

		usage_limit INTEGER NOT NULL,
		usage_used INTEGER DEFAULT 0,
		usage_resets_at TIMESTAMP,

		is_active BOOLEAN DEFAULT true,
		subscription_status VARCHAR(50) DEFAULT 'active',
		activated_at TIMESTAMP,
		expires_at TIMESTAMP,

		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_license_key_code ON license_keys(key_code)`,
	`CREATE INDEX IF NOT EXISTS idx_license_email ON license_keys(customer_email)`,
	`CREATE INDEX IF NOT EXISTS idx_license_subscription ON license_keys(stripe_subscription_id)`,
	`CREATE INDEX IF NOT EXISTS idx_license_customer ON license_keys(stripe_customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_license_session ON license_keys(stripe_session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_license_install ON license_keys(install)`,

	`CREATE TABLE IF NOT EXISTS tickets (
		id SERIAL PRIMARY KEY,
		install VARCHAR(255),
		ticket_title TEXT,
		ticket_description TEXT,
		issue_type VARCHAR(50),
		priority VARCHAR(50),
		clarified_output JSONB,
		processing_time FLOAT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_install ON tickets(install)`,

	`CREATE TABLE IF NOT EXISTS feedback (
		id SERIAL PRIMARY KEY,
		install VARCHAR(255),
		ticket_title TEXT,
		ticket_description TEXT,
		clarified_output JSONB,
		feedback_type VARCHAR(20) CHECK (feedback_type IN ('upvote', 'downvote')),
		comment TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_install ON feedback(install)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_type ON feedback(feedback_type)`,
}

// Migrate applies the schema. Every statement is idempotent so it is safe to
// run on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
