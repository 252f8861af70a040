package license

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// maxKeygenAttempts bounds retries when an insert hits the unique constraint
// on key_code. At 36^12 key space this effectively never loops.
const maxKeygenAttempts = 5

const keyColumns = `id, key_code, customer_email, plan, install,
	stripe_subscription_id, stripe_customer_id, stripe_session_id, stripe_payment_intent_id,
	usage_limit, usage_used, usage_resets_at,
	is_active, subscription_status, activated_at, expires_at,
	created_at, updated_at`

// Storage provides DB operations over license_keys.
type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage { return &Storage{db: db} }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKey(row rowScanner) (*Key, error) {
	var k Key
	err := row.Scan(
		&k.ID, &k.KeyCode, &k.CustomerEmail, &k.Plan, &k.Install,
		&k.StripeSubscriptionID, &k.StripeCustomerID, &k.StripeSessionID, &k.StripePaymentIntentID,
		&k.UsageLimit, &k.UsageUsed, &k.UsageResetsAt,
		&k.IsActive, &k.SubscriptionStatus, &k.ActivatedAt, &k.ExpiresAt,
		&k.CreatedAt, &k.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan license key: %w", err)
	}
	return &k, nil
}

// GetByKeyCode returns the key or nil if not present.
func (s *Storage) GetByKeyCode(ctx context.Context, keyCode string) (*Key, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM license_keys WHERE key_code = $1`, keyCode)
	return scanKey(row)
}

// GetBySubscriptionID returns the key tied to a payment-provider
// subscription, or nil.
func (s *Storage) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Key, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM license_keys WHERE stripe_subscription_id = $1`, subscriptionID)
	return scanKey(row)
}

// GetBySessionID returns the key minted for a checkout session, or nil.
func (s *Storage) GetBySessionID(ctx context.Context, sessionID string) (*Key, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM license_keys WHERE stripe_session_id = $1`, sessionID)
	return scanKey(row)
}

// GetByPaymentIntentID returns the key minted for a payment intent, or nil.
func (s *Storage) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Key, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM license_keys WHERE stripe_payment_intent_id = $1`, paymentIntentID)
	return scanKey(row)
}

// FindActiveByInstall returns the newest active key bound to an install, or
// nil.
func (s *Storage) FindActiveByInstall(ctx context.Context, install string) (*Key, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM license_keys
		 WHERE install = $1 AND is_active = true
		 ORDER BY created_at DESC LIMIT 1`, install)
	return scanKey(row)
}

// GetFreeKeyByEmail returns the free-tier key for an email, or nil.
func (s *Storage) GetFreeKeyByEmail(ctx context.Context, email string) (*Key, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM license_keys
		 WHERE customer_email = $1 AND plan = 'free'`, strings.ToLower(email))
	return scanKey(row)
}

// InsertFreeKey mints a fresh free-tier key for the email.
func (s *Storage) InsertFreeKey(ctx context.Context, email string) (*Key, error) {
	limit := PlanFree.MonthlyLimit()

	for attempt := 0; attempt < maxKeygenAttempts; attempt++ {
		code, err := GenerateKeyCode()
		if err != nil {
			return nil, err
		}

		row := s.db.QueryRowContext(ctx,
			`INSERT INTO license_keys
			 (key_code, customer_email, plan, usage_limit, usage_used,
			  usage_resets_at, subscription_status, is_active)
			 VALUES ($1, $2, 'free', $3, 0, NOW() + INTERVAL '1 month', 'active', true)
			 RETURNING `+keyColumns,
			code, strings.ToLower(email), limit)

		key, err := scanKey(row)
		if err == nil {
			return key, nil
		}
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("insert free key: %w", err)
		}
	}
	return nil, errors.New("insert free key: exhausted key generation attempts")
}

// ReactivateFreeKey re-enables a previously deactivated free key with a fresh
// monthly window.
func (s *Storage) ReactivateFreeKey(ctx context.Context, keyCode string) (*Key, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE license_keys
		 SET is_active = true,
		     usage_used = 0,
		     usage_resets_at = NOW() + INTERVAL '1 month',
		     subscription_status = 'active',
		     updated_at = NOW()
		 WHERE key_code = $1
		 RETURNING `+keyColumns, keyCode)

	key, err := scanKey(row)
	if err != nil {
		return nil, fmt.Errorf("reactivate free key: %w", err)
	}
	if key == nil {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// ConsumeUsage atomically increments the usage counter if quota remains.
// The conditional update is the only quota check; zero affected rows means
// the request must be rejected before any downstream work. Returns the
// post-increment counters and whether the increment was applied.
func (s *Storage) ConsumeUsage(ctx context.Context, keyCode string) (used, limit int, applied bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE license_keys
		 SET usage_used = usage_used + 1,
		     updated_at = NOW()
		 WHERE key_code = $1
		   AND is_active = true
		   AND usage_used < usage_limit
		 RETURNING usage_used, usage_limit`, keyCode)

	err = row.Scan(&used, &limit)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("consume usage: %w", err)
	}
	return used, limit, true, nil
}

// ResetDueUsage performs the monthly sweep: zero the counter and advance the
// reset date by one month for every active, active-subscription key that is
// due. Idempotent; rows not yet due are untouched.
func (s *Storage) ResetDueUsage(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE license_keys
		 SET usage_used = 0,
		     usage_resets_at = usage_resets_at + INTERVAL '1 month',
		     updated_at = NOW()
		 WHERE is_active = true
		   AND subscription_status = 'active'
		   AND usage_resets_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("reset due usage: %w", err)
	}
	return res.RowsAffected()
}

// DeactivateOtherKeys unbinds every other activated key on an install so the
// install holds at most one active key.
func (s *Storage) DeactivateOtherKeys(ctx context.Context, install, keepKeyCode string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE license_keys
		 SET is_active = false,
		     activated_at = NULL,
		     updated_at = NOW()
		 WHERE install = $1
		   AND key_code != $2
		   AND activated_at IS NOT NULL`, install, keepKeyCode)
	if err != nil {
		return 0, fmt.Errorf("deactivate other keys: %w", err)
	}
	return res.RowsAffected()
}

// BindInstall activates the key on an install. The activated_at IS NULL
// guard makes the bind first-wins under concurrent validation; the loser
// sees zero rows and reports an install conflict.
func (s *Storage) BindInstall(ctx context.Context, keyCode, install string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE license_keys
		 SET install = $2,
		     activated_at = NOW(),
		     updated_at = NOW()
		 WHERE key_code = $1
		   AND activated_at IS NULL`, keyCode, install)
	if err != nil {
		return false, fmt.Errorf("bind install: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("bind install: %w", err)
	}
	return n == 1, nil
}

// MintParams carries the payment-provider identifiers for a subscription key.
type MintParams struct {
	SubscriptionID  string
	CustomerID      string
	PaymentIntentID string
	CustomerEmail   string
	Plan            PlanType
}

// MintSubscriptionKey creates exactly one key per subscription id. The check
// and insert run in one transaction; replaying the same first-payment event
// returns the existing key with created=false.
func (s *Storage) MintSubscriptionKey(ctx context.Context, p MintParams) (*Key, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin mint tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM license_keys WHERE stripe_subscription_id = $1`,
		p.SubscriptionID)
	existing, err := scanKey(row)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	limit := p.Plan.MonthlyLimit()
	var minted *Key
	for attempt := 0; attempt < maxKeygenAttempts; attempt++ {
		code, genErr := GenerateKeyCode()
		if genErr != nil {
			return nil, false, genErr
		}

		row := tx.QueryRowContext(ctx,
			`INSERT INTO license_keys
			 (key_code, customer_email, plan,
			  stripe_subscription_id, stripe_customer_id, stripe_payment_intent_id,
			  usage_limit, usage_used, usage_resets_at, subscription_status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NOW() + INTERVAL '1 month', 'active')
			 RETURNING `+keyColumns,
			code, p.CustomerEmail, p.Plan.String(),
			p.SubscriptionID, p.CustomerID, p.PaymentIntentID, limit)

		minted, err = scanKey(row)
		if err == nil {
			break
		}
		if !isUniqueViolation(err) {
			return nil, false, fmt.Errorf("insert subscription key: %w", err)
		}
		minted = nil
	}
	if minted == nil {
		return nil, false, errors.New("insert subscription key: exhausted key generation attempts")
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit mint tx: %w", err)
	}
	return minted, true, nil
}

// ResetSubscriptionUsage resets the counter after a renewal charge.
func (s *Storage) ResetSubscriptionUsage(ctx context.Context, subscriptionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE license_keys
		 SET usage_used = 0,
		     usage_resets_at = NOW() + INTERVAL '1 month',
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $1
		   AND subscription_status = 'active'`, subscriptionID)
	if err != nil {
		return fmt.Errorf("reset subscription usage: %w", err)
	}
	return nil
}

// MarkSubscriptionPastDue flags a subscription after a failed invoice.
func (s *Storage) MarkSubscriptionPastDue(ctx context.Context, subscriptionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE license_keys
		 SET subscription_status = 'past_due',
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $1`, subscriptionID)
	if err != nil {
		return fmt.Errorf("mark past due: %w", err)
	}
	return nil
}

// UpdateSubscriptionStatus applies a provider-reported status change. The key
// stays usable only while the subscription is active or trialing.
func (s *Storage) UpdateSubscriptionStatus(ctx context.Context, subscriptionID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE license_keys
		 SET subscription_status = $2,
		     is_active = ($2 IN ('active', 'trialing')),
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $1`, subscriptionID, status)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return nil
}

// CancelSubscription deactivates the key when the subscription is deleted.
func (s *Storage) CancelSubscription(ctx context.Context, subscriptionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE license_keys
		 SET is_active = false,
		     subscription_status = 'canceled',
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $1`, subscriptionID)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}
