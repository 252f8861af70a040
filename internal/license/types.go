package license

import "time"

// Subscription status values reported by the payment provider.
const (
	SubStatusActive   = "active"
	SubStatusTrialing = "trialing"
	SubStatusPastDue  = "past_due"
	SubStatusCanceled = "canceled"
)

// Validation outcome codes for a presented key.
const (
	ResultValid                = "valid"
	ResultInvalid              = "invalid"
	ResultDeactivated          = "deactivated"
	ResultSubscriptionInactive = "subscription_inactive"
	ResultInstallConflict      = "install_conflict"
	ResultQuotaExceeded        = "quota_exceeded"
)

// Key represents one license_keys row.
type Key struct {
	ID            int        `db:"id"`
	KeyCode       string     `db:"key_code"`
	CustomerEmail string     `db:"customer_email"`
	Plan          PlanType   `db:"plan"`
	Install       *string    `db:"install"`

	StripeSubscriptionID  *string `db:"stripe_subscription_id"`
	StripeCustomerID      *string `db:"stripe_customer_id"`
	StripeSessionID       *string `db:"stripe_session_id"`
	StripePaymentIntentID *string `db:"stripe_payment_intent_id"`

	UsageLimit    int        `db:"usage_limit"`
	UsageUsed     int        `db:"usage_used"`
	UsageResetsAt *time.Time `db:"usage_resets_at"`

	IsActive           bool       `db:"is_active"`
	SubscriptionStatus string     `db:"subscription_status"`
	ActivatedAt        *time.Time `db:"activated_at"`
	ExpiresAt          *time.Time `db:"expires_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Remaining returns the unused quota, never negative.
func (k *Key) Remaining() int {
	if r := k.UsageLimit - k.UsageUsed; r > 0 {
		return r
	}
	return 0
}

// SubscriptionUsable reports whether the subscription state still grants
// access.
func (k *Key) SubscriptionUsable() bool {
	return k.SubscriptionStatus == SubStatusActive || k.SubscriptionStatus == SubStatusTrialing
}

// BoundTo reports whether the key has been activated on the given install.
func (k *Key) BoundTo(install string) bool {
	return k.ActivatedAt != nil && k.Install != nil && *k.Install == install
}
