package license

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ValidatorStore is the subset of Storage the validator needs.
type ValidatorStore interface {
	GetByKeyCode(ctx context.Context, keyCode string) (*Key, error)
	DeactivateOtherKeys(ctx context.Context, install, keepKeyCode string) (int64, error)
	BindInstall(ctx context.Context, keyCode, install string) (bool, error)
}

// ValidationResult is the outcome of presenting a key from an install.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Code      string `json:"-"`
	Install   string `json:"install,omitempty"`
	Plan      string `json:"plan,omitempty"`
	Message   string `json:"message,omitempty"`
	Remaining int    `json:"gobotsRemaining,omitempty"`
}

// Validator decides whether a presented key is usable and binds it to its
// install.
type Validator struct {
	store ValidatorStore
}

func NewValidator(store ValidatorStore) *Validator { return &Validator{store: store} }

// Validate runs the lifecycle checks in strict order, first failure wins:
// existence, active flag, subscription status, install binding, quota. On the
// valid path it enforces one active key per install and binds an unbound key
// to the caller.
func (v *Validator) Validate(ctx context.Context, keyCode, install string) (*ValidationResult, error) {
	keyCode = strings.ToUpper(strings.TrimSpace(keyCode))

	key, err := v.store.GetByKeyCode(ctx, keyCode)
	if err != nil {
		return nil, err
	}

	if key == nil {
		return &ValidationResult{
			Code:    ResultInvalid,
			Message: "Invalid license key. Please check and try again.",
		}, nil
	}

	if !key.IsActive {
		return &ValidationResult{
			Code:    ResultDeactivated,
			Message: "This license key has been deactivated. Please contact support.",
		}, nil
	}

	if !key.SubscriptionUsable() {
		return &ValidationResult{
			Code:    ResultSubscriptionInactive,
			Message: fmt.Sprintf("Subscription is %s. Please update your payment method.", key.SubscriptionStatus),
		}, nil
	}

	if key.ActivatedAt != nil && key.Install != nil && *key.Install != install {
		return &ValidationResult{
			Code:    ResultInstallConflict,
			Message: "This license key is already activated on another workspace.",
		}, nil
	}

	if key.UsageUsed >= key.UsageLimit {
		resetsAt := "soon"
		if key.UsageResetsAt != nil {
			resetsAt = key.UsageResetsAt.Format("January 02")
		}
		return &ValidationResult{
			Code:    ResultQuotaExceeded,
			Message: fmt.Sprintf("Monthly limit of %d reached. Resets on %s.", key.UsageLimit, resetsAt),
		}, nil
	}

	// One active key per install: switching to this key unbinds any old one.
	deactivated, err := v.store.DeactivateOtherKeys(ctx, install, keyCode)
	if err != nil {
		return nil, err
	}
	if deactivated > 0 {
		log.Info().
			Str("install", install).
			Int64("count", deactivated).
			Msg("deactivated old keys for install")
	}

	if key.ActivatedAt == nil {
		bound, err := v.store.BindInstall(ctx, keyCode, install)
		if err != nil {
			return nil, err
		}
		if !bound {
			// Lost a bind race: another install claimed the key between the
			// read and the conditional update. Re-read to confirm.
			current, err := v.store.GetByKeyCode(ctx, keyCode)
			if err != nil {
				return nil, err
			}
			if current == nil || !current.BoundTo(install) {
				return &ValidationResult{
					Code:    ResultInstallConflict,
					Message: "This license key is already activated on another workspace.",
				}, nil
			}
		} else {
			log.Info().
				Str("key_code", keyCode).
				Str("install", install).
				Msg("license key activated")
		}
	}

	return &ValidationResult{
		Valid:     true,
		Code:      ResultValid,
		Install:   install,
		Plan:      key.Plan.String(),
		Message:   "License key validated successfully!",
		Remaining: key.Remaining(),
	}, nil
}
