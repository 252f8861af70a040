package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/gobot/internal/license"
)

// KeyStore is the subset of license.Storage the webhook handler mutates.
// Every method runs its own transaction, so one event maps to one
// transaction.
type KeyStore interface {
	MintSubscriptionKey(ctx context.Context, p license.MintParams) (*license.Key, bool, error)
	ResetSubscriptionUsage(ctx context.Context, subscriptionID string) error
	MarkSubscriptionPastDue(ctx context.Context, subscriptionID string) error
	UpdateSubscriptionStatus(ctx context.Context, subscriptionID, status string) error
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// Notifier dispatches the license-key email. Best effort; it must never
// return an error to the webhook path.
type Notifier interface {
	SendLicenseKey(ctx context.Context, email, keyCode, plan string, limit int)
}

// BillingResolver answers the follow-up Stripe lookups a charge event needs.
type BillingResolver interface {
	PlanForSubscription(ctx context.Context, subscriptionID string) (string, error)
	InvoiceBillingReason(ctx context.Context, invoiceID string) (string, error)
}

// StripeWebhookHandler consumes signed Stripe events and applies the license
// lifecycle transitions.
type StripeWebhookHandler struct {
	store         KeyStore
	billing       BillingResolver
	notifier      Notifier
	webhookSecret string
}

func NewStripeWebhookHandler(store KeyStore, billing BillingResolver, notifier Notifier, webhookSecret string) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		store:         store,
		billing:       billing,
		notifier:      notifier,
		webhookSecret: webhookSecret,
	}
}

// HandleWebhook verifies the event signature and processes it. Signature
// failures are rejected before any storage access; processing failures
// return 500 so Stripe redelivers.
func (h *StripeWebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
	}

	sigHeader := c.Request().Header.Get("Stripe-Signature")
	if sigHeader == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "missing signature header",
		})
	}

	// The handler decodes event payloads into its own minimal structs, so a
	// Stripe API version newer or older than the SDK's pin is fine as long
	// as the signature checks out.
	event, err := webhook.ConstructEventWithOptions(body, sigHeader, h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Warn().Err(err).Msg("webhook signature verification failed")
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid webhook signature",
		})
	}

	resp, err := h.processEvent(c.Request().Context(), &event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("webhook processing failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *StripeWebhookHandler) processEvent(ctx context.Context, event *stripe.Event) (map[string]string, error) {
	eventType := string(event.Type)
	log.Info().Str("event_type", eventType).Msg("received stripe event")

	switch eventType {
	case "charge.succeeded":
		return h.handleChargeSucceeded(ctx, event.Data.Raw)

	case "invoice.payment_failed":
		return h.handlePaymentFailed(ctx, event.Data.Raw)

	case "customer.subscription.updated":
		return h.handleSubscriptionUpdated(ctx, event.Data.Raw)

	case "customer.subscription.deleted":
		return h.handleSubscriptionDeleted(ctx, event.Data.Raw)

	case "customer.subscription.created", "payment_intent.succeeded":
		// Key minting waits for charge.succeeded.
		return ack(), nil

	case "customer.created", "customer.updated",
		"invoice.created", "invoice.finalized",
		"payment_method.attached", "charge.updated",
		"payment_intent.created":
		return ack(), nil

	default:
		log.Warn().Str("event_type", eventType).Msg("unhandled stripe event type")
		return ack(), nil
	}
}

// chargePayload is the slice of a charge object the handler reads. Webhook
// JSON carries related objects as string ids, so a minimal local shape is
// used instead of the SDK struct.
type chargePayload struct {
	Customer       string            `json:"customer"`
	ReceiptEmail   string            `json:"receipt_email"`
	PaymentIntent  string            `json:"payment_intent"`
	Metadata       map[string]string `json:"metadata"`
	BillingDetails struct {
		Email string `json:"email"`
	} `json:"billing_details"`
}

func (h *StripeWebhookHandler) handleChargeSucceeded(ctx context.Context, raw json.RawMessage) (map[string]string, error) {
	var charge chargePayload
	if err := json.Unmarshal(raw, &charge); err != nil {
		return nil, err
	}

	subscriptionID := charge.Metadata["subscription_id"]
	if subscriptionID == "" {
		log.Debug().Msg("charge without subscription metadata, skipping")
		return map[string]string{"status": "success", "message": "not a subscription charge"}, nil
	}

	email := charge.BillingDetails.Email
	if email == "" {
		email = charge.ReceiptEmail
	}

	planID, err := h.billing.PlanForSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	billingReason := ""
	if invoiceID := charge.Metadata["invoice_id"]; invoiceID != "" {
		billingReason, err = h.billing.InvoiceBillingReason(ctx, invoiceID)
		if err != nil {
			return nil, err
		}
	}

	if billingReason == "subscription_create" {
		plan := license.ParsePlan(planID)
		key, created, err := h.store.MintSubscriptionKey(ctx, license.MintParams{
			SubscriptionID:  subscriptionID,
			CustomerID:      charge.Customer,
			PaymentIntentID: charge.PaymentIntent,
			CustomerEmail:   email,
			Plan:            plan,
		})
		if err != nil {
			return nil, err
		}

		if created {
			log.Info().
				Str("key_code", key.KeyCode).
				Str("subscription_id", subscriptionID).
				Str("plan", plan.String()).
				Msg("license key minted for new subscription")
			h.notifier.SendLicenseKey(ctx, email, key.KeyCode, plan.String(), key.UsageLimit)
		} else {
			log.Info().
				Str("key_code", key.KeyCode).
				Str("subscription_id", subscriptionID).
				Msg("key already exists for subscription")
		}

		return map[string]string{"status": "success", "keyCode": key.KeyCode}, nil
	}

	// Renewal charge: fresh monthly window.
	if err := h.store.ResetSubscriptionUsage(ctx, subscriptionID); err != nil {
		return nil, err
	}
	log.Info().Str("subscription_id", subscriptionID).Msg("usage reset for renewal")
	return ack(), nil
}

func (h *StripeWebhookHandler) handlePaymentFailed(ctx context.Context, raw json.RawMessage) (map[string]string, error) {
	var inv struct {
		Subscription  string `json:"subscription"`
		CustomerEmail string `json:"customer_email"`
	}
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, err
	}

	if inv.Subscription == "" {
		return ack(), nil
	}

	if err := h.store.MarkSubscriptionPastDue(ctx, inv.Subscription); err != nil {
		return nil, err
	}
	log.Warn().
		Str("subscription_id", inv.Subscription).
		Str("customer_email", inv.CustomerEmail).
		Msg("payment failed, subscription past due")
	return ack(), nil
}

func (h *StripeWebhookHandler) handleSubscriptionUpdated(ctx context.Context, raw json.RawMessage) (map[string]string, error) {
	var sub struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, err
	}

	if err := h.store.UpdateSubscriptionStatus(ctx, sub.ID, sub.Status); err != nil {
		return nil, err
	}
	log.Info().Str("subscription_id", sub.ID).Str("status", sub.Status).Msg("subscription status updated")
	return ack(), nil
}

func (h *StripeWebhookHandler) handleSubscriptionDeleted(ctx context.Context, raw json.RawMessage) (map[string]string, error) {
	var sub struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, err
	}

	if err := h.store.CancelSubscription(ctx, sub.ID); err != nil {
		return nil, err
	}
	log.Info().Str("subscription_id", sub.ID).Msg("subscription canceled")
	return ack(), nil
}

func ack() map[string]string {
	return map[string]string{"status": "success"}
}
