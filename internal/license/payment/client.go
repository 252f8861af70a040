package payment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/subscription"
)

// Client wraps the Stripe operations the service needs: starting a
// subscription checkout and resolving plan/billing-reason details while
// processing webhooks.
type Client struct {
	priceIDs map[string]string
}

// NewClient configures the Stripe SDK. priceIDs maps plan ids ("pro",
// "team") to Stripe price ids.
func NewClient(secretKey string, priceIDs map[string]string) *Client {
	stripe.Key = secretKey
	return &Client{priceIDs: priceIDs}
}

// CheckoutIntent is what the embedded checkout frontend needs to confirm the
// payment.
type CheckoutIntent struct {
	ClientSecret   string `json:"clientSecret"`
	SubscriptionID string `json:"subscriptionId"`
	CustomerID     string `json:"customerId"`
	InvoiceID      string `json:"invoiceId"`
}

// CreateSubscriptionCheckout creates a customer and an incomplete
// subscription, then returns the payment intent client secret the frontend
// confirms. When the subscription's first invoice carries no payment intent,
// one is created manually against the invoice amount.
func (c *Client) CreateSubscriptionCheckout(ctx context.Context, planID string) (*CheckoutIntent, error) {
	priceID, ok := c.priceIDs[planID]
	if !ok || priceID == "" {
		return nil, fmt.Errorf("invalid plan: %s", planID)
	}

	cust, err := customer.New(&stripe.CustomerParams{
		Params: stripe.Params{
			Context:  ctx,
			Metadata: map[string]string{"planId": planID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	subParams := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context:  ctx,
			Metadata: map[string]string{"planId": planID},
		},
		Customer: stripe.String(cust.ID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	subParams.AddExpand("latest_invoice")

	sub, err := subscription.New(subParams)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	inv := sub.LatestInvoice
	if inv == nil {
		return nil, fmt.Errorf("subscription %s has no invoice", sub.ID)
	}

	pi, err := c.paymentIntentForInvoice(ctx, cust.ID, sub.ID, planID, inv)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("subscription_id", sub.ID).
		Str("customer_id", cust.ID).
		Str("plan", planID).
		Msg("subscription checkout created")

	return &CheckoutIntent{
		ClientSecret:   pi.ClientSecret,
		SubscriptionID: sub.ID,
		CustomerID:     cust.ID,
		InvoiceID:      inv.ID,
	}, nil
}

// paymentIntentForInvoice returns the payment intent attached to the
// invoice, or creates one manually when the invoice carries none (happens
// with default_incomplete subscriptions before the first confirmation).
func (c *Client) paymentIntentForInvoice(ctx context.Context, customerID, subscriptionID, planID string, inv *stripe.Invoice) (*stripe.PaymentIntent, error) {
	if id := invoicePaymentIntentID(inv); id != "" {
		pi, err := paymentintent.Get(id, &stripe.PaymentIntentParams{
			Params: stripe.Params{Context: ctx},
		})
		if err != nil {
			return nil, fmt.Errorf("retrieve payment intent: %w", err)
		}
		return pi, nil
	}

	log.Debug().
		Str("invoice_id", inv.ID).
		Msg("invoice has no payment intent, creating manually")

	currency := string(inv.Currency)
	if currency == "" {
		currency = "usd"
	}

	pi, err := paymentintent.New(&stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"subscription_id": subscriptionID,
				"invoice_id":      inv.ID,
				"planId":          planID,
			},
		},
		Amount:           stripe.Int64(inv.AmountDue),
		Currency:         stripe.String(currency),
		Customer:         stripe.String(customerID),
		SetupFutureUsage: stripe.String("off_session"),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return pi, nil
}

func invoicePaymentIntentID(inv *stripe.Invoice) string {
	if inv.Payments == nil {
		return ""
	}
	for _, p := range inv.Payments.Data {
		if p.Payment != nil && p.Payment.PaymentIntent != nil {
			return p.Payment.PaymentIntent.ID
		}
	}
	return ""
}

// PlanForSubscription resolves the plan recorded in subscription metadata at
// checkout time.
func (c *Client) PlanForSubscription(ctx context.Context, subscriptionID string) (string, error) {
	sub, err := subscription.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return "", fmt.Errorf("retrieve subscription %s: %w", subscriptionID, err)
	}
	if plan, ok := sub.Metadata["planId"]; ok && plan != "" {
		return plan, nil
	}
	return "pro", nil
}

// InvoiceBillingReason returns the billing reason of an invoice, used to
// distinguish a subscription's first payment from a renewal.
func (c *Client) InvoiceBillingReason(ctx context.Context, invoiceID string) (string, error) {
	inv, err := invoice.Get(invoiceID, &stripe.InvoiceParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return "", fmt.Errorf("retrieve invoice %s: %w", invoiceID, err)
	}
	return string(inv.BillingReason), nil
}
