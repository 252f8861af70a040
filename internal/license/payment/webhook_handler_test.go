package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/gobot/internal/license"
)

const testSecret = "whsec_test_secret"

type fakeKeyStore struct {
	mintCalls int
	mintedKey *license.Key

	resetCalls   []string
	pastDueCalls []string
	statusCalls  []string
	cancelCalls  []string
}

func (f *fakeKeyStore) MintSubscriptionKey(_ context.Context, p license.MintParams) (*license.Key, bool, error) {
	f.mintCalls++
	if f.mintedKey == nil {
		f.mintedKey = &license.Key{
			KeyCode:       "GOBOT-MINT-MINT-MINT",
			CustomerEmail: p.CustomerEmail,
			Plan:          p.Plan,
			UsageLimit:    p.Plan.MonthlyLimit(),
		}
		return f.mintedKey, true, nil
	}
	return f.mintedKey, false, nil
}

func (f *fakeKeyStore) ResetSubscriptionUsage(_ context.Context, subID string) error {
	f.resetCalls = append(f.resetCalls, subID)
	return nil
}

func (f *fakeKeyStore) MarkSubscriptionPastDue(_ context.Context, subID string) error {
	f.pastDueCalls = append(f.pastDueCalls, subID)
	return nil
}

func (f *fakeKeyStore) UpdateSubscriptionStatus(_ context.Context, subID, status string) error {
	f.statusCalls = append(f.statusCalls, subID+":"+status)
	return nil
}

func (f *fakeKeyStore) CancelSubscription(_ context.Context, subID string) error {
	f.cancelCalls = append(f.cancelCalls, subID)
	return nil
}

func (f *fakeKeyStore) totalCalls() int {
	return f.mintCalls + len(f.resetCalls) + len(f.pastDueCalls) + len(f.statusCalls) + len(f.cancelCalls)
}

type fakeBilling struct {
	plan          string
	billingReason string
}

func (f *fakeBilling) PlanForSubscription(context.Context, string) (string, error) {
	return f.plan, nil
}

func (f *fakeBilling) InvoiceBillingReason(context.Context, string) (string, error) {
	return f.billingReason, nil
}

type fakeNotifier struct {
	sends int
}

func (f *fakeNotifier) SendLicenseKey(context.Context, string, string, string, int) {
	f.sends++
}

func signedRequest(t *testing.T, payload string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), testSecret)
	header := fmt.Sprintf("t=%d,v1=%x", now.Unix(), sig)

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	return req, httptest.NewRecorder()
}

func dispatch(t *testing.T, h *StripeWebhookHandler, req *http.Request, rec *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	c := e.NewContext(req, rec)
	require.NoError(t, h.HandleWebhook(c))
}

func eventJSON(eventType, object string) string {
	return fmt.Sprintf(`{"id": "evt_test", "type": %q, "data": {"object": %s}}`, eventType, object)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	store := &fakeKeyStore{}
	h := NewStripeWebhookHandler(store, &fakeBilling{}, &fakeNotifier{}, testSecret)

	payload := eventJSON("charge.succeeded", `{"customer": "cus_1"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	dispatch(t, h, req, rec)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, store.totalCalls(), "signature failure must not touch storage")
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	store := &fakeKeyStore{}
	h := NewStripeWebhookHandler(store, &fakeBilling{}, &fakeNotifier{}, testSecret)

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	dispatch(t, h, req, rec)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, store.totalCalls())
}

func TestWebhookFirstPaymentMintsKeyOnce(t *testing.T) {
	store := &fakeKeyStore{}
	notifier := &fakeNotifier{}
	billing := &fakeBilling{plan: "pro", billingReason: "subscription_create"}
	h := NewStripeWebhookHandler(store, billing, notifier, testSecret)

	charge := `{
		"customer": "cus_1",
		"payment_intent": "pi_1",
		"receipt_email": "buyer@example.com",
		"billing_details": {"email": "buyer@example.com"},
		"metadata": {"subscription_id": "sub_1", "invoice_id": "in_1"}
	}`
	payload := eventJSON("charge.succeeded", charge)

	req, rec := signedRequest(t, payload)
	dispatch(t, h, req, rec)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "GOBOT-MINT-MINT-MINT")
	assert.Equal(t, 1, store.mintCalls)
	assert.Equal(t, 1, notifier.sends)

	// Replay the same event: one key, one email total.
	req2, rec2 := signedRequest(t, payload)
	dispatch(t, h, req2, rec2)

	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "GOBOT-MINT-MINT-MINT")
	assert.Equal(t, 2, store.mintCalls)
	assert.Equal(t, 1, notifier.sends, "replay must not send a second email")
}

func TestWebhookRenewalResetsUsage(t *testing.T) {
	store := &fakeKeyStore{}
	billing := &fakeBilling{plan: "pro", billingReason: "subscription_cycle"}
	h := NewStripeWebhookHandler(store, billing, &fakeNotifier{}, testSecret)

	charge := `{
		"customer": "cus_1",
		"metadata": {"subscription_id": "sub_1", "invoice_id": "in_2"}
	}`
	req, rec := signedRequest(t, eventJSON("charge.succeeded", charge))
	dispatch(t, h, req, rec)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sub_1"}, store.resetCalls)
	assert.Equal(t, 0, store.mintCalls)
}

func TestWebhookNonSubscriptionChargeSkipped(t *testing.T) {
	store := &fakeKeyStore{}
	h := NewStripeWebhookHandler(store, &fakeBilling{}, &fakeNotifier{}, testSecret)

	req, rec := signedRequest(t, eventJSON("charge.succeeded", `{"customer": "cus_1", "metadata": {}}`))
	dispatch(t, h, req, rec)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, store.totalCalls())
}

func TestWebhookPaymentFailed(t *testing.T) {
	store := &fakeKeyStore{}
	h := NewStripeWebhookHandler(store, &fakeBilling{}, &fakeNotifier{}, testSecret)

	req, rec := signedRequest(t, eventJSON("invoice.payment_failed",
		`{"subscription": "sub_1", "customer_email": "buyer@example.com"}`))
	dispatch(t, h, req, rec)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sub_1"}, store.pastDueCalls)
}

func TestWebhookSubscriptionUpdated(t *testing.T) {
	store := &fakeKeyStore{}
	h := NewStripeWebhookHandler(store, &fakeBilling{}, &fakeNotifier{}, testSecret)

	req, rec := signedRequest(t, eventJSON("customer.subscription.updated",
		`{"id": "sub_1", "status": "past_due"}`))
	dispatch(t, h, req, rec)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sub_1:past_due"}, store.statusCalls)
}

func TestWebhookSubscriptionDeleted(t *testing.T) {
	store := &fakeKeyStore{}
	h := NewStripeWebhookHandler(store, &fakeBilling{}, &fakeNotifier{}, testSecret)

	req, rec := signedRequest(t, eventJSON("customer.subscription.deleted", `{"id": "sub_1"}`))
	dispatch(t, h, req, rec)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sub_1"}, store.cancelCalls)
}

func TestWebhookAcceptsOtherAPIVersions(t *testing.T) {
	// Stripe sends events at the API version the endpoint is pinned to,
	// which need not match the SDK's pin. A validly signed event must be
	// processed regardless.
	store := &fakeKeyStore{}
	h := NewStripeWebhookHandler(store, &fakeBilling{}, &fakeNotifier{}, testSecret)

	payload := `{"id": "evt_test", "api_version": "2023-10-16",` +
		` "type": "customer.subscription.deleted", "data": {"object": {"id": "sub_1"}}}`
	req, rec := signedRequest(t, payload)
	dispatch(t, h, req, rec)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sub_1"}, store.cancelCalls)
}

func TestWebhookInformationalEventsAckOnly(t *testing.T) {
	store := &fakeKeyStore{}
	h := NewStripeWebhookHandler(store, &fakeBilling{}, &fakeNotifier{}, testSecret)

	for _, kind := range []string{
		"customer.created", "invoice.finalized", "payment_intent.created",
		"customer.subscription.created", "payment_intent.succeeded",
		"some.future.event",
	} {
		req, rec := signedRequest(t, eventJSON(kind, `{"id": "obj_1"}`))
		dispatch(t, h, req, rec)
		assert.Equal(t, http.StatusOK, rec.Code, kind)
	}
	assert.Equal(t, 0, store.totalCalls())
}
