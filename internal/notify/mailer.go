package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/rs/zerolog/log"
)

const sendTimeout = 10 * time.Second

const installURL = "https://gobot.dev/install"

// Mailer sends license-key emails through Mailgun. When Mailgun is not
// configured, or a send fails, the key is logged instead so it is never
// silently lost.
type Mailer struct {
	mg   *mailgun.MailgunImpl
	from string
}

// NewMailer returns a Mailer. With an empty domain or apiKey every send
// falls back to logging.
func NewMailer(domain, apiKey, from string) *Mailer {
	m := &Mailer{from: from}
	if domain != "" && apiKey != "" {
		m.mg = mailgun.NewMailgun(domain, apiKey)
	}
	return m
}

// SendLicenseKey delivers the key to the customer. Best effort: delivery
// problems are logged, never propagated, so payment processing cannot be
// blocked by the mail provider.
func (m *Mailer) SendLicenseKey(ctx context.Context, email, keyCode, plan string, limit int) {
	if email == "" {
		log.Warn().Str("key_code", keyCode).Msg("no customer email for license key")
		return
	}
	if m.mg == nil {
		m.logFallback(email, keyCode, plan, limit)
		return
	}

	subject := fmt.Sprintf("Your GoBot %s License Key 🎉", plan)
	msg := m.mg.NewMessage(m.from, subject, licenseKeyText(keyCode, plan, limit), email)
	msg.SetHtml(licenseKeyHTML(keyCode, plan, limit))

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, _, err := m.mg.Send(sendCtx, msg); err != nil {
		log.Error().Err(err).Str("email", email).Msg("failed to send license key email")
		m.logFallback(email, keyCode, plan, limit)
		return
	}
	log.Info().Str("email", email).Str("plan", plan).Msg("license key email sent")
}

func (m *Mailer) logFallback(email, keyCode, plan string, limit int) {
	log.Warn().
		Str("email", email).
		Str("key_code", keyCode).
		Str("plan", plan).
		Int("monthly_limit", limit).
		Msg("license key email not sent, deliver manually")
}

func licenseKeyText(keyCode, plan string, limit int) string {
	return fmt.Sprintf(`Hi there!

Welcome to GoBot %[1]s!

Your License Key: %[2]s

📊 Your Plan:
- %[1]s Subscription
- %[3]d clarifications per month
- Renews automatically
- Cancel anytime

🚀 How to Activate (3 easy steps):

1. Install GoBot in your Jira workspace: %[4]s
2. Open any Jira ticket
3. Enter your license key in the GoBot panel

That's it! Start clarifying vague tickets into crystal-clear requirements.

💡 Pro Tip: Your usage resets on the 1st of each month.

Need help? Just reply to this email.

Happy clarifying! ✨
The GoBot Team
`, plan, keyCode, limit, installURL)
}

func licenseKeyHTML(keyCode, plan string, limit int) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #10b981;">🤖 GoBot</h1>
  <h2>Welcome to GoBot %[1]s!</h2>
  <p>Thank you for subscribing! Here's your license key:</p>
  <div style="background: #10b981; border-radius: 12px; padding: 24px; text-align: center; margin: 24px 0;">
    <code style="color: white; font-size: 20px; font-weight: bold; letter-spacing: 1px;">%[2]s</code>
  </div>
  <h3>📊 Your Plan</h3>
  <ul>
    <li><strong>%[1]s</strong> Subscription</li>
    <li><strong>%[3]d</strong> clarifications per month</li>
    <li>Renews automatically</li>
    <li>Cancel anytime</li>
  </ul>
  <h3>🚀 How to Activate</h3>
  <ol>
    <li><a href="%[4]s">Install GoBot</a> in your Jira workspace</li>
    <li>Open any Jira ticket</li>
    <li>Enter your license key in the GoBot panel</li>
  </ol>
  <p>💡 <strong>Pro Tip:</strong> Your usage resets on the 1st of each month.</p>
  <p>Need help? Just reply to this email.</p>
  <p>Happy clarifying! ✨<br><strong>The GoBot Team</strong></p>
</body>
</html>`, plan, keyCode, limit, installURL)
}
