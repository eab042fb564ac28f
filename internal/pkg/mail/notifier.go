package mail

import (
	"context"
	"fmt"
	"html"

	"github.com/Shah039zaib/b2automate/internal/pkg/billing"
)

// Notifier emails billing notices to a tenant's billing contact.
type Notifier struct {
	cfg  Config
	send sendFunc
}

// NewNotifier returns an SMTP notifier, or billing.NopNotifier when SMTP is
// not configured.
func NewNotifier(cfg Config) billing.Notifier {
	if !cfg.Enabled() {
		return billing.NopNotifier{}
	}
	return &Notifier{cfg: cfg}
}

func (n *Notifier) Notify(ctx context.Context, notice billing.Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body := render(notice)
	if n.send != nil {
		return sendMail(n.send, n.cfg, notice.Email, subject, body)
	}
	return SendMail(n.cfg, notice.Email, subject, body)
}

func render(n billing.Notice) (string, string) {
	plan := html.EscapeString(n.PlanName)
	if plan == "" {
		plan = "your plan"
	}
	switch n.Kind {
	case billing.NoticePaymentSucceeded:
		return "Your subscription is active",
			fmt.Sprintf("<p>Thanks for your payment. %s is now active for your workspace.</p>", plan)
	case billing.NoticePaymentFailed:
		return "Payment failed",
			"<p>We could not collect your latest payment. Please update your payment method to keep your AI features.</p>"
	case billing.NoticeManualApproved:
		return "Payment approved",
			fmt.Sprintf("<p>Your payment was verified and %s has been activated.</p>", plan)
	case billing.NoticeManualRejected:
		body := "<p>We could not verify your payment.</p>"
		if n.Reason != "" {
			body += fmt.Sprintf("<p>Reviewer note: %s</p>", html.EscapeString(n.Reason))
		}
		return "Payment could not be verified", body
	case billing.NoticeDowngraded:
		return "Your workspace moved to the free plan",
			"<p>Your paid subscription ended, so your workspace is now on the free plan with its default AI limits.</p>"
	default:
		return "Billing update", "<p>There was an update to your billing.</p>"
	}
}
