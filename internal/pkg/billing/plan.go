package billing

import (
	"strings"

	"github.com/Shah039zaib/b2automate/app/models"
)

func normalizeProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		return models.BillingProviderStripe
	}
	return p
}

func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case models.BillingStatusActive,
		models.BillingStatusTrialing,
		models.BillingStatusPastDue,
		models.BillingStatusCanceled,
		models.BillingStatusUnpaid,
		models.BillingStatusIncomplete,
		models.BillingStatusIncompleteExpired:
		return s
	case "":
		return models.BillingStatusActive
	default:
		return models.BillingStatusIncomplete
	}
}

// isEntitlingStatus reports whether a subscription in this status keeps its
// plan's entitlement. past_due keeps it until the provider gives up.
func isEntitlingStatus(status string) bool {
	switch normalizeStatus(status) {
	case models.BillingStatusActive, models.BillingStatusTrialing, models.BillingStatusPastDue:
		return true
	default:
		return false
	}
}

// isDowngradeStatus reports whether a transition into status forces the
// tenant back to the free plan.
func isDowngradeStatus(status string) bool {
	switch normalizeStatus(status) {
	case models.BillingStatusCanceled, models.BillingStatusUnpaid:
		return true
	default:
		return false
	}
}

func manualSubscriptionID(paymentID uint) string {
	return "manual:" + uintToString(paymentID)
}
