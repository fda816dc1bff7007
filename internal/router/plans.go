package router

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"astro_bot/internal/config"
	"astro_bot/internal/domain"
)

// Plan identifiers, used in callback data and invoice payloads.
const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

// CurrencyStars is the Telegram Stars currency code.
const CurrencyStars = "XTR"

const payloadPrefix = "premium"

// Plan is a purchasable premium period.
type Plan struct {
	ID       string
	Stars    int
	Duration time.Duration
	Days     int
}

// PlansFromConfig builds the plan list in keyboard order.
func PlansFromConfig(cfg config.PlanConfig) []Plan {
	return []Plan{
		{ID: PlanMonthly, Stars: cfg.MonthlyStars, Days: 30, Duration: 30 * 24 * time.Hour},
		{ID: PlanYearly, Stars: cfg.YearlyStars, Days: 365, Duration: 365 * 24 * time.Hour},
	}
}

// InvoicePayload is the opaque payload attached to an invoice.
func InvoicePayload(planID string, userID int64) string {
	return payloadPrefix + ":" + planID + ":" + strconv.FormatInt(userID, 10)
}

func parseInvoicePayload(payload string) (planID string, userID int64, ok bool) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 || parts[0] != payloadPrefix {
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return parts[1], id, true
}

func findPlan(plans []Plan, id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// CheckPayment validates an invoice payload against the configured plans.
// userID 0 skips the payer check (pre-checkout queries).
func (r *Router) CheckPayment(userID int64, payload, currency string, amount int) (Plan, error) {
	planID, payer, ok := parseInvoicePayload(payload)
	if !ok {
		return Plan{}, fmt.Errorf("%w: malformed invoice payload %q", domain.ErrValidation, payload)
	}
	plan, ok := findPlan(r.settings.Plans, planID)
	if !ok {
		return Plan{}, fmt.Errorf("%w: unknown plan %q", domain.ErrValidation, planID)
	}
	if userID != 0 && payer != userID {
		return Plan{}, fmt.Errorf("%w: invoice issued to %d paid by %d", domain.ErrValidation, payer, userID)
	}
	if currency != CurrencyStars {
		return Plan{}, fmt.Errorf("%w: unexpected currency %q", domain.ErrValidation, currency)
	}
	if amount != plan.Stars {
		return Plan{}, fmt.Errorf("%w: amount %d does not match plan price %d", domain.ErrValidation, amount, plan.Stars)
	}
	return plan, nil
}
