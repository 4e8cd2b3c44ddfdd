package service

import (
	"errors"
	"time"

	"github.com/linklit/LinkLit/internal/app/model"
	"github.com/linklit/LinkLit/internal/app/repository"
)

var (
	// ErrQuotaExceeded signals that a non-subscribed user is at the monthly
	// custom-slug ceiling. Distinct from validation errors so clients can
	// prompt an upgrade instead of a format fix.
	ErrQuotaExceeded = errors.New("custom link quota exceeded")
	// ErrUnknownExpiry signals an expiry option outside the supported menu.
	ErrUnknownExpiry = errors.New("unknown expiry option")
)

// Expiry menu accepted from subscribed users.
const (
	Expiry24Hours = "24-hours"
	Expiry2Days   = "2-days"
	Expiry1Week   = "1-week"
	Expiry1Month  = "1-month"
	ExpiryNever   = "never"
)

// Entitlement is the effective creation policy for one request: which slug to
// use ("" means generate), when the link dies (nil means never), and the quota
// counter update that must ride in the persist transaction, if any.
type Entitlement struct {
	Slug      string
	ExpiresAt *time.Time
	Quota     *repository.QuotaIncrement
}

// EntitlementEvaluator applies the tier rules: anonymous callers get generated
// slugs and default expiry, free users spend monthly quota on custom slugs,
// subscribers get everything.
type EntitlementEvaluator struct {
	quotaCeiling     int
	anonExpiryMonths int
}

// NewEntitlementEvaluator builds an evaluator with the configured monthly
// ceiling and default link lifetime.
func NewEntitlementEvaluator(quotaCeiling, anonExpiryMonths int) *EntitlementEvaluator {
	if quotaCeiling <= 0 {
		quotaCeiling = 5
	}
	if anonExpiryMonths <= 0 {
		anonExpiryMonths = 6
	}
	return &EntitlementEvaluator{
		quotaCeiling:     quotaCeiling,
		anonExpiryMonths: anonExpiryMonths,
	}
}

// Evaluate resolves the requested (slug, expiry) pair against the caller's
// tier. A nil user means anonymous. The quota ceiling is checked here, before
// slug format validation or any external call; the returned counter update is
// applied only when the link actually persists.
func (e *EntitlementEvaluator) Evaluate(user *model.User, requestedSlug, requestedExpiry string, now time.Time) (Entitlement, error) {
	// Anonymous callers: both premium knobs are silently ignored.
	if user == nil {
		return Entitlement{ExpiresAt: e.defaultExpiry(now)}, nil
	}

	if user.IsSubscribed {
		expiresAt, err := e.resolveExpiry(requestedExpiry, now)
		if err != nil {
			return Entitlement{}, err
		}
		return Entitlement{Slug: requestedSlug, ExpiresAt: expiresAt}, nil
	}

	// Free tier: expiry request ignored, custom slug spends monthly quota.
	ent := Entitlement{ExpiresAt: e.defaultExpiry(now)}
	if requestedSlug == "" {
		return ent, nil
	}

	count, reset := rolloverUsage(user, now)
	if count >= e.quotaCeiling {
		return Entitlement{}, ErrQuotaExceeded
	}

	ent.Slug = requestedSlug
	ent.Quota = &repository.QuotaIncrement{
		UserID: user.ID,
		Count:  count + 1,
		Reset:  reset,
	}
	return ent, nil
}

// QuotaCeiling exposes the configured monthly ceiling for user-facing messages.
func (e *EntitlementEvaluator) QuotaCeiling() int {
	return e.quotaCeiling
}

func (e *EntitlementEvaluator) defaultExpiry(now time.Time) *time.Time {
	t := now.AddDate(0, e.anonExpiryMonths, 0)
	return &t
}

func (e *EntitlementEvaluator) resolveExpiry(requested string, now time.Time) (*time.Time, error) {
	switch requested {
	case "":
		// A subscriber who sends no expiry has the toggle off: the link
		// never expires. The default lifetime is a free/anonymous rule.
		return nil, nil
	case Expiry24Hours:
		t := now.AddDate(0, 0, 1)
		return &t, nil
	case Expiry2Days:
		t := now.AddDate(0, 0, 2)
		return &t, nil
	case Expiry1Week:
		t := now.AddDate(0, 0, 7)
		return &t, nil
	case Expiry1Month:
		t := now.AddDate(0, 1, 0)
		return &t, nil
	case ExpiryNever:
		return nil, nil
	default:
		return nil, ErrUnknownExpiry
	}
}

// rolloverUsage applies the month boundary: once the stored reset instant has
// passed, the counter starts over and the next reset moves to the first
// instant of the following month.
func rolloverUsage(user *model.User, now time.Time) (count int, reset time.Time) {
	if now.After(user.CustomLinksReset) {
		next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
		return 0, next
	}
	return user.CustomLinksCount, user.CustomLinksReset
}
