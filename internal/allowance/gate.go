// Package allowance gates how often and how much a customer may run the
// lead pipeline: an organization-level monthly export quota and a
// per-customer refresh allowance with a sliding cooldown.
package allowance

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prospectly/leadgen-cli/internal/model"
	"github.com/prospectly/leadgen-cli/internal/store"
)

// Store is the subset of store.Store the gate needs.
type Store interface {
	GetProfile(ctx context.Context, customerID string) (*model.CustomerProfile, error)
	UpdateAllowance(ctx context.Context, customerID string, allowance int, nextAllowedAt *time.Time) error
	GetQuota(ctx context.Context, orgID, monthKey string) (*model.MonthlyQuota, error)
	SeedQuota(ctx context.Context, orgID, monthKey string, allotment int) error
	DecrementQuota(ctx context.Context, orgID, monthKey string, count int) (int, bool, error)
}

// RefreshDecision is the outcome of a refresh allowance check.
type RefreshDecision struct {
	Allowed bool
	RetryAt *time.Time
}

// QuotaDecision is the outcome of an export quota check.
type QuotaDecision struct {
	OK        bool
	Remaining int
}

// Gate enforces quota and refresh allowance policies.
type Gate struct {
	store            Store
	refillAmount     int
	cooldown         time.Duration
	monthlyAllotment int

	now func() time.Time
}

// NewGate creates a Gate. refillAmount is the allowance restored when the
// last unit is spent; cooldown is the wait between refreshes while
// allowance remains; monthlyAllotment seeds new quota rows.
func NewGate(s Store, refillAmount int, cooldown time.Duration, monthlyAllotment int) *Gate {
	return &Gate{
		store:            s,
		refillAmount:     refillAmount,
		cooldown:         cooldown,
		monthlyAllotment: monthlyAllotment,
		now:              time.Now,
	}
}

// ConsumeRefresh spends one unit of the customer's refresh allowance.
// Spending the last unit refills the allowance and gates the next refresh
// behind the next calendar day at 00:01 local time instead of the short
// cooldown. bypass skips all checks and mutations (internal/test paths).
func (g *Gate) ConsumeRefresh(ctx context.Context, customerID string, bypass bool) (RefreshDecision, error) {
	if bypass {
		return RefreshDecision{Allowed: true}, nil
	}

	p, err := g.store.GetProfile(ctx, customerID)
	if err != nil {
		return RefreshDecision{}, eris.Wrap(err, "allowance: load profile")
	}

	now := g.now()
	if p.RefreshAllowance < 1 {
		zap.L().Info("refresh rejected, allowance exhausted",
			zap.String("customer_id", customerID),
		)
		return RefreshDecision{}, nil
	}
	if p.RefreshAllowance > 1 && p.NextAllowedRefreshAt != nil && p.NextAllowedRefreshAt.After(now) {
		retryAt := *p.NextAllowedRefreshAt
		zap.L().Info("refresh rejected, cooldown active",
			zap.String("customer_id", customerID),
			zap.Time("retry_at", retryAt),
		)
		return RefreshDecision{RetryAt: &retryAt}, nil
	}

	var (
		newAllowance int
		nextAt       time.Time
	)
	if p.RefreshAllowance > 1 {
		newAllowance = p.RefreshAllowance - 1
		nextAt = now.Add(g.cooldown)
	} else {
		// Last unit: refill, gated by the daily boundary.
		newAllowance = g.refillAmount
		nextAt = nextDailyBoundary(now)
	}

	if err := g.store.UpdateAllowance(ctx, customerID, newAllowance, &nextAt); err != nil {
		return RefreshDecision{}, eris.Wrap(err, "allowance: update allowance")
	}
	zap.L().Debug("refresh allowed",
		zap.String("customer_id", customerID),
		zap.Int("allowance", newAllowance),
		zap.Time("next_allowed_at", nextAt),
	)
	return RefreshDecision{Allowed: true}, nil
}

// nextDailyBoundary returns 00:01 local time on the day after t.
func nextDailyBoundary(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 1, 0, 0, t.Location())
}

// CheckAndDecrementQuota atomically spends count units of the
// organization's quota for the current month. The floor check lives in the
// store's conditional update, so concurrent spends can never overdraw.
// A missing quota row fails the check but is seeded for subsequent calls.
func (g *Gate) CheckAndDecrementQuota(ctx context.Context, orgID string, count int) (QuotaDecision, error) {
	monthKey := model.MonthKey(g.now())

	remaining, ok, err := g.store.DecrementQuota(ctx, orgID, monthKey, count)
	if err != nil {
		return QuotaDecision{}, eris.Wrap(err, "allowance: decrement quota")
	}
	if ok {
		return QuotaDecision{OK: true, Remaining: remaining}, nil
	}

	q, err := g.store.GetQuota(ctx, orgID, monthKey)
	if err != nil {
		if eris.Is(err, store.ErrQuotaNotFound) {
			if seedErr := g.store.SeedQuota(ctx, orgID, monthKey, g.monthlyAllotment); seedErr != nil {
				return QuotaDecision{}, eris.Wrap(seedErr, "allowance: seed quota")
			}
			return QuotaDecision{}, nil
		}
		return QuotaDecision{}, eris.Wrap(err, "allowance: get quota")
	}
	return QuotaDecision{Remaining: q.Remaining}, nil
}
