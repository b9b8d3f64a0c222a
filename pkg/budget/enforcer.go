package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/tracker"
)

// ErrBudgetExceeded is returned when a provider has used up its request
// ceiling for the current period.
var ErrBudgetExceeded = errors.New("request budget exceeded")

// Enforcer checks remote call counts against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	tracker  tracker.Tracker
	now      func() time.Time
}

// New creates an Enforcer with the given policies and tracker.
func New(policies []models.BudgetPolicy, t tracker.Tracker) *Enforcer {
	return &Enforcer{policies: policies, tracker: t, now: time.Now}
}

// Check returns ErrBudgetExceeded if the provider has reached any
// applicable policy.
func (e *Enforcer) Check(ctx context.Context, provider string) error {
	if e == nil {
		return nil
	}
	for _, p := range e.applicablePolicies(provider) {
		used, err := e.used(ctx, p, provider)
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxRequests {
			return fmt.Errorf("%w: %d/%d %s requests", ErrBudgetExceeded, used, p.MaxRequests, p.Period)
		}
	}
	return nil
}

// Status returns usage against every configured policy.
func (e *Enforcer) Status(ctx context.Context) ([]models.BudgetStatus, error) {
	if e == nil {
		return nil, nil
	}
	statuses := make([]models.BudgetStatus, 0, len(e.policies))
	for _, p := range e.policies {
		used, err := e.used(ctx, p, p.Provider)
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: max(0, p.MaxRequests-used),
		})
	}
	return statuses, nil
}

// used counts calls for a policy. A wildcard policy checked on behalf of a
// specific provider still counts every provider.
func (e *Enforcer) used(ctx context.Context, p models.BudgetPolicy, provider string) (int64, error) {
	scope := provider
	if p.Provider == tracker.AllProviders {
		scope = tracker.AllProviders
	}
	return e.tracker.CountSince(ctx, scope, periodStart(p.Period, e.now()))
}

func (e *Enforcer) applicablePolicies(provider string) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policies {
		if p.Provider == tracker.AllProviders || p.Provider == provider {
			result = append(result, p)
		}
	}
	return result
}

func periodStart(period models.BudgetPeriod, now time.Time) time.Time {
	now = now.UTC()
	switch period {
	case models.BudgetHourly:
		return now.Truncate(time.Hour)
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
