package budget

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/tracker"
)

func setup(t *testing.T) (tracker.Tracker, context.Context) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "budget_test.db")
	tr, err := tracker.New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr, context.Background()
}

func record(t *testing.T, tr tracker.Tracker, provider string, n int) {
	t.Helper()
	for range n {
		err := tr.Record(context.Background(), models.UsageRecord{
			Provider: provider, Operation: models.OpTranslate, Items: 1,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestCheckUnderBudget(t *testing.T) {
	tr, ctx := setup(t)
	record(t, tr, "libre", 2)

	e := New([]models.BudgetPolicy{
		{Provider: "*", MaxRequests: 10, Period: models.BudgetDaily},
	}, tr)

	if err := e.Check(ctx, "libre"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckExceeded(t *testing.T) {
	tr, ctx := setup(t)
	record(t, tr, "libre", 3)

	e := New([]models.BudgetPolicy{
		{Provider: "libre", MaxRequests: 3, Period: models.BudgetHourly},
	}, tr)

	err := e.Check(ctx, "libre")
	if err == nil {
		t.Fatal("expected budget exceeded error")
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}

	// other providers are not bound by the libre policy
	if err := e.Check(ctx, "openai"); err != nil {
		t.Errorf("expected no error for openai, got %v", err)
	}
}

func TestWildcardCountsEveryProvider(t *testing.T) {
	tr, ctx := setup(t)
	record(t, tr, "libre", 2)
	record(t, tr, "openai", 1)

	e := New([]models.BudgetPolicy{
		{Provider: "*", MaxRequests: 3, Period: models.BudgetDaily},
	}, tr)

	if err := e.Check(ctx, "openai"); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	tr, ctx := setup(t)
	record(t, tr, "libre", 4)

	e := New([]models.BudgetPolicy{
		{Provider: "*", MaxRequests: 100, Period: models.BudgetDaily},
		{Provider: "libre", MaxRequests: 3, Period: models.BudgetMonthly},
	}, tr)

	statuses, err := e.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Used != 4 || statuses[0].Remaining != 96 {
		t.Errorf("unexpected wildcard status %+v", statuses[0])
	}
	if statuses[1].Remaining != 0 {
		t.Errorf("remaining must not go negative, got %d", statuses[1].Remaining)
	}
}

func TestNilEnforcer(t *testing.T) {
	var e *Enforcer
	if err := e.Check(context.Background(), "libre"); err != nil {
		t.Errorf("nil enforcer must allow everything, got %v", err)
	}
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 42, 7, 0, time.UTC)
	tests := []struct {
		period models.BudgetPeriod
		want   time.Time
	}{
		{models.BudgetHourly, time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)},
		{models.BudgetDaily, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
		{models.BudgetMonthly, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := periodStart(tt.period, now); !got.Equal(tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.period, tt.want, got)
		}
	}
}
