package models

// BudgetPeriod defines the time window for a budget policy.
type BudgetPeriod string

const (
	BudgetHourly  BudgetPeriod = "hourly"
	BudgetDaily   BudgetPeriod = "daily"
	BudgetMonthly BudgetPeriod = "monthly"
)

// BudgetPolicy defines max remote calls per provider per period.
// Provider "*" matches every provider.
type BudgetPolicy struct {
	Provider    string       `json:"provider" yaml:"provider" toml:"provider"`
	MaxRequests int64        `json:"max_requests" yaml:"max_requests" toml:"max_requests"`
	Period      BudgetPeriod `json:"period" yaml:"period" toml:"period"`
}

// BudgetStatus shows current usage against a policy.
type BudgetStatus struct {
	Policy    BudgetPolicy `json:"policy"`
	Used      int64        `json:"used"`
	Remaining int64        `json:"remaining"`
}
