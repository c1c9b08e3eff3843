package config

// PlanConfig describes the single subscription plan the service sells.
type PlanConfig struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	AmountCents int64 `yaml:"amount_cents"`
	Currency   string `yaml:"currency"`
	// PeriodDays is the length of one billing period. The product bills
	// monthly; a period is fixed at 30 days.
	PeriodDays int `yaml:"period_days"`
	// StarsAmount is the price when paying through the native invoice rail.
	StarsAmount int64 `yaml:"stars_amount"`
}

// SchedulerConfig configures the daily reconciliation sweep.
type SchedulerConfig struct {
	// CheckTime is the UTC wall-clock time of the daily sweep, "HH:MM".
	CheckTime string `yaml:"check_time"`
	// ReminderDays lists how many days before expiry reminders go out.
	ReminderDays []int `yaml:"reminder_days"`
}
