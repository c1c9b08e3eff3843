package config

type ServiceConfig struct {
	Name           string            `yaml:"name"`
	Environment    string            `yaml:"environment"`
	Version        string            `yaml:"version"`
	WebhookSecret  string            `yaml:"webhook_secret"`
	AdminJWTSecret string            `yaml:"admin_jwt_secret"`
	CardLink       CardLinkConfig    `yaml:"cardlink"`
	Invoice        InvoiceConfig     `yaml:"invoice"`
	Group          GroupConfig       `yaml:"group"`
	Notifier       NotifierConfig    `yaml:"notifier"`
	Idempotency    IdempotencyConfig `yaml:"idempotency"`
}

// CardLinkConfig configures the primary card payment-link provider.
type CardLinkConfig struct {
	BaseURL  string `yaml:"base_url"`
	ClientID string `yaml:"client_id"`
	APIKey   string `yaml:"api_key"`
}

// InvoiceConfig configures the secondary native-invoice provider.
type InvoiceConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIToken string `yaml:"api_token"`
}

// GroupConfig configures the group-management collaborator.
type GroupConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIToken string `yaml:"api_token"`
	GroupID  int64  `yaml:"group_id"`
}

// NotifierConfig configures the reminder/notification collaborator.
type NotifierConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIToken string `yaml:"api_token"`
}

// IdempotencyConfig selects the processed-event ledger backend.
type IdempotencyConfig struct {
	// Backend is either "postgres" or "redis". The redis backend is required
	// for multi-replica deployments where webhook duplicates can land on
	// different instances.
	Backend string `yaml:"backend"`
	Redis   struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}
