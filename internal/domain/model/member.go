package model

import (
	"database/sql/driver"
	"time"
)

// MemberStatus represents the subscription status of a member
type MemberStatus string

const (
	MemberStatusActive      MemberStatus = "active"
	MemberStatusExpired     MemberStatus = "expired"
	MemberStatusWhitelisted MemberStatus = "whitelisted"
)

// Scan implements sql.Scanner interface
func (s *MemberStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = MemberStatus(v)
	case []byte:
		*s = MemberStatus(v)
	default:
		*s = MemberStatusExpired
	}
	return nil
}

// Value implements driver.Valuer interface
func (s MemberStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// PaymentMethod represents how a member pays for access
type PaymentMethod string

const (
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodStars       PaymentMethod = "stars"
	PaymentMethodWhitelisted PaymentMethod = "whitelisted"
	PaymentMethodNone        PaymentMethod = "none"
)

// Scan implements sql.Scanner interface
func (m *PaymentMethod) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*m = PaymentMethod(v)
	case []byte:
		*m = PaymentMethod(v)
	default:
		*m = PaymentMethodNone
	}
	return nil
}

// Value implements driver.Valuer interface
func (m PaymentMethod) Value() (driver.Value, error) {
	return string(m), nil
}

// Member represents one end user's subscription record.
//
// Invariants (owned by the subscription ledger, not enforced here):
//   - status whitelisted <=> NextPaymentDate is nil
//   - status active      =>  PaymentMethod is card or stars
type Member struct {
	UserID             int64         `gorm:"primaryKey" json:"user_id"`
	Username           *string       `gorm:"size:100" json:"username,omitempty"`
	Status             MemberStatus  `gorm:"size:20;not null;default:'expired';index" json:"status"`
	PaymentMethod      PaymentMethod `gorm:"size:20;not null;default:'none'" json:"payment_method"`
	NextPaymentDate    *time.Time    `gorm:"index" json:"next_payment_date,omitempty"`
	CardPaymentID      *string       `gorm:"size:100" json:"card_payment_id,omitempty"`
	StarsTransactionID *string       `gorm:"size:100" json:"stars_transaction_id,omitempty"`
	LastRemindedAt     *time.Time    `json:"last_reminded_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Member) TableName() string {
	return "members"
}

// IsActive reports whether the member currently has access.
func (m *Member) IsActive(today time.Time) bool {
	if m.Status == MemberStatusWhitelisted {
		return true
	}
	if m.Status == MemberStatusActive && m.NextPaymentDate != nil {
		return !m.NextPaymentDate.Before(DateOf(today))
	}
	return false
}

// DaysUntilExpiry returns the number of days until the subscription expires,
// or nil when no expiry applies.
func (m *Member) DaysUntilExpiry(today time.Time) *int {
	if m.Status != MemberStatusActive || m.NextPaymentDate == nil {
		return nil
	}
	days := int(m.NextPaymentDate.Sub(DateOf(today)).Hours() / 24)
	return &days
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
