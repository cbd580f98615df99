// Package domain defines the persistence models for causes, donations, and
// payouts. These types are mapped with GORM and form the core data layer of
// the donations backend. Amounts are fixed-point decimals; balances are
// always derived from donation and payout rows and never stored.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Cause represents a fundraising target that accepts donations and whose
// collected funds are disbursed to the owner's mobile-money wallet.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name / Description: display metadata.
//   - OwnerPhone: MSISDN that receives payouts.
//   - Currency: ISO-4217 code fixed at creation; donations and payouts must match.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type Cause struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string         `json:"name"        gorm:"type:varchar(255);not null"`
	Description string         `json:"description" gorm:"type:text"`
	OwnerPhone  string         `json:"owner_phone" gorm:"type:varchar(32);not null"`
	Currency    string         `json:"currency"    gorm:"type:char(3);not null;default:''"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Cause.
func (Cause) TableName() string { return "causes" }

// Donation is a single collection (RequestToPay) from a donor's wallet
// towards a cause.
//
// ExternalID is generated at creation and never changes. MomoRefID is the
// gateway reference id; it stays nil until initiation succeeds and is then
// set exactly once. Status moves pending -> success|failed and never back.
type Donation struct {
	ID                     string          `json:"id"                                 gorm:"type:char(36);primaryKey"`
	CauseID                string          `json:"cause_id"                           gorm:"type:char(36);not null;index:idx_cause_donations,priority:1"`
	DonorPhone             string          `json:"donor_phone"                        gorm:"type:varchar(32);not null;index"`
	Amount                 decimal.Decimal `json:"amount"                             gorm:"type:numeric(20,2);not null"`
	Currency               string          `json:"currency"                           gorm:"type:char(3);not null"`
	Status                 Status          `json:"status"                             gorm:"type:varchar(16);not null;default:'pending';index;check:status IN ('pending','success','failed')"`
	ExternalID             string          `json:"external_id"                        gorm:"type:char(36);not null;uniqueIndex"`
	MomoRefID              *string         `json:"momo_ref_id,omitempty"              gorm:"type:varchar(64);uniqueIndex"`
	FinancialTransactionID *string         `json:"financial_transaction_id,omitempty" gorm:"type:varchar(64)"`
	PayerMessage           *string         `json:"payer_message,omitempty"            gorm:"type:varchar(255)"`
	CreatedAt              time.Time       `json:"created_at"                         gorm:"index:idx_cause_donations,priority:2"`
	UpdatedAt              time.Time       `json:"updated_at"`

	// Cause is the owning cause. Deleting a cause with donations is refused
	// at the service layer, so the FK restricts rather than cascades.
	Cause Cause `json:"-" gorm:"foreignKey:CauseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Donation.
func (Donation) TableName() string { return "donations" }

// Payout is a disbursement (Transfer) of collected funds to the cause
// owner. It follows the same reference-id rules as Donation; its terminal
// success state is StatusCompleted.
type Payout struct {
	ID                     string          `json:"id"                                 gorm:"type:char(36);primaryKey"`
	CauseID                string          `json:"cause_id"                           gorm:"type:char(36);not null;index:idx_cause_payouts,priority:1"`
	Amount                 decimal.Decimal `json:"amount"                             gorm:"type:numeric(20,2);not null"`
	Currency               string          `json:"currency"                           gorm:"type:char(3);not null"`
	Status                 Status          `json:"status"                             gorm:"type:varchar(16);not null;default:'pending';index;check:status IN ('pending','completed','failed')"`
	ExternalID             string          `json:"external_id"                        gorm:"type:char(36);not null;uniqueIndex"`
	MomoRefID              *string         `json:"momo_ref_id,omitempty"              gorm:"type:varchar(64);uniqueIndex"`
	FinancialTransactionID *string         `json:"financial_transaction_id,omitempty" gorm:"type:varchar(64)"`
	CreatedAt              time.Time       `json:"created_at"                         gorm:"index:idx_cause_payouts,priority:2"`
	UpdatedAt              time.Time       `json:"updated_at"`

	Cause Cause `json:"-" gorm:"foreignKey:CauseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Payout.
func (Payout) TableName() string { return "payouts" }

// User is an account that can sign in and act on causes. Email is stored
// lower-cased and is unique; the password is kept only as a bcrypt hash.
type User struct {
	ID           string    `json:"id"              gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"           gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string    `json:"-"               gorm:"type:varchar(72);not null"`
	Name         *string   `json:"name,omitempty"  gorm:"type:varchar(255)"`
	Phone        *string   `json:"phone,omitempty" gorm:"type:varchar(32)"`
	Role         Role      `json:"role"            gorm:"type:varchar(16);not null;default:'user'"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Role is a user's authorization level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// MaskPhone hides all but the last four digits of an MSISDN, e.g.
// "237670000001" -> "********0001". Values of four characters or fewer
// are returned unchanged.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
