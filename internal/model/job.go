package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Job is a unit of billable work. Paid is NULL while unpaid and true once paid;
// it is never stored as false.
type Job struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Description string          `gorm:"not null;default:''" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Paid        *bool           `json:"paid"`
	PaymentDate *time.Time      `json:"paymentDate"`
	ContractID  uint            `gorm:"not null;index" json:"contractId"`
	Contract    *Contract       `gorm:"-" json:"contract,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (j Job) IsPaid() bool {
	return j.Paid != nil && *j.Paid
}

// PaymentReceipt is everything printed on a paid job receipt.
type PaymentReceipt struct {
	Job        Job
	Contract   Contract
	Client     Profile
	Contractor Profile
}
