package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProfileType string

const (
	ProfileTypeClient     ProfileType = "client"
	ProfileTypeContractor ProfileType = "contractor"
)

type Profile struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	FirstName  string          `gorm:"not null" json:"firstName"`
	LastName   string          `gorm:"not null" json:"lastName"`
	Profession string          `gorm:"not null;default:''" json:"profession"`
	Balance    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"balance"`
	Type       ProfileType     `gorm:"type:varchar(16);not null;index" json:"type"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func (p Profile) IsClient() bool {
	return p.Type == ProfileTypeClient
}

func (p Profile) IsContractor() bool {
	return p.Type == ProfileTypeContractor
}

func (p Profile) FullName() string {
	return p.FirstName + " " + p.LastName
}
