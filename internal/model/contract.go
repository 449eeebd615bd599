package model

import "time"

type ContractStatus string

const (
	ContractStatusNew        ContractStatus = "new"
	ContractStatusInProgress ContractStatus = "in_progress"
	ContractStatusTerminated ContractStatus = "terminated"
)

type Contract struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Terms        string         `gorm:"not null;default:''" json:"terms"`
	Status       ContractStatus `gorm:"type:varchar(16);not null" json:"status"`
	ClientID     uint           `gorm:"not null;index" json:"clientId"`
	ContractorID uint           `gorm:"not null;index" json:"contractorId"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// HasParty reports whether the profile is the client or the contractor of c.
func (c Contract) HasParty(profileID uint) bool {
	return c.ClientID == profileID || c.ContractorID == profileID
}
