package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReportRange bounds reports by payment date. From is inclusive, To is
// exclusive; nil means unbounded.
type ReportRange struct {
	From *time.Time
	To   *time.Time
}

type ProfessionEarnings struct {
	Profession  string          `json:"profession"`
	TotalEarned decimal.Decimal `json:"totalEarned"`
}

type ClientTotal struct {
	UserID    uint            `json:"userId"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	TotalPaid decimal.Decimal `json:"totalPaid"`
}

func (c ClientTotal) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type ClientReport struct {
	Range   ReportRange
	Limit   int
	Clients []ClientTotal
}
