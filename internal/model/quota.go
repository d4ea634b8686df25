package model

import "time"

// MonthlyQuota is the organization-level export quota for one calendar
// month. Rows are created lazily on first use and mutated only by the quota
// gate, via an atomic decrement-with-floor so remaining never goes negative.
type MonthlyQuota struct {
	OrganizationID string    `json:"organization_id"`
	MonthKey       string    `json:"month_key"`
	Remaining      int       `json:"remaining"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MonthKey formats t as the quota row key for its calendar month.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
