package model

import "time"

// LeadStatus is the lifecycle state of a lead. Transitions past "new" are
// driven by consuming UI flows; the orchestrator only ever creates leads as
// "new" and reads ownership for dedup.
type LeadStatus string

const (
	LeadStatusNew      LeadStatus = "new"
	LeadStatusViewed   LeadStatus = "viewed"
	LeadStatusSaved    LeadStatus = "saved"
	LeadStatusDeleted  LeadStatus = "deleted"
	LeadStatusReserved LeadStatus = "reserved"
)

// Category is the AI classifier's verdict for a candidate.
type Category string

const (
	CategoryFit       Category = "fit"
	CategoryHighScore Category = "high score"
	CategoryNews      Category = "news"
	CategoryEvent     Category = "event"
)

// AllCategories lists every valid classifier category.
func AllCategories() []Category {
	return []Category{CategoryFit, CategoryHighScore, CategoryNews, CategoryEvent}
}

// Valid reports whether c is a known classifier category.
func (c Category) Valid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// Lead is an accepted, scored candidate owned by a customer.
// (ExternalID, OwnerID) is unique: a candidate already owned is never
// re-inserted.
type Lead struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	OwnerID    string `json:"owner_id"`

	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Title       string `json:"title,omitempty"`
	Company     string `json:"company,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`

	Category Category `json:"category"`
	Reason   string   `json:"reason,omitempty"`
	Score    int      `json:"score"`

	Status    LeadStatus `json:"status"`
	ViewCount int        `json:"view_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CandidateScore is one entry of the classifier's response: the verdict for
// a single enriched candidate, keyed by the provider external id.
type CandidateScore struct {
	ExternalID string   `json:"id"`
	Category   Category `json:"category"`
	Reason     string   `json:"reason"`
	Score      int      `json:"score"`
}

// GenerationResult is what one orchestrator run returns to its caller.
type GenerationResult struct {
	CreatedLeads []Lead `json:"created_leads"`
	Message      string `json:"message,omitempty"`
}
