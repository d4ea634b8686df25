// Package model defines the core domain types shared across the lead
// generation pipeline: customer profiles, leads, and quota records.
package model

import "time"

// GenerationStatus tracks where a customer's lead generation run stands.
type GenerationStatus string

const (
	GenerationNotStarted GenerationStatus = "not_started"
	GenerationOngoing    GenerationStatus = "ongoing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// PersonaCriteria is one side of a customer's targeting profile (ICP or
// buyer persona). All fields are optional; the query builder turns whatever
// is present into a provider search query.
type PersonaCriteria struct {
	Titles       []string `json:"titles,omitempty"`
	Seniorities  []string `json:"seniorities,omitempty"`
	Industries   []string `json:"industries,omitempty"`
	Locations    []string `json:"locations,omitempty"`
	CompanySizes []string `json:"company_sizes,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// Empty reports whether no criteria have been set.
func (p PersonaCriteria) Empty() bool {
	return len(p.Titles) == 0 && len(p.Seniorities) == 0 && len(p.Industries) == 0 &&
		len(p.Locations) == 0 && len(p.CompanySizes) == 0 && len(p.Keywords) == 0 &&
		p.Notes == ""
}

// CustomerProfile is the per-customer generation state record. It is the
// single point of coordination between runs: the orchestrator claims it,
// advances the pagination cursor on it, and the allowance gate mutates the
// refresh counters on it.
type CustomerProfile struct {
	CustomerID     string `json:"customer_id"`
	OrganizationID string `json:"organization_id"`

	IdealCustomer PersonaCriteria `json:"ideal_customer"`
	BuyerPersona  PersonaCriteria `json:"buyer_persona"`

	GenerationStatus GenerationStatus `json:"generation_status"`

	// LastQuery caches the provider query derived from the personas so
	// resumed runs skip the expensive AI derivation.
	LastQuery string `json:"last_query,omitempty"`

	// CurrentPage is the next search page to fetch (1-based).
	// TotalPages is 0 until the first successful page fetch reports it.
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`

	RefreshAllowance     int        `json:"refresh_allowance"`
	NextAllowedRefreshAt *time.Time `json:"next_allowed_refresh_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
