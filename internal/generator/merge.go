package generator

import (
	"github.com/prospectly/leadgen-cli/internal/model"
	"github.com/prospectly/leadgen-cli/pkg/enrich"
)

// mergeScores joins enriched contacts with their scores into lead records.
// A contact without a score is dropped: an id missing from scoring never
// produces a lead.
func mergeScores(ownerID string, contacts []enrich.Contact, scores []model.CandidateScore) []model.Lead {
	byID := make(map[string]model.CandidateScore, len(scores))
	for _, s := range scores {
		byID[s.ExternalID] = s
	}

	leads := make([]model.Lead, 0, len(scores))
	for _, c := range contacts {
		s, ok := byID[c.ID]
		if !ok {
			continue
		}
		leads = append(leads, model.Lead{
			ExternalID:  c.ID,
			OwnerID:     ownerID,
			FirstName:   c.FirstName,
			LastName:    c.LastName,
			Title:       c.Title,
			Company:     c.Company,
			Email:       c.Email,
			Phone:       c.Phone,
			LinkedInURL: c.LinkedInURL,
			City:        c.City,
			Country:     c.Country,
			Category:    s.Category,
			Reason:      s.Reason,
			Score:       s.Score,
			Status:      model.LeadStatusNew,
		})
	}
	return leads
}
