package scoring

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/prospectly/leadgen-cli/internal/model"
)

// searchQuery is the shape the contact search API understands.
type searchQuery struct {
	Titles       []string `json:"titles,omitempty"`
	Seniorities  []string `json:"seniorities,omitempty"`
	Industries   []string `json:"industries,omitempty"`
	Locations    []string `json:"locations,omitempty"`
	CompanySizes []string `json:"company_sizes,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
}

// BuildQuery serializes the buyer persona into the search query sent to the
// contact search API. Industry and company-size constraints come from the
// ideal customer profile; person-level constraints come from the persona.
func BuildQuery(icp, persona model.PersonaCriteria) (string, error) {
	if persona.Empty() && icp.Empty() {
		return "", eris.New("scoring: profile has no search criteria")
	}

	q := searchQuery{
		Titles:       persona.Titles,
		Seniorities:  persona.Seniorities,
		Keywords:     persona.Keywords,
		Industries:   icp.Industries,
		CompanySizes: icp.CompanySizes,
		Locations:    persona.Locations,
	}
	if len(q.Locations) == 0 {
		q.Locations = icp.Locations
	}
	if len(q.Industries) == 0 {
		q.Industries = persona.Industries
	}

	raw, err := json.Marshal(q)
	if err != nil {
		return "", eris.Wrap(err, "scoring: marshal search query")
	}
	return string(raw), nil
}
