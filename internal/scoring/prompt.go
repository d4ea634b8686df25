package scoring

import (
	"fmt"
	"strings"

	"github.com/prospectly/leadgen-cli/internal/model"
	"github.com/prospectly/leadgen-cli/pkg/enrich"
)

const scoreSystemPrompt = `You are a B2B sales analyst. You receive an ideal customer profile, a buyer persona, and a list of contacts. For each contact, judge how well they match the persona and assign:
- "category": exactly one of "fit", "high score", "news", "event"
- "reason": one short sentence explaining the category
- "score": an integer from 0 to 100, where 100 is a perfect match

Respond with ONLY a valid JSON array, one object per contact, in this shape:
[{"id": "<contact id>", "category": "fit", "reason": "...", "score": 85}]

Do not include any text outside the JSON array. Omit contacts you cannot judge.`

// buildPersonaContext renders the profile criteria into the system context
// that stays constant across every scoring call in a run.
func buildPersonaContext(icp, persona model.PersonaCriteria) string {
	var b strings.Builder
	b.WriteString(scoreSystemPrompt)
	b.WriteString("\n\nIdeal customer profile:\n")
	writeCriteria(&b, icp)
	b.WriteString("\nBuyer persona:\n")
	writeCriteria(&b, persona)
	return b.String()
}

func writeCriteria(b *strings.Builder, c model.PersonaCriteria) {
	writeList(b, "Titles", c.Titles)
	writeList(b, "Seniorities", c.Seniorities)
	writeList(b, "Industries", c.Industries)
	writeList(b, "Locations", c.Locations)
	writeList(b, "Company sizes", c.CompanySizes)
	writeList(b, "Keywords", c.Keywords)
	if c.Notes != "" {
		fmt.Fprintf(b, "- Notes: %s\n", c.Notes)
	}
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(items, ", "))
}

// buildContactsPrompt renders one group of contacts as the user message.
func buildContactsPrompt(contacts []enrich.Contact) string {
	var b strings.Builder
	b.WriteString("Contacts to score:\n")
	for _, c := range contacts {
		fmt.Fprintf(&b, "\nid: %s\n", c.ID)
		fmt.Fprintf(&b, "name: %s %s\n", c.FirstName, c.LastName)
		if c.Title != "" {
			fmt.Fprintf(&b, "title: %s\n", c.Title)
		}
		if c.Company != "" {
			fmt.Fprintf(&b, "company: %s\n", c.Company)
		}
		if c.City != "" || c.Country != "" {
			fmt.Fprintf(&b, "location: %s %s\n", c.City, c.Country)
		}
		if c.LinkedInURL != "" {
			fmt.Fprintf(&b, "linkedin: %s\n", c.LinkedInURL)
		}
	}
	return b.String()
}
