// Package scoring turns enriched contacts into categorized, scored lead
// candidates using the Anthropic API.
package scoring

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prospectly/leadgen-cli/internal/model"
	"github.com/prospectly/leadgen-cli/internal/resilience"
	"github.com/prospectly/leadgen-cli/pkg/anthropic"
	"github.com/prospectly/leadgen-cli/pkg/enrich"
)

// ErrUnscorable indicates the model response could not be parsed into
// scores even after repair.
var ErrUnscorable = eris.New("scoring: unparseable model response")

// Scorer scores groups of enriched contacts against a customer profile.
type Scorer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	retry     resilience.RetryConfig
}

// NewScorer creates a Scorer using the given Anthropic client and model.
func NewScorer(client anthropic.Client, modelID string, maxTokens int64) *Scorer {
	return &Scorer{
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		retry:     resilience.DefaultRetryConfig(),
	}
}

// Score scores one group of contacts. The persona context is sent as a
// cached system block because it repeats across groups within a run.
// Entries the model returned for unknown or malformed contacts are dropped.
func (s *Scorer) Score(ctx context.Context, icp, persona model.PersonaCriteria, contacts []enrich.Contact) ([]model.CandidateScore, error) {
	if len(contacts) == 0 {
		return nil, nil
	}

	req := anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(buildPersonaContext(icp, persona)),
		Messages: []anthropic.Message{
			{Role: "user", Content: buildContactsPrompt(contacts)},
		},
	}

	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "scoring: score contacts")
	}
	resp.Usage.LogCost(s.model, "scoring")

	scores, err := parseScores(extractText(resp))
	if err != nil {
		return nil, err
	}
	return validateScores(scores, contacts), nil
}

// extractText concatenates all text blocks of a response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanJSONArray strips markdown code fences and any prose around the
// outermost JSON array.
func cleanJSONArray(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// bareKeyPattern matches object keys the model emitted without quotes,
// e.g. {id: "x"} instead of {"id": "x"}.
var bareKeyPattern = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// parseScores parses the model output strictly, and on failure makes one
// repair pass quoting bare keys before giving up with ErrUnscorable.
func parseScores(text string) ([]model.CandidateScore, error) {
	cleaned := cleanJSONArray(text)
	if cleaned == "" {
		return nil, ErrUnscorable
	}

	var scores []model.CandidateScore
	if err := json.Unmarshal([]byte(cleaned), &scores); err == nil {
		return scores, nil
	}

	repaired := bareKeyPattern.ReplaceAllString(cleaned, `$1"$2":`)
	if err := json.Unmarshal([]byte(repaired), &scores); err != nil {
		zap.L().Warn("scoring: response unparseable after repair",
			zap.Int("response_len", len(text)),
			zap.Error(err),
		)
		return nil, ErrUnscorable
	}
	return scores, nil
}

// validateScores drops entries with unknown IDs or invalid categories and
// clamps scores into [0, 100].
func validateScores(scores []model.CandidateScore, contacts []enrich.Contact) []model.CandidateScore {
	known := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		known[c.ID] = struct{}{}
	}

	out := make([]model.CandidateScore, 0, len(scores))
	for _, sc := range scores {
		if _, ok := known[sc.ExternalID]; !ok {
			zap.L().Debug("scoring: dropping score for unknown contact", zap.String("id", sc.ExternalID))
			continue
		}
		if !sc.Category.Valid() {
			zap.L().Debug("scoring: dropping score with invalid category",
				zap.String("id", sc.ExternalID),
				zap.String("category", string(sc.Category)),
			)
			continue
		}
		if sc.Score < 0 {
			sc.Score = 0
		}
		if sc.Score > 100 {
			sc.Score = 100
		}
		out = append(out, sc)
	}
	return out
}
