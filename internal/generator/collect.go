package generator

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prospectly/leadgen-cli/internal/model"
)

// cursorState is what the pagination loop leaves behind for the next run.
type cursorState struct {
	nextPage   int
	totalPages int
}

// collect walks search pages from the profile's cursor until targetCount
// unique, not-already-owned candidate ids are gathered or pages run out.
// A search failure is treated as end-of-results, not a hard error, so a
// partial result set can still be processed downstream.
func (g *Generator) collect(ctx context.Context, log *zap.Logger, p *model.CustomerProfile, query string, targetCount int) ([]string, cursorState, error) {
	owned, err := g.store.ListOwnedExternalIDs(ctx, p.CustomerID)
	if err != nil {
		return nil, cursorState{}, eris.Wrap(err, "generator: list owned leads")
	}

	page := p.CurrentPage
	if page < 1 {
		page = 1
	}
	totalPages := p.TotalPages

	seen := make(map[string]struct{})
	var collected []string

	for len(collected) < targetCount && (totalPages == 0 || page <= totalPages) {
		res, err := g.search.SearchPage(ctx, query, page)
		if err != nil {
			log.Warn("search page failed, stopping pagination",
				zap.Int("page", page),
				zap.Error(err),
			)
			break
		}

		if totalPages == 0 && res.TotalPages > 0 {
			totalPages = res.TotalPages
		}

		if len(res.CandidateIDs) == 0 {
			// End of results: do not advance past the last fetched page.
			break
		}

		for _, id := range res.CandidateIDs {
			if len(collected) >= targetCount {
				break
			}
			if _, ok := owned[id]; ok {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			collected = append(collected, id)
		}

		page = res.Page + 1
		if totalPages > 0 && res.Page >= totalPages {
			break
		}
	}

	log.Debug("candidate collection finished",
		zap.Int("collected", len(collected)),
		zap.Int("next_page", page),
		zap.Int("total_pages", totalPages),
	)
	return collected, cursorState{nextPage: page, totalPages: totalPages}, nil
}
