package generator

import (
	"context"

	"go.uber.org/zap"

	"github.com/prospectly/leadgen-cli/internal/model"
	"github.com/prospectly/leadgen-cli/pkg/enrich"
)

// scoreGroupSize matches the enrichment batch size so one failed scoring
// call drops at most one batch worth of candidates.
const scoreGroupSize = enrich.MaxBatchSize

// enrichAll partitions candidate ids into provider-sized batches and
// enriches each one. A failed batch is skipped, its candidates dropped,
// so one bad batch never sinks the run.
func (g *Generator) enrichAll(ctx context.Context, log *zap.Logger, candidateIDs []string) []enrich.Contact {
	var contacts []enrich.Contact

	for start := 0; start < len(candidateIDs); start += enrich.MaxBatchSize {
		end := min(start+enrich.MaxBatchSize, len(candidateIDs))
		batch := candidateIDs[start:end]

		records, err := g.enricher.EnrichBatch(ctx, batch)
		if err != nil {
			log.Warn("enrichment batch failed, skipping",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			continue
		}
		contacts = append(contacts, records...)
	}

	log.Debug("enrichment finished",
		zap.Int("candidates", len(candidateIDs)),
		zap.Int("enriched", len(contacts)),
	)
	return contacts
}

// scoreAll scores enriched contacts in provider-sized groups. A group
// whose scoring call fails or whose response cannot be parsed is dropped;
// its candidates simply never become leads.
func (g *Generator) scoreAll(ctx context.Context, log *zap.Logger, p *model.CustomerProfile, contacts []enrich.Contact) []model.CandidateScore {
	var scores []model.CandidateScore

	for start := 0; start < len(contacts); start += scoreGroupSize {
		end := min(start+scoreGroupSize, len(contacts))
		group := contacts[start:end]

		groupScores, err := g.scorer.Score(ctx, p.IdealCustomer, p.BuyerPersona, group)
		if err != nil {
			log.Warn("scoring group failed, dropping candidates",
				zap.Int("group_start", start),
				zap.Int("group_size", len(group)),
				zap.Error(err),
			)
			continue
		}
		scores = append(scores, groupScores...)
	}

	log.Debug("scoring finished",
		zap.Int("enriched", len(contacts)),
		zap.Int("scored", len(scores)),
	)
	return scores
}
