// Package generator drives the lead pipeline: paginated candidate search,
// dedup against owned leads, batch enrichment, AI scoring, and persistence,
// all tracked through a per-customer generation state machine.
package generator

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prospectly/leadgen-cli/internal/model"
	"github.com/prospectly/leadgen-cli/internal/notify"
	"github.com/prospectly/leadgen-cli/pkg/contactsearch"
	"github.com/prospectly/leadgen-cli/pkg/enrich"
)

// NoLeadsMessage is returned when a run produces no leads.
const NoLeadsMessage = "No lead found, please update buyer persona"

// Store is the subset of store.Store the generator needs.
type Store interface {
	GetProfile(ctx context.Context, customerID string) (*model.CustomerProfile, error)
	ClaimGeneration(ctx context.Context, customerID string) error
	SetGenerationStatus(ctx context.Context, customerID string, status model.GenerationStatus) error
	UpdateGenerationCursor(ctx context.Context, customerID string, currentPage, totalPages int) error
	SetLastQuery(ctx context.Context, customerID, query string) error
	ResetGeneration(ctx context.Context, customerID string) error
	InsertLeads(ctx context.Context, leads []model.Lead) ([]model.Lead, error)
	ListOwnedExternalIDs(ctx context.Context, ownerID string) (map[string]struct{}, error)
	DeleteLeadsByOwner(ctx context.Context, ownerID string) (int64, error)
}

// Scorer scores one group of enriched contacts against the profile.
type Scorer interface {
	Score(ctx context.Context, icp, persona model.PersonaCriteria, contacts []enrich.Contact) ([]model.CandidateScore, error)
}

// QueryBuilder derives the provider search query from the profile criteria.
type QueryBuilder func(icp, persona model.PersonaCriteria) (string, error)

// Generator orchestrates one lead generation run per call.
type Generator struct {
	store      Store
	search     contactsearch.Client
	enricher   enrich.Client
	scorer     Scorer
	notifier   notify.Notifier
	buildQuery QueryBuilder
}

// New creates a Generator. All collaborators are injected so runs can be
// tested without external providers.
func New(s Store, search contactsearch.Client, enricher enrich.Client, scorer Scorer, notifier notify.Notifier, buildQuery QueryBuilder) *Generator {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Generator{
		store:      s,
		search:     search,
		enricher:   enricher,
		scorer:     scorer,
		notifier:   notifier,
		buildQuery: buildQuery,
	}
}

// Run executes one generation run for the customer. restart wipes the
// customer's existing leads and resets the pagination cursor first.
// A second run started while one is ongoing fails with ErrRunInProgress
// from the store's claim, before any state is touched.
func (g *Generator) Run(ctx context.Context, customerID string, targetCount int, restart bool) (*model.GenerationResult, error) {
	start := time.Now()
	log := zap.L().With(zap.String("customer_id", customerID))

	if targetCount < 1 {
		return nil, eris.Errorf("generator: invalid target count %d", targetCount)
	}

	if err := g.store.ClaimGeneration(ctx, customerID); err != nil {
		return nil, err
	}

	result, err := g.run(ctx, log, customerID, targetCount, restart)
	if err != nil {
		if stErr := g.store.SetGenerationStatus(ctx, customerID, model.GenerationFailed); stErr != nil {
			log.Error("failed to persist failed status", zap.Error(stErr))
		}
		return nil, err
	}

	if err := g.store.SetGenerationStatus(ctx, customerID, model.GenerationCompleted); err != nil {
		return nil, err
	}

	if len(result.CreatedLeads) > 0 {
		leadIDs := make([]string, len(result.CreatedLeads))
		for i, l := range result.CreatedLeads {
			leadIDs[i] = l.ID
		}
		// Best-effort: a missing listener never fails the run.
		if err := g.notifier.LeadsCreated(ctx, customerID, leadIDs); err != nil {
			log.Warn("leads created notification failed", zap.Error(err))
		}
	}

	log.Info("generation run finished",
		zap.Int("created_leads", len(result.CreatedLeads)),
		zap.Bool("restart", restart),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// run is the claimed portion of a generation run. Any error it returns
// flips the status to failed while leaving the cursor last-known-good.
func (g *Generator) run(ctx context.Context, log *zap.Logger, customerID string, targetCount int, restart bool) (*model.GenerationResult, error) {
	if restart {
		if err := g.store.ResetGeneration(ctx, customerID); err != nil {
			return nil, eris.Wrap(err, "generator: reset cursor")
		}
		deleted, err := g.store.DeleteLeadsByOwner(ctx, customerID)
		if err != nil {
			return nil, eris.Wrap(err, "generator: delete existing leads")
		}
		log.Info("restart requested, wiped existing leads", zap.Int64("deleted", deleted))
	}

	p, err := g.store.GetProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}

	query := p.LastQuery
	if query == "" {
		query, err = g.buildQuery(p.IdealCustomer, p.BuyerPersona)
		if err != nil {
			return nil, eris.Wrap(err, "generator: build search query")
		}
		// Cache so resumed runs skip the derivation.
		if err := g.store.SetLastQuery(ctx, customerID, query); err != nil {
			return nil, eris.Wrap(err, "generator: cache query")
		}
	}

	collected, cursor, err := g.collect(ctx, log, p, query, targetCount)
	if err != nil {
		return nil, err
	}
	if err := g.store.UpdateGenerationCursor(ctx, customerID, cursor.nextPage, cursor.totalPages); err != nil {
		return nil, eris.Wrap(err, "generator: update cursor")
	}

	if len(collected) == 0 {
		log.Info("no new candidates found")
		return &model.GenerationResult{Message: NoLeadsMessage}, nil
	}

	enriched := g.enrichAll(ctx, log, collected)
	scores := g.scoreAll(ctx, log, p, enriched)

	leads := mergeScores(customerID, enriched, scores)
	if len(leads) == 0 {
		log.Info("no candidates survived scoring",
			zap.Int("collected", len(collected)),
			zap.Int("enriched", len(enriched)),
		)
		return &model.GenerationResult{Message: NoLeadsMessage}, nil
	}

	created, err := g.store.InsertLeads(ctx, leads)
	if err != nil {
		return nil, eris.Wrap(err, "generator: persist leads")
	}
	if len(created) == 0 {
		return &model.GenerationResult{Message: NoLeadsMessage}, nil
	}
	return &model.GenerationResult{CreatedLeads: created}, nil
}
