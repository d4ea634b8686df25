// Package store persists customer profiles, leads, and monthly quotas.
// Postgres is the production backend; SQLite backs local development.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/prospectly/leadgen-cli/internal/model"
)

// Sentinel errors surfaced to callers. Compare with eris.Is.
var (
	// ErrProfileNotFound means no CustomerProfile exists for the customer.
	ErrProfileNotFound = eris.New("store: customer profile not found")
	// ErrRunInProgress means another generation run currently holds the
	// profile (generation_status = ongoing).
	ErrRunInProgress = eris.New("store: generation run already in progress")
	// ErrQuotaNotFound means no MonthlyQuota row exists for the month yet.
	ErrQuotaNotFound = eris.New("store: monthly quota not found")
)

// Store defines the persistence interface for the lead generation pipeline.
type Store interface {
	// Profiles
	CreateProfile(ctx context.Context, p *model.CustomerProfile) error
	GetProfile(ctx context.Context, customerID string) (*model.CustomerProfile, error)
	// ClaimGeneration atomically flips generation_status to "ongoing".
	// Returns ErrRunInProgress if a run already holds the profile, or
	// ErrProfileNotFound if the customer does not exist.
	ClaimGeneration(ctx context.Context, customerID string) error
	SetGenerationStatus(ctx context.Context, customerID string, status model.GenerationStatus) error
	UpdateGenerationCursor(ctx context.Context, customerID string, currentPage, totalPages int) error
	SetLastQuery(ctx context.Context, customerID, query string) error
	// ResetGeneration rewinds the cursor to page 1, forgets total pages,
	// and clears the cached query. Used by explicit restarts.
	ResetGeneration(ctx context.Context, customerID string) error
	UpdateAllowance(ctx context.Context, customerID string, allowance int, nextAllowedAt *time.Time) error

	// Leads
	// InsertLeads bulk-inserts leads, silently skipping rows whose
	// (external_id, owner_id) already exists. Returns the rows actually
	// inserted, with ids and timestamps filled in.
	InsertLeads(ctx context.Context, leads []model.Lead) ([]model.Lead, error)
	ListLeads(ctx context.Context, ownerID string) ([]model.Lead, error)
	ListOwnedExternalIDs(ctx context.Context, ownerID string) (map[string]struct{}, error)
	DeleteLeadsByOwner(ctx context.Context, ownerID string) (int64, error)
	UpdateLeadStatus(ctx context.Context, leadID, ownerID string, status model.LeadStatus) error
	MarkLeadViewed(ctx context.Context, leadID, ownerID string) error

	// Quotas
	GetQuota(ctx context.Context, orgID, monthKey string) (*model.MonthlyQuota, error)
	// SeedQuota lazily creates the month's row with the given allotment.
	// A concurrent seed loses quietly (insert is conflict-tolerant).
	SeedQuota(ctx context.Context, orgID, monthKey string, allotment int) error
	// DecrementQuota atomically consumes count units if and only if enough
	// remain. ok=false (with no mutation) when remaining < count or the
	// row is absent.
	DecrementQuota(ctx context.Context, orgID, monthKey string, count int) (remaining int, ok bool, err error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
