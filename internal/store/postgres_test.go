package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectly/leadgen-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetProfile_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM customer_profiles WHERE customer_id = \$1`).
		WithArgs("missing-customer").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetProfile(context.Background(), "missing-customer")
	require.ErrorIs(t, err, ErrProfileNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProfile(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM customer_profiles WHERE customer_id = \$1`).
		WithArgs("cust-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"customer_id", "organization_id", "ideal_customer", "buyer_persona",
			"generation_status", "last_query", "current_page", "total_pages",
			"refresh_allowance", "next_allowed_refresh_at", "created_at", "updated_at",
		}).AddRow(
			"cust-1", "org-1", []byte(`{"industries":["saas"]}`), []byte(`{"titles":["cto"]}`),
			"not_started", "", 1, 0,
			5, (*time.Time)(nil), now, now,
		))

	p, err := s.GetProfile(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", p.OrganizationID)
	assert.Equal(t, model.GenerationNotStarted, p.GenerationStatus)
	assert.Equal(t, []string{"cto"}, p.BuyerPersona.Titles)
	assert.Equal(t, 1, p.CurrentPage)
	assert.Equal(t, 5, p.RefreshAllowance)
	assert.Nil(t, p.NextAllowedRefreshAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimGeneration(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE customer_profiles`).
		WithArgs("ongoing", "cust-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.ClaimGeneration(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimGeneration_AlreadyRunning(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE customer_profiles`).
		WithArgs("ongoing", "cust-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT .+ FROM customer_profiles WHERE customer_id = \$1`).
		WithArgs("cust-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"customer_id", "organization_id", "ideal_customer", "buyer_persona",
			"generation_status", "last_query", "current_page", "total_pages",
			"refresh_allowance", "next_allowed_refresh_at", "created_at", "updated_at",
		}).AddRow(
			"cust-1", "org-1", []byte(`{}`), []byte(`{}`),
			"ongoing", "", 3, 12,
			5, (*time.Time)(nil), now, now,
		))

	err := s.ClaimGeneration(context.Background(), "cust-1")
	require.ErrorIs(t, err, ErrRunInProgress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimGeneration_ProfileMissing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE customer_profiles`).
		WithArgs("ongoing", "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT .+ FROM customer_profiles WHERE customer_id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	err := s.ClaimGeneration(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrProfileNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateGenerationCursor_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE customer_profiles SET current_page`).
		WithArgs(4, 12, "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateGenerationCursor(context.Background(), "ghost", 4, 12)
	require.ErrorIs(t, err, ErrProfileNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertLeads_SkipsConflicts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "ext-1", "cust-1",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"fit", pgxmock.AnyArg(), 90, "new").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "ext-2", "cust-1",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"news", pgxmock.AnyArg(), 70, "new").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	leads := []model.Lead{
		{ExternalID: "ext-1", OwnerID: "cust-1", Category: model.CategoryFit, Score: 90},
		{ExternalID: "ext-2", OwnerID: "cust-1", Category: model.CategoryNews, Score: 70},
	}
	inserted, err := s.InsertLeads(context.Background(), leads)
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, "ext-1", inserted[0].ExternalID)
	assert.NotEmpty(t, inserted[0].ID)
	assert.Equal(t, model.LeadStatusNew, inserted[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertLeads_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	inserted, err := s.InsertLeads(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListOwnedExternalIDs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT external_id FROM leads WHERE owner_id = \$1`).
		WithArgs("cust-1").
		WillReturnRows(pgxmock.NewRows([]string{"external_id"}).
			AddRow("ext-1").
			AddRow("ext-2"))

	owned, err := s.ListOwnedExternalIDs(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Len(t, owned, 2)
	_, ok := owned["ext-1"]
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DecrementQuota(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`UPDATE monthly_quotas`).
		WithArgs("org-1", "2026-08", 10).
		WillReturnRows(pgxmock.NewRows([]string{"remaining"}).AddRow(90))

	remaining, ok, err := s.DecrementQuota(context.Background(), "org-1", "2026-08", 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 90, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DecrementQuota_Insufficient(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Conditional update matches no row when remaining < count.
	mock.ExpectQuery(`UPDATE monthly_quotas`).
		WithArgs("org-1", "2026-08", 10).
		WillReturnError(pgx.ErrNoRows)

	remaining, ok, err := s.DecrementQuota(context.Background(), "org-1", "2026-08", 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetQuota_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM monthly_quotas`).
		WithArgs("org-1", "2026-08").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetQuota(context.Background(), "org-1", "2026-08")
	require.ErrorIs(t, err, ErrQuotaNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteLeadsByOwner(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM leads WHERE owner_id = \$1`).
		WithArgs("cust-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.DeleteLeadsByOwner(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
