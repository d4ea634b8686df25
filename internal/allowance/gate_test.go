package allowance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectly/leadgen-cli/internal/model"
	"github.com/prospectly/leadgen-cli/internal/store"
)

// fakeStore is an in-memory Store for gate tests.
type fakeStore struct {
	profiles map[string]*model.CustomerProfile
	quotas   map[string]*model.MonthlyQuota
	seeded   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]*model.CustomerProfile),
		quotas:   make(map[string]*model.MonthlyQuota),
	}
}

func (f *fakeStore) GetProfile(_ context.Context, customerID string) (*model.CustomerProfile, error) {
	p, ok := f.profiles[customerID]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) UpdateAllowance(_ context.Context, customerID string, allowance int, nextAllowedAt *time.Time) error {
	p, ok := f.profiles[customerID]
	if !ok {
		return store.ErrProfileNotFound
	}
	p.RefreshAllowance = allowance
	p.NextAllowedRefreshAt = nextAllowedAt
	return nil
}

func (f *fakeStore) GetQuota(_ context.Context, orgID, monthKey string) (*model.MonthlyQuota, error) {
	q, ok := f.quotas[orgID+"/"+monthKey]
	if !ok {
		return nil, store.ErrQuotaNotFound
	}
	return q, nil
}

func (f *fakeStore) SeedQuota(_ context.Context, orgID, monthKey string, allotment int) error {
	key := orgID + "/" + monthKey
	if _, ok := f.quotas[key]; ok {
		return nil
	}
	f.quotas[key] = &model.MonthlyQuota{OrganizationID: orgID, MonthKey: monthKey, Remaining: allotment}
	f.seeded = append(f.seeded, key)
	return nil
}

func (f *fakeStore) DecrementQuota(_ context.Context, orgID, monthKey string, count int) (int, bool, error) {
	q, ok := f.quotas[orgID+"/"+monthKey]
	if !ok || q.Remaining < count {
		return 0, false, nil
	}
	q.Remaining -= count
	return q.Remaining, true, nil
}

func newTestGate(fs *fakeStore, now time.Time) *Gate {
	g := NewGate(fs, 5, time.Hour, 100)
	g.now = func() time.Time { return now }
	return g
}

func TestConsumeRefresh_DecrementsAndSetsCooldown(t *testing.T) {
	fs := newFakeStore()
	fs.profiles["cust-1"] = &model.CustomerProfile{CustomerID: "cust-1", RefreshAllowance: 3}
	now := time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)
	g := newTestGate(fs, now)

	dec, err := g.ConsumeRefresh(context.Background(), "cust-1", false)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	p := fs.profiles["cust-1"]
	assert.Equal(t, 2, p.RefreshAllowance)
	require.NotNil(t, p.NextAllowedRefreshAt)
	assert.Equal(t, now.Add(time.Hour), *p.NextAllowedRefreshAt)
}

func TestConsumeRefresh_LastUnitRefillsWithDailyBoundary(t *testing.T) {
	fs := newFakeStore()
	fs.profiles["cust-1"] = &model.CustomerProfile{CustomerID: "cust-1", RefreshAllowance: 1}
	now := time.Date(2026, 8, 31, 23, 50, 0, 0, time.UTC)
	g := newTestGate(fs, now)

	dec, err := g.ConsumeRefresh(context.Background(), "cust-1", false)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	p := fs.profiles["cust-1"]
	assert.Equal(t, 5, p.RefreshAllowance)
	require.NotNil(t, p.NextAllowedRefreshAt)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 1, 0, 0, time.UTC), *p.NextAllowedRefreshAt)
}

func TestConsumeRefresh_ExhaustedRejects(t *testing.T) {
	fs := newFakeStore()
	fs.profiles["cust-1"] = &model.CustomerProfile{CustomerID: "cust-1", RefreshAllowance: 0}
	g := newTestGate(fs, time.Now())

	dec, err := g.ConsumeRefresh(context.Background(), "cust-1", false)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Nil(t, dec.RetryAt)
	// No mutation on rejection.
	assert.Equal(t, 0, fs.profiles["cust-1"].RefreshAllowance)
}

func TestConsumeRefresh_CooldownRejectsWithRetryAt(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	retryAt := now.Add(30 * time.Minute)
	fs.profiles["cust-1"] = &model.CustomerProfile{
		CustomerID:           "cust-1",
		RefreshAllowance:     4,
		NextAllowedRefreshAt: &retryAt,
	}
	g := newTestGate(fs, now)

	dec, err := g.ConsumeRefresh(context.Background(), "cust-1", false)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	require.NotNil(t, dec.RetryAt)
	assert.Equal(t, retryAt, *dec.RetryAt)
	assert.Equal(t, 4, fs.profiles["cust-1"].RefreshAllowance)
}

func TestConsumeRefresh_ExpiredCooldownAllows(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	fs.profiles["cust-1"] = &model.CustomerProfile{
		CustomerID:           "cust-1",
		RefreshAllowance:     4,
		NextAllowedRefreshAt: &past,
	}
	g := newTestGate(fs, now)

	dec, err := g.ConsumeRefresh(context.Background(), "cust-1", false)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 3, fs.profiles["cust-1"].RefreshAllowance)
}

func TestConsumeRefresh_BypassSkipsEverything(t *testing.T) {
	fs := newFakeStore()
	fs.profiles["cust-1"] = &model.CustomerProfile{CustomerID: "cust-1", RefreshAllowance: 0}
	g := newTestGate(fs, time.Now())

	dec, err := g.ConsumeRefresh(context.Background(), "cust-1", true)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 0, fs.profiles["cust-1"].RefreshAllowance)
}

func TestConsumeRefresh_ProfileMissing(t *testing.T) {
	fs := newFakeStore()
	g := newTestGate(fs, time.Now())

	_, err := g.ConsumeRefresh(context.Background(), "ghost", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
}

func TestCheckAndDecrementQuota_Spends(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	fs.quotas["org-1/2026-08"] = &model.MonthlyQuota{OrganizationID: "org-1", MonthKey: "2026-08", Remaining: 50}
	g := newTestGate(fs, now)

	dec, err := g.CheckAndDecrementQuota(context.Background(), "org-1", 20)
	require.NoError(t, err)
	assert.True(t, dec.OK)
	assert.Equal(t, 30, dec.Remaining)
}

func TestCheckAndDecrementQuota_InsufficientRejectsWithoutMutation(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	fs.quotas["org-1/2026-08"] = &model.MonthlyQuota{OrganizationID: "org-1", MonthKey: "2026-08", Remaining: 10}
	g := newTestGate(fs, now)

	dec, err := g.CheckAndDecrementQuota(context.Background(), "org-1", 20)
	require.NoError(t, err)
	assert.False(t, dec.OK)
	assert.Equal(t, 10, dec.Remaining)
	assert.Equal(t, 10, fs.quotas["org-1/2026-08"].Remaining)
}

func TestCheckAndDecrementQuota_MissingRowFailsClosedAndSeeds(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	g := newTestGate(fs, now)

	dec, err := g.CheckAndDecrementQuota(context.Background(), "org-1", 5)
	require.NoError(t, err)
	assert.False(t, dec.OK)
	assert.Zero(t, dec.Remaining)

	// Row is seeded for subsequent calls, which then succeed.
	require.Contains(t, fs.seeded, "org-1/2026-08")
	dec, err = g.CheckAndDecrementQuota(context.Background(), "org-1", 5)
	require.NoError(t, err)
	assert.True(t, dec.OK)
	assert.Equal(t, 95, dec.Remaining)
}
