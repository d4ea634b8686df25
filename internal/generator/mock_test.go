package generator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/prospectly/leadgen-cli/internal/model"
	"github.com/prospectly/leadgen-cli/internal/store"
	"github.com/prospectly/leadgen-cli/pkg/contactsearch"
	"github.com/prospectly/leadgen-cli/pkg/enrich"
)

// memStore is an in-memory Store for generator tests.
type memStore struct {
	mu       sync.Mutex
	profiles map[string]*model.CustomerProfile
	leads    map[string]model.Lead // keyed by externalID+"/"+ownerID
	nextID   int
}

func newMemStore() *memStore {
	return &memStore{
		profiles: make(map[string]*model.CustomerProfile),
		leads:    make(map[string]model.Lead),
	}
}

func (m *memStore) addProfile(p *model.CustomerProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CurrentPage < 1 {
		p.CurrentPage = 1
	}
	if p.GenerationStatus == "" {
		p.GenerationStatus = model.GenerationNotStarted
	}
	m.profiles[p.CustomerID] = p
}

func (m *memStore) GetProfile(_ context.Context, customerID string) (*model.CustomerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[customerID]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ClaimGeneration(_ context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[customerID]
	if !ok {
		return store.ErrProfileNotFound
	}
	if p.GenerationStatus == model.GenerationOngoing {
		return store.ErrRunInProgress
	}
	p.GenerationStatus = model.GenerationOngoing
	return nil
}

func (m *memStore) SetGenerationStatus(_ context.Context, customerID string, status model.GenerationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[customerID]
	if !ok {
		return store.ErrProfileNotFound
	}
	p.GenerationStatus = status
	return nil
}

func (m *memStore) UpdateGenerationCursor(_ context.Context, customerID string, currentPage, totalPages int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[customerID]
	if !ok {
		return store.ErrProfileNotFound
	}
	p.CurrentPage = currentPage
	p.TotalPages = totalPages
	return nil
}

func (m *memStore) SetLastQuery(_ context.Context, customerID, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[customerID]
	if !ok {
		return store.ErrProfileNotFound
	}
	p.LastQuery = query
	return nil
}

func (m *memStore) ResetGeneration(_ context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[customerID]
	if !ok {
		return store.ErrProfileNotFound
	}
	p.CurrentPage = 1
	p.TotalPages = 0
	p.LastQuery = ""
	return nil
}

func (m *memStore) InsertLeads(_ context.Context, leads []model.Lead) ([]model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inserted []model.Lead
	for _, l := range leads {
		key := l.ExternalID + "/" + l.OwnerID
		if _, ok := m.leads[key]; ok {
			continue
		}
		m.nextID++
		l.ID = fmt.Sprintf("lead-%d", m.nextID)
		m.leads[key] = l
		inserted = append(inserted, l)
	}
	return inserted, nil
}

func (m *memStore) ListOwnedExternalIDs(_ context.Context, ownerID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned := make(map[string]struct{})
	for _, l := range m.leads {
		if l.OwnerID == ownerID {
			owned[l.ExternalID] = struct{}{}
		}
	}
	return owned, nil
}

func (m *memStore) DeleteLeadsByOwner(_ context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, l := range m.leads {
		if l.OwnerID == ownerID {
			delete(m.leads, key)
			n++
		}
	}
	return n, nil
}

func (m *memStore) leadCount(ownerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.leads {
		if l.OwnerID == ownerID {
			n++
		}
	}
	return n
}

func (m *memStore) status(customerID string) model.GenerationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[customerID].GenerationStatus
}

// fakeSearch serves canned pages keyed by page number.
type fakeSearch struct {
	pages      map[int]*contactsearch.Page
	failAll    bool
	calls      []int
	lastQuery  string
	totalPages int
}

func (f *fakeSearch) SearchPage(_ context.Context, query string, page int) (*contactsearch.Page, error) {
	f.calls = append(f.calls, page)
	f.lastQuery = query
	if f.failAll {
		return nil, eris.New("contactsearch: provider down")
	}
	p, ok := f.pages[page]
	if !ok {
		return &contactsearch.Page{Page: page, TotalPages: f.totalPages}, nil
	}
	return p, nil
}

// fakeEnricher turns candidate ids into contacts, failing chosen batches.
type fakeEnricher struct {
	failBatch map[int]bool // batch index (0-based, in call order)
	calls     int
}

func (f *fakeEnricher) EnrichBatch(_ context.Context, ids []string) ([]enrich.Contact, error) {
	idx := f.calls
	f.calls++
	if len(ids) > enrich.MaxBatchSize {
		return nil, eris.Errorf("enrich: batch of %d exceeds limit of %d", len(ids), enrich.MaxBatchSize)
	}
	if f.failBatch[idx] {
		return nil, eris.New("enrich: provider down")
	}
	contacts := make([]enrich.Contact, len(ids))
	for i, id := range ids {
		contacts[i] = enrich.Contact{ID: id, FirstName: "First-" + id, Company: "Co-" + id}
	}
	return contacts, nil
}

// fakeScorer scores every contact except the ids in skip; groups in
// failGroup error instead.
type fakeScorer struct {
	skip      map[string]bool
	failGroup map[int]bool
	calls     int
}

func (f *fakeScorer) Score(_ context.Context, _, _ model.PersonaCriteria, contacts []enrich.Contact) ([]model.CandidateScore, error) {
	idx := f.calls
	f.calls++
	if f.failGroup[idx] {
		return nil, eris.New("scoring: unparseable model response")
	}
	var scores []model.CandidateScore
	for _, c := range contacts {
		if f.skip[c.ID] {
			continue
		}
		scores = append(scores, model.CandidateScore{
			ExternalID: c.ID,
			Category:   model.CategoryFit,
			Reason:     "matches persona",
			Score:      80,
		})
	}
	return scores, nil
}

// recordingNotifier captures LeadsCreated calls.
type recordingNotifier struct {
	mu     sync.Mutex
	events [][]string
	err    error
}

func (r *recordingNotifier) LeadsCreated(_ context.Context, _ string, leadIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, leadIDs)
	return r.err
}

func (r *recordingNotifier) Close() error { return nil }

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i+1)
	}
	return out
}

func staticQuery(_, _ model.PersonaCriteria) (string, error) {
	return `{"titles":["cto"]}`, nil
}
