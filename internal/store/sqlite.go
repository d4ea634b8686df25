package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/prospectly/leadgen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for
// local development and tests; production runs on PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// SQLite allows one writer at a time; serialize access through a
	// single connection to avoid SQLITE_BUSY under concurrent runs.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS customer_profiles (
	customer_id             TEXT PRIMARY KEY,
	organization_id         TEXT NOT NULL,
	ideal_customer          TEXT NOT NULL DEFAULT '{}',
	buyer_persona           TEXT NOT NULL DEFAULT '{}',
	generation_status       TEXT NOT NULL DEFAULT 'not_started',
	last_query              TEXT NOT NULL DEFAULT '',
	current_page            INTEGER NOT NULL DEFAULT 1,
	total_pages             INTEGER NOT NULL DEFAULT 0,
	refresh_allowance       INTEGER NOT NULL DEFAULT 5,
	next_allowed_refresh_at DATETIME,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	id           TEXT PRIMARY KEY,
	external_id  TEXT NOT NULL,
	owner_id     TEXT NOT NULL,
	first_name   TEXT NOT NULL DEFAULT '',
	last_name    TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	company      TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL DEFAULT '',
	linkedin_url TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	country      TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	score        INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'new',
	view_count   INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (external_id, owner_id)
);

CREATE TABLE IF NOT EXISTS monthly_quotas (
	organization_id TEXT NOT NULL,
	month_key       TEXT NOT NULL,
	remaining       INTEGER NOT NULL CHECK (remaining >= 0),
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (organization_id, month_key)
);

CREATE INDEX IF NOT EXISTS idx_leads_owner_id ON leads(owner_id);
CREATE INDEX IF NOT EXISTS idx_leads_owner_status ON leads(owner_id, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Profiles ---

func (s *SQLiteStore) CreateProfile(ctx context.Context, p *model.CustomerProfile) error {
	icp, err := json.Marshal(p.IdealCustomer)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal ideal customer")
	}
	bp, err := json.Marshal(p.BuyerPersona)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal buyer persona")
	}

	status := p.GenerationStatus
	if status == "" {
		status = model.GenerationNotStarted
	}
	currentPage := p.CurrentPage
	if currentPage < 1 {
		currentPage = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO customer_profiles
			(customer_id, organization_id, ideal_customer, buyer_persona,
			 generation_status, last_query, current_page, total_pages,
			 refresh_allowance, next_allowed_refresh_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.CustomerID, p.OrganizationID, string(icp), string(bp),
		string(status), p.LastQuery, currentPage, p.TotalPages,
		p.RefreshAllowance, p.NextAllowedRefreshAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert profile")
	}
	return nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, customerID string) (*model.CustomerProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT customer_id, organization_id, ideal_customer, buyer_persona,
			generation_status, last_query, current_page, total_pages,
			refresh_allowance, next_allowed_refresh_at, created_at, updated_at
		 FROM customer_profiles WHERE customer_id = ?`,
		customerID,
	)

	var p model.CustomerProfile
	var icp, bp, status string
	var nextAt sql.NullTime
	err := row.Scan(
		&p.CustomerID, &p.OrganizationID, &icp, &bp,
		&status, &p.LastQuery, &p.CurrentPage, &p.TotalPages,
		&p.RefreshAllowance, &nextAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, eris.Wrap(err, "sqlite: get profile")
	}

	p.GenerationStatus = model.GenerationStatus(status)
	if nextAt.Valid {
		t := nextAt.Time
		p.NextAllowedRefreshAt = &t
	}
	if err := json.Unmarshal([]byte(icp), &p.IdealCustomer); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal ideal customer")
	}
	if err := json.Unmarshal([]byte(bp), &p.BuyerPersona); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal buyer persona")
	}
	return &p, nil
}

func (s *SQLiteStore) ClaimGeneration(ctx context.Context, customerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE customer_profiles
		 SET generation_status = ?, updated_at = datetime('now')
		 WHERE customer_id = ? AND generation_status <> ?`,
		string(model.GenerationOngoing), customerID, string(model.GenerationOngoing),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: claim generation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetProfile(ctx, customerID); err != nil {
			return err
		}
		return ErrRunInProgress
	}
	return nil
}

func (s *SQLiteStore) profileExec(ctx context.Context, action, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: %s", action)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *SQLiteStore) SetGenerationStatus(ctx context.Context, customerID string, status model.GenerationStatus) error {
	return s.profileExec(ctx, "set generation status",
		`UPDATE customer_profiles SET generation_status = ?, updated_at = datetime('now') WHERE customer_id = ?`,
		string(status), customerID,
	)
}

func (s *SQLiteStore) UpdateGenerationCursor(ctx context.Context, customerID string, currentPage, totalPages int) error {
	return s.profileExec(ctx, "update cursor",
		`UPDATE customer_profiles SET current_page = ?, total_pages = ?, updated_at = datetime('now') WHERE customer_id = ?`,
		currentPage, totalPages, customerID,
	)
}

func (s *SQLiteStore) SetLastQuery(ctx context.Context, customerID, query string) error {
	return s.profileExec(ctx, "set last query",
		`UPDATE customer_profiles SET last_query = ?, updated_at = datetime('now') WHERE customer_id = ?`,
		query, customerID,
	)
}

func (s *SQLiteStore) ResetGeneration(ctx context.Context, customerID string) error {
	return s.profileExec(ctx, "reset generation",
		`UPDATE customer_profiles
		 SET current_page = 1, total_pages = 0, last_query = '', updated_at = datetime('now')
		 WHERE customer_id = ?`,
		customerID,
	)
}

func (s *SQLiteStore) UpdateAllowance(ctx context.Context, customerID string, allowance int, nextAllowedAt *time.Time) error {
	return s.profileExec(ctx, "update allowance",
		`UPDATE customer_profiles
		 SET refresh_allowance = ?, next_allowed_refresh_at = ?, updated_at = datetime('now')
		 WHERE customer_id = ?`,
		allowance, nextAllowedAt, customerID,
	)
}

// --- Leads ---

func (s *SQLiteStore) InsertLeads(ctx context.Context, leads []model.Lead) ([]model.Lead, error) {
	if len(leads) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin insert leads")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var inserted []model.Lead
	for _, l := range leads {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if l.Status == "" {
			l.Status = model.LeadStatusNew
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO leads
				(id, external_id, owner_id, first_name, last_name, title, company,
				 email, phone, linkedin_url, city, country, category, reason, score, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (external_id, owner_id) DO NOTHING`,
			l.ID, l.ExternalID, l.OwnerID, l.FirstName, l.LastName, l.Title, l.Company,
			l.Email, l.Phone, l.LinkedInURL, l.City, l.Country,
			string(l.Category), l.Reason, l.Score, string(l.Status),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert lead %s", l.ExternalID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		l.CreatedAt = now
		l.UpdatedAt = now
		inserted = append(inserted, l)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit insert leads")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, ownerID string) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, external_id, owner_id, first_name, last_name, title, company,
			email, phone, linkedin_url, city, country, category, reason, score, status,
			view_count, created_at, updated_at
		 FROM leads WHERE owner_id = ? ORDER BY score DESC, created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		var category, status string
		err := rows.Scan(
			&l.ID, &l.ExternalID, &l.OwnerID, &l.FirstName, &l.LastName, &l.Title, &l.Company,
			&l.Email, &l.Phone, &l.LinkedInURL, &l.City, &l.Country,
			&category, &l.Reason, &l.Score, &status,
			&l.ViewCount, &l.CreatedAt, &l.UpdatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		l.Category = model.Category(category)
		l.Status = model.LeadStatus(status)
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads rows")
	}
	return leads, nil
}

func (s *SQLiteStore) ListOwnedExternalIDs(ctx context.Context, ownerID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT external_id FROM leads WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list owned external ids")
	}
	defer rows.Close()

	owned := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan external id")
		}
		owned[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: owned external ids rows")
	}
	return owned, nil
}

func (s *SQLiteStore) DeleteLeadsByOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete leads by owner")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, leadID, ownerID string, status model.LeadStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = datetime('now') WHERE id = ? AND owner_id = ?`,
		string(status), leadID, ownerID,
	)
	return eris.Wrap(err, "sqlite: update lead status")
}

func (s *SQLiteStore) MarkLeadViewed(ctx context.Context, leadID, ownerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads
		 SET view_count = view_count + 1,
		     status = CASE WHEN status = ? THEN ? ELSE status END,
		     updated_at = datetime('now')
		 WHERE id = ? AND owner_id = ?`,
		string(model.LeadStatusNew), string(model.LeadStatusViewed), leadID, ownerID,
	)
	return eris.Wrap(err, "sqlite: mark lead viewed")
}

// --- Quotas ---

func (s *SQLiteStore) GetQuota(ctx context.Context, orgID, monthKey string) (*model.MonthlyQuota, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT organization_id, month_key, remaining, created_at, updated_at
		 FROM monthly_quotas WHERE organization_id = ? AND month_key = ?`,
		orgID, monthKey,
	)

	var q model.MonthlyQuota
	err := row.Scan(&q.OrganizationID, &q.MonthKey, &q.Remaining, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuotaNotFound
		}
		return nil, eris.Wrap(err, "sqlite: get quota")
	}
	return &q, nil
}

func (s *SQLiteStore) SeedQuota(ctx context.Context, orgID, monthKey string, allotment int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monthly_quotas (organization_id, month_key, remaining)
		 VALUES (?, ?, ?)
		 ON CONFLICT (organization_id, month_key) DO NOTHING`,
		orgID, monthKey, allotment,
	)
	return eris.Wrap(err, "sqlite: seed quota")
}

func (s *SQLiteStore) DecrementQuota(ctx context.Context, orgID, monthKey string, count int) (int, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE monthly_quotas
		 SET remaining = remaining - ?, updated_at = datetime('now')
		 WHERE organization_id = ? AND month_key = ? AND remaining >= ?
		 RETURNING remaining`,
		count, orgID, monthKey, count,
	)

	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, eris.Wrap(err, "sqlite: decrement quota")
	}
	return remaining, true, nil
}
