package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/prospectly/leadgen-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS customer_profiles (
	customer_id             TEXT PRIMARY KEY,
	organization_id         TEXT NOT NULL,
	ideal_customer          JSONB NOT NULL DEFAULT '{}',
	buyer_persona           JSONB NOT NULL DEFAULT '{}',
	generation_status       TEXT NOT NULL DEFAULT 'not_started',
	last_query              TEXT NOT NULL DEFAULT '',
	current_page            INT NOT NULL DEFAULT 1,
	total_pages             INT NOT NULL DEFAULT 0,
	refresh_allowance       INT NOT NULL DEFAULT 5,
	next_allowed_refresh_at TIMESTAMPTZ,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id           UUID PRIMARY KEY,
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
	score        INT NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'new',
	view_count   INT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (external_id, owner_id)
);

CREATE TABLE IF NOT EXISTS monthly_quotas (
	organization_id TEXT NOT NULL,
	month_key       TEXT NOT NULL,
	remaining       INT NOT NULL CHECK (remaining >= 0),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (organization_id, month_key)
);

CREATE INDEX IF NOT EXISTS idx_leads_owner_id ON leads(owner_id);
CREATE INDEX IF NOT EXISTS idx_leads_owner_status ON leads(owner_id, status);
CREATE INDEX IF NOT EXISTS idx_profiles_org ON customer_profiles(organization_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Profiles ---

func (s *PostgresStore) CreateProfile(ctx context.Context, p *model.CustomerProfile) error {
	icp, err := json.Marshal(p.IdealCustomer)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal ideal customer")
	}
	bp, err := json.Marshal(p.BuyerPersona)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal buyer persona")
	}

	status := p.GenerationStatus
	if status == "" {
		status = model.GenerationNotStarted
	}
	currentPage := p.CurrentPage
	if currentPage < 1 {
		currentPage = 1
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO customer_profiles
			(customer_id, organization_id, ideal_customer, buyer_persona,
			 generation_status, last_query, current_page, total_pages,
			 refresh_allowance, next_allowed_refresh_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.CustomerID, p.OrganizationID, icp, bp,
		string(status), p.LastQuery, currentPage, p.TotalPages,
		p.RefreshAllowance, p.NextAllowedRefreshAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert profile")
	}
	return nil
}

const selectProfileSQL = `SELECT customer_id, organization_id, ideal_customer, buyer_persona,
	generation_status, last_query, current_page, total_pages,
	refresh_allowance, next_allowed_refresh_at, created_at, updated_at
	FROM customer_profiles WHERE customer_id = $1`

func (s *PostgresStore) GetProfile(ctx context.Context, customerID string) (*model.CustomerProfile, error) {
	row := s.pool.QueryRow(ctx, selectProfileSQL, customerID)

	var p model.CustomerProfile
	var icp, bp []byte
	var status string
	err := row.Scan(
		&p.CustomerID, &p.OrganizationID, &icp, &bp,
		&status, &p.LastQuery, &p.CurrentPage, &p.TotalPages,
		&p.RefreshAllowance, &p.NextAllowedRefreshAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, eris.Wrap(err, "postgres: get profile")
	}

	p.GenerationStatus = model.GenerationStatus(status)
	if err := json.Unmarshal(icp, &p.IdealCustomer); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal ideal customer")
	}
	if err := json.Unmarshal(bp, &p.BuyerPersona); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal buyer persona")
	}
	return &p, nil
}

func (s *PostgresStore) ClaimGeneration(ctx context.Context, customerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE customer_profiles
		 SET generation_status = $1, updated_at = now()
		 WHERE customer_id = $2 AND generation_status <> $1`,
		string(model.GenerationOngoing), customerID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: claim generation")
	}
	if tag.RowsAffected() == 0 {
		// Either the profile is missing or another run holds it.
		if _, err := s.GetProfile(ctx, customerID); err != nil {
			return err
		}
		return ErrRunInProgress
	}
	return nil
}

func (s *PostgresStore) SetGenerationStatus(ctx context.Context, customerID string, status model.GenerationStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE customer_profiles SET generation_status = $1, updated_at = now() WHERE customer_id = $2`,
		string(status), customerID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set generation status")
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateGenerationCursor(ctx context.Context, customerID string, currentPage, totalPages int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE customer_profiles SET current_page = $1, total_pages = $2, updated_at = now() WHERE customer_id = $3`,
		currentPage, totalPages, customerID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update cursor")
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *PostgresStore) SetLastQuery(ctx context.Context, customerID, query string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE customer_profiles SET last_query = $1, updated_at = now() WHERE customer_id = $2`,
		query, customerID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set last query")
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *PostgresStore) ResetGeneration(ctx context.Context, customerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE customer_profiles
		 SET current_page = 1, total_pages = 0, last_query = '', updated_at = now()
		 WHERE customer_id = $1`,
		customerID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: reset generation")
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateAllowance(ctx context.Context, customerID string, allowance int, nextAllowedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE customer_profiles
		 SET refresh_allowance = $1, next_allowed_refresh_at = $2, updated_at = now()
		 WHERE customer_id = $3`,
		allowance, nextAllowedAt, customerID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update allowance")
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// --- Leads ---

const insertLeadSQL = `INSERT INTO leads
	(id, external_id, owner_id, first_name, last_name, title, company,
	 email, phone, linkedin_url, city, country, category, reason, score, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (external_id, owner_id) DO NOTHING`

func (s *PostgresStore) InsertLeads(ctx context.Context, leads []model.Lead) ([]model.Lead, error) {
	if len(leads) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin insert leads")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	var inserted []model.Lead
	for _, l := range leads {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if l.Status == "" {
			l.Status = model.LeadStatusNew
		}
		tag, err := tx.Exec(ctx, insertLeadSQL,
			l.ID, l.ExternalID, l.OwnerID, l.FirstName, l.LastName, l.Title, l.Company,
			l.Email, l.Phone, l.LinkedInURL, l.City, l.Country,
			string(l.Category), l.Reason, l.Score, string(l.Status),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: insert lead %s", l.ExternalID)
		}
		if tag.RowsAffected() == 0 {
			continue // already owned
		}
		l.CreatedAt = now
		l.UpdatedAt = now
		inserted = append(inserted, l)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit insert leads")
	}
	return inserted, nil
}

const selectLeadColumns = `id, external_id, owner_id, first_name, last_name, title, company,
	email, phone, linkedin_url, city, country, category, reason, score, status,
	view_count, created_at, updated_at`

func (s *PostgresStore) ListLeads(ctx context.Context, ownerID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectLeadColumns+` FROM leads WHERE owner_id = $1 ORDER BY score DESC, created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list leads rows")
	}
	return leads, nil
}

func scanLead(row pgx.Row) (model.Lead, error) {
	var l model.Lead
	var category, status string
	err := row.Scan(
		&l.ID, &l.ExternalID, &l.OwnerID, &l.FirstName, &l.LastName, &l.Title, &l.Company,
		&l.Email, &l.Phone, &l.LinkedInURL, &l.City, &l.Country,
		&category, &l.Reason, &l.Score, &status,
		&l.ViewCount, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return model.Lead{}, eris.Wrap(err, "postgres: scan lead")
	}
	l.Category = model.Category(category)
	l.Status = model.LeadStatus(status)
	return l, nil
}

func (s *PostgresStore) ListOwnedExternalIDs(ctx context.Context, ownerID string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT external_id FROM leads WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list owned external ids")
	}
	defer rows.Close()

	owned := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan external id")
		}
		owned[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: owned external ids rows")
	}
	return owned, nil
}

func (s *PostgresStore) DeleteLeadsByOwner(ctx context.Context, ownerID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete leads by owner")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, leadID, ownerID string, status model.LeadStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, updated_at = now() WHERE id = $2 AND owner_id = $3`,
		string(status), leadID, ownerID,
	)
	return eris.Wrap(err, "postgres: update lead status")
}

func (s *PostgresStore) MarkLeadViewed(ctx context.Context, leadID, ownerID string) error {
	// Already-viewed leads still count the view; only new ones flip status.
	_, err := s.pool.Exec(ctx,
		`UPDATE leads
		 SET view_count = view_count + 1,
		     status = CASE WHEN status = $1 THEN $2 ELSE status END,
		     updated_at = now()
		 WHERE id = $3 AND owner_id = $4`,
		string(model.LeadStatusNew), string(model.LeadStatusViewed), leadID, ownerID,
	)
	return eris.Wrap(err, "postgres: mark lead viewed")
}

// --- Quotas ---

func (s *PostgresStore) GetQuota(ctx context.Context, orgID, monthKey string) (*model.MonthlyQuota, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT organization_id, month_key, remaining, created_at, updated_at
		 FROM monthly_quotas WHERE organization_id = $1 AND month_key = $2`,
		orgID, monthKey,
	)

	var q model.MonthlyQuota
	err := row.Scan(&q.OrganizationID, &q.MonthKey, &q.Remaining, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuotaNotFound
		}
		return nil, eris.Wrap(err, "postgres: get quota")
	}
	return &q, nil
}

func (s *PostgresStore) SeedQuota(ctx context.Context, orgID, monthKey string, allotment int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monthly_quotas (organization_id, month_key, remaining)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (organization_id, month_key) DO NOTHING`,
		orgID, monthKey, allotment,
	)
	return eris.Wrap(err, "postgres: seed quota")
}

// DecrementQuota is the single conditional update the whole quota design
// hinges on: the WHERE clause is the floor check, so two concurrent calls
// can never overdraw the month.
func (s *PostgresStore) DecrementQuota(ctx context.Context, orgID, monthKey string, count int) (int, bool, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE monthly_quotas
		 SET remaining = remaining - $3, updated_at = now()
		 WHERE organization_id = $1 AND month_key = $2 AND remaining >= $3
		 RETURNING remaining`,
		orgID, monthKey, count,
	)

	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, eris.Wrap(err, "postgres: decrement quota")
	}
	return remaining, true, nil
}
