package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/storage"
)

// Dialect selects the SQL variations between PostgreSQL and SQLite
type Dialect int

const (
	DialectPostgres Dialect = iota
	// DialectSQLite omits row locks; SQLite serializes writers itself
	DialectSQLite
)

// Store implements storage.Store over database/sql
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithDialect selects the SQL dialect
func WithDialect(d Dialect) Option {
	return func(s *Store) { s.dialect = d }
}

// WithClock overrides the time source of created_at and updated_at
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an open database
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, dialect: DialectPostgres, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) forUpdate() string {
	if s.dialect == DialectSQLite {
		return ""
	}
	return " FOR UPDATE"
}

const memberColumns = `user_id, project_id, role, scope, expires_at,
	warning_notified_at, final_notified_at, expired_notified_at,
	renewal_requested, renewal_status, renewal_requested_by, renewal_requested_at,
	renewal_reason, renewal_processed_by, renewal_processed_at,
	added_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*model.ProjectMembership, error) {
	var (
		m                                   model.ProjectMembership
		role, renewalStatus                 string
		expiresAt, warned, finaled, expired sql.NullTime
		requestedAt, processedAt            sql.NullTime
	)
	err := row.Scan(
		&m.UserID, &m.ProjectID, &role, &m.Scope, &expiresAt,
		&warned, &finaled, &expired,
		&m.Expiration.Renewal.Requested, &renewalStatus, &m.Expiration.Renewal.RequestedBy, &requestedAt,
		&m.Expiration.Renewal.Reason, &m.Expiration.Renewal.ProcessedBy, &processedAt,
		&m.AddedBy, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Role = roles.ProjectRole(role)
	m.Expiration.ExpiresAt = timePtr(expiresAt)
	m.Expiration.WarningNotifiedAt = timePtr(warned)
	m.Expiration.FinalNotifiedAt = timePtr(finaled)
	m.Expiration.ExpiredNotifiedAt = timePtr(expired)
	m.Expiration.Renewal.Status = model.RenewalStatus(renewalStatus)
	m.Expiration.Renewal.RequestedAt = timePtr(requestedAt)
	m.Expiration.Renewal.ProcessedAt = timePtr(processedAt)
	return &m, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: "+format, append([]any{model.ErrNotFound}, args...)...)
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, userID string) (*model.User, error) {
	u := &model.User{}
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, system_role, created_at FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Email, &role, &u.CreatedAt)
	if err != nil {
		if err = notFound(err, "user %s", userID); model.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.SystemRole = roles.SystemRole(role)
	return u, nil
}

func (s *Store) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	p := &model.Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, created_at FROM projects WHERE id = $1`, projectID,
	).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.CreatedAt)
	if err != nil {
		if err = notFound(err, "project %s", projectID); model.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

func (s *Store) GetOrganizationMembership(ctx context.Context, userID, organizationID string) (*model.OrganizationMembership, error) {
	m := &model.OrganizationMembership{}
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, organization_id, role, created_at, updated_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`, organizationID, userID).Scan(&m.UserID, &m.OrganizationID, &role, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err = notFound(err, "organization membership %s/%s", organizationID, userID); model.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get organization membership: %w", err)
	}
	m.Role = roles.OrgRole(role)
	return m, nil
}

func (s *Store) GetProjectMembership(ctx context.Context, userID, projectID string) (*model.ProjectMembership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID)
	m, err := scanMembership(row)
	if err != nil {
		if err = notFound(err, "project membership %s/%s", projectID, userID); model.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get project membership: %w", err)
	}
	return m, nil
}

func (s *Store) ListOrganizationMemberIDs(ctx context.Context, organizationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM organization_members WHERE organization_id = $1 ORDER BY user_id`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListProjectMemberships returns the project's memberships ordered by user id
func (s *Store) ListProjectMemberships(ctx context.Context, projectID string) ([]*model.ProjectMembership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM project_members WHERE project_id = $1 ORDER BY user_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project members: %w", err)
	}
	defer rows.Close()

	var members []*model.ProjectMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListProjectIDs returns all project ids in order
func (s *Store) ListProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateExpiration locks the membership row, applies fn and writes the
// resulting expiration state in one transaction
func (s *Store) UpdateExpiration(ctx context.Context, userID, projectID string, fn storage.ExpirationMutation) (*model.ProjectMembership, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM project_members WHERE project_id = $1 AND user_id = $2`+s.forUpdate(),
		projectID, userID)
	m, err := scanMembership(row)
	if err != nil {
		if err = notFound(err, "project membership %s/%s", projectID, userID); model.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock project membership: %w", err)
	}

	next, err := fn(m.Expiration)
	if err != nil {
		return nil, err
	}

	now := s.now()
	_, err = tx.ExecContext(ctx, `
		UPDATE project_members SET
			expires_at = $1,
			warning_notified_at = $2,
			final_notified_at = $3,
			expired_notified_at = $4,
			renewal_requested = $5,
			renewal_status = $6,
			renewal_requested_by = $7,
			renewal_requested_at = $8,
			renewal_reason = $9,
			renewal_processed_by = $10,
			renewal_processed_at = $11,
			updated_at = $12
		WHERE project_id = $13 AND user_id = $14
	`,
		nullTime(next.ExpiresAt), nullTime(next.WarningNotifiedAt), nullTime(next.FinalNotifiedAt), nullTime(next.ExpiredNotifiedAt),
		next.Renewal.Requested, string(renewalStatus(next.Renewal.Status)), next.Renewal.RequestedBy, nullTime(next.Renewal.RequestedAt),
		next.Renewal.Reason, next.Renewal.ProcessedBy, nullTime(next.Renewal.ProcessedAt),
		now, projectID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update expiration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expiration update: %w", err)
	}

	m.Expiration = next
	m.UpdatedAt = now
	return m, nil
}

func renewalStatus(s model.RenewalStatus) model.RenewalStatus {
	if s == "" {
		return model.RenewalNone
	}
	return s
}

// PutProjectMembership inserts the membership or replaces an existing one,
// keeping its created_at
func (s *Store) PutProjectMembership(ctx context.Context, m *model.ProjectMembership) error {
	if m == nil {
		return fmt.Errorf("membership is required")
	}
	if _, err := s.GetProject(ctx, m.ProjectID); err != nil {
		return err
	}

	now := s.now()
	created := m.CreatedAt
	if created.IsZero() {
		created = now
	}
	e := m.Expiration

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (project_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			warning_notified_at = EXCLUDED.warning_notified_at,
			final_notified_at = EXCLUDED.final_notified_at,
			expired_notified_at = EXCLUDED.expired_notified_at,
			renewal_requested = EXCLUDED.renewal_requested,
			renewal_status = EXCLUDED.renewal_status,
			renewal_requested_by = EXCLUDED.renewal_requested_by,
			renewal_requested_at = EXCLUDED.renewal_requested_at,
			renewal_reason = EXCLUDED.renewal_reason,
			renewal_processed_by = EXCLUDED.renewal_processed_by,
			renewal_processed_at = EXCLUDED.renewal_processed_at,
			updated_at = EXCLUDED.updated_at
	`,
		m.UserID, m.ProjectID, string(m.Role), m.Scope, nullTime(e.ExpiresAt),
		nullTime(e.WarningNotifiedAt), nullTime(e.FinalNotifiedAt), nullTime(e.ExpiredNotifiedAt),
		e.Renewal.Requested, string(renewalStatus(e.Renewal.Status)), e.Renewal.RequestedBy, nullTime(e.Renewal.RequestedAt),
		e.Renewal.Reason, e.Renewal.ProcessedBy, nullTime(e.Renewal.ProcessedAt),
		m.AddedBy, created, now,
	)
	if err != nil {
		return fmt.Errorf("failed to put project membership: %w", err)
	}
	return nil
}

func (s *Store) DeleteProjectMembership(ctx context.Context, userID, projectID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete project membership: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: project membership %s/%s", model.ErrNotFound, projectID, userID)
	}
	return nil
}

// MutateOrganizationMembership locks the organization row so concurrent
// mutations of the same organization see a stable OWNER count
func (s *Store) MutateOrganizationMembership(ctx context.Context, userID, organizationID string, fn storage.OrganizationMutation) (*model.OrganizationMembership, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM organizations WHERE id = $1`+s.forUpdate(), organizationID).Scan(&id)
	if err != nil {
		if err = notFound(err, "organization %s", organizationID); model.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock organization: %w", err)
	}

	var owners int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM organization_members WHERE organization_id = $1 AND role = $2`,
		organizationID, string(roles.OrgRoleOwner),
	).Scan(&owners); err != nil {
		return nil, fmt.Errorf("failed to count owners: %w", err)
	}

	var current *model.OrganizationMembership
	cur := &model.OrganizationMembership{}
	var role string
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, organization_id, role, created_at, updated_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`, organizationID, userID).Scan(&cur.UserID, &cur.OrganizationID, &role, &cur.CreatedAt, &cur.UpdatedAt)
	switch {
	case err == nil:
		cur.Role = roles.OrgRole(role)
		current = cur
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to get organization membership: %w", err)
	}

	next, err := fn(current, owners)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if next == nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`,
			organizationID, userID); err != nil {
			return nil, fmt.Errorf("failed to delete organization membership: %w", err)
		}
	} else {
		out := *next
		out.UserID = userID
		out.OrganizationID = organizationID
		out.UpdatedAt = now
		if current != nil {
			out.CreatedAt = current.CreatedAt
		} else if out.CreatedAt.IsZero() {
			out.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO organization_members (organization_id, user_id, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (organization_id, user_id) DO UPDATE SET
				role = EXCLUDED.role,
				updated_at = EXCLUDED.updated_at
		`, organizationID, userID, string(out.Role), out.CreatedAt, out.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to put organization membership: %w", err)
		}
		next = &out
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit organization membership: %w", err)
	}
	return next, nil
}

func (s *Store) PutUser(ctx context.Context, u *model.User) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	role := u.SystemRole
	if role == "" {
		role = roles.SystemRoleUser
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, system_role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, system_role = EXCLUDED.system_role
	`, u.ID, u.Email, string(role), s.now())
	if err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}

func (s *Store) PutOrganization(ctx context.Context, o *model.Organization) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("organization id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, is_active, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_active = EXCLUDED.is_active
	`, o.ID, o.Name, o.IsActive, s.now())
	if err != nil {
		return fmt.Errorf("failed to put organization: %w", err)
	}
	return nil
}

func (s *Store) PutProject(ctx context.Context, p *model.Project) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("project id is required")
	}
	var orgID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM organizations WHERE id = $1`, p.OrganizationID).Scan(&orgID)
	if err != nil {
		if err = notFound(err, "organization %s", p.OrganizationID); model.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to get organization: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, organization_id, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET organization_id = EXCLUDED.organization_id, name = EXCLUDED.name
	`, p.ID, p.OrganizationID, p.Name, s.now())
	if err != nil {
		return fmt.Errorf("failed to put project: %w", err)
	}
	return nil
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
