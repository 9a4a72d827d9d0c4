package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all access schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and organizations tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL DEFAULT '',
					system_role TEXT NOT NULL DEFAULT 'USER'
						CHECK (system_role IN ('USER', 'SYSTEM_ADMIN')),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS organizations (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create organization_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organization_members (
					organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role TEXT NOT NULL CHECK (role IN ('OWNER', 'ORG_ADMIN', 'ORG_MEMBER', 'GUEST')),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (organization_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_organization_members_user_id ON organization_members(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create projects and project_members tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id TEXT PRIMARY KEY,
					organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_projects_organization_id ON projects(organization_id);

				CREATE TABLE IF NOT EXISTS project_members (
					project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role TEXT NOT NULL,
					scope JSONB,
					expires_at TIMESTAMPTZ,
					added_by TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (project_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_project_members_user_id ON project_members(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Add expiration notification and renewal columns",
			SQL: `
				ALTER TABLE project_members
					ADD COLUMN IF NOT EXISTS warning_notified_at TIMESTAMPTZ,
					ADD COLUMN IF NOT EXISTS final_notified_at TIMESTAMPTZ,
					ADD COLUMN IF NOT EXISTS expired_notified_at TIMESTAMPTZ,
					ADD COLUMN IF NOT EXISTS renewal_requested BOOLEAN NOT NULL DEFAULT FALSE,
					ADD COLUMN IF NOT EXISTS renewal_status TEXT NOT NULL DEFAULT 'none'
						CHECK (renewal_status IN ('none', 'pending', 'approved', 'denied')),
					ADD COLUMN IF NOT EXISTS renewal_requested_by TEXT NOT NULL DEFAULT '',
					ADD COLUMN IF NOT EXISTS renewal_requested_at TIMESTAMPTZ,
					ADD COLUMN IF NOT EXISTS renewal_reason TEXT NOT NULL DEFAULT '',
					ADD COLUMN IF NOT EXISTS renewal_processed_by TEXT NOT NULL DEFAULT '',
					ADD COLUMN IF NOT EXISTS renewal_processed_at TIMESTAMPTZ;

				CREATE INDEX IF NOT EXISTS idx_project_members_expires_at
					ON project_members(expires_at) WHERE expires_at IS NOT NULL;
			`,
		},
	}
}

// RunMigrations executes all pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS access_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO access_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM access_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
