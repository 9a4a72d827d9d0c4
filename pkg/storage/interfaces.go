package storage

import (
	"context"
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
)

// ExpirationMutation computes the next expiration state of a project membership
type ExpirationMutation = func(current model.ExpirationState) (model.ExpirationState, error)

// OrganizationMutation computes the next organization membership from the
// current one (nil when absent) and the organization's current OWNER count.
// Returning nil removes the membership.
type OrganizationMutation = func(current *model.OrganizationMembership, owners int) (*model.OrganizationMembership, error)

// DirectoryReader answers the lookups of the role resolver. Absent records
// are reported with model.ErrNotFound.
type DirectoryReader interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	GetOrganizationMembership(ctx context.Context, userID, organizationID string) (*model.OrganizationMembership, error)
	GetProjectMembership(ctx context.Context, userID, projectID string) (*model.ProjectMembership, error)
	ListOrganizationMemberIDs(ctx context.Context, organizationID string) ([]string, error)
}

// MembershipLister enumerates memberships and projects
type MembershipLister interface {
	ListProjectMemberships(ctx context.Context, projectID string) ([]*model.ProjectMembership, error)
	ListProjectIDs(ctx context.Context) ([]string, error)
}

// ExpirationWriter updates the expiration state of one membership atomically
type ExpirationWriter interface {
	UpdateExpiration(ctx context.Context, userID, projectID string, fn ExpirationMutation) (*model.ProjectMembership, error)
}

// MembershipWriter creates, replaces and deletes project memberships
type MembershipWriter interface {
	PutProjectMembership(ctx context.Context, membership *model.ProjectMembership) error
	DeleteProjectMembership(ctx context.Context, userID, projectID string) error
}

// OrganizationWriter mutates organization memberships. The mutation runs
// with the organization's memberships locked so the OWNER count it sees
// cannot change before the write commits.
type OrganizationWriter interface {
	MutateOrganizationMembership(ctx context.Context, userID, organizationID string, fn OrganizationMutation) (*model.OrganizationMembership, error)
}

// EntityWriter seeds the entities owned by other services
type EntityWriter interface {
	PutUser(ctx context.Context, user *model.User) error
	PutOrganization(ctx context.Context, org *model.Organization) error
	PutProject(ctx context.Context, project *model.Project) error
}

// HealthChecker reports backend health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Store is the full persistence surface of the access engine
type Store interface {
	DirectoryReader
	MembershipLister
	ExpirationWriter
	MembershipWriter
	OrganizationWriter
	EntityWriter
	HealthChecker
}

// Config for storage backend
type Config struct {
	Type string // "memory" or "postgres"

	// Memory config
	FixturePath string

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
	}
}
