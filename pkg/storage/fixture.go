package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/scope"
)

// Fixture is a YAML snapshot of users, organizations, projects and their
// memberships. It seeds a MemoryStore for local evaluation and tests.
//
//	users:
//	  - id: u1
//	    system_role: USER
//	organizations:
//	  - id: o1
//	    members:
//	      - {user: u1, role: OWNER}
//	projects:
//	  - id: p1
//	    organization: o1
//	    members:
//	      - user: u2
//	        role: FOREMAN
//	        scope: {trades: [electrical]}
//	        expires_at: 2026-12-01T00:00:00Z
type Fixture struct {
	Users         []FixtureUser         `yaml:"users"`
	Organizations []FixtureOrganization `yaml:"organizations"`
	Projects      []FixtureProject      `yaml:"projects"`
}

type FixtureUser struct {
	ID         string `yaml:"id"`
	Email      string `yaml:"email"`
	SystemRole string `yaml:"system_role"`
}

type FixtureOrganization struct {
	ID      string                      `yaml:"id"`
	Name    string                      `yaml:"name"`
	Members []FixtureOrganizationMember `yaml:"members"`
}

type FixtureOrganizationMember struct {
	User string `yaml:"user"`
	Role string `yaml:"role"`
}

type FixtureProject struct {
	ID           string                 `yaml:"id"`
	Organization string                 `yaml:"organization"`
	Name         string                 `yaml:"name"`
	Members      []FixtureProjectMember `yaml:"members"`
}

type FixtureProjectMember struct {
	User      string     `yaml:"user"`
	Role      string     `yaml:"role"`
	Scope     any        `yaml:"scope"`
	ExpiresAt *time.Time `yaml:"expires_at"`
}

// LoadFixtureFile reads a fixture from path into a new MemoryStore
func LoadFixtureFile(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()

	store, err := LoadFixture(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixture %s: %w", path, err)
	}
	return store, nil
}

// LoadFixture decodes a YAML fixture into a new MemoryStore
func LoadFixture(r io.Reader) (*MemoryStore, error) {
	var fx Fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}

	store := NewMemoryStore()
	if err := fx.Apply(context.Background(), store); err != nil {
		return nil, err
	}
	return store, nil
}

// Apply writes the fixture's records into store
func (fx *Fixture) Apply(ctx context.Context, store interface {
	EntityWriter
	MembershipWriter
	OrganizationWriter
}) error {
	for _, u := range fx.Users {
		role := roles.SystemRole(u.SystemRole)
		if role == "" {
			role = roles.SystemRoleUser
		}
		if !role.Valid() {
			return fmt.Errorf("user %s: unknown system role %q", u.ID, u.SystemRole)
		}
		if err := store.PutUser(ctx, &model.User{ID: u.ID, Email: u.Email, SystemRole: role}); err != nil {
			return fmt.Errorf("failed to store user %s: %w", u.ID, err)
		}
	}

	for _, o := range fx.Organizations {
		if err := store.PutOrganization(ctx, &model.Organization{ID: o.ID, Name: o.Name, IsActive: true}); err != nil {
			return fmt.Errorf("failed to store organization %s: %w", o.ID, err)
		}
		for _, m := range o.Members {
			role, err := roles.ParseOrgRole(m.Role)
			if err != nil {
				return fmt.Errorf("organization %s member %s: %w", o.ID, m.User, err)
			}
			_, err = store.MutateOrganizationMembership(ctx, m.User, o.ID, func(*model.OrganizationMembership, int) (*model.OrganizationMembership, error) {
				return &model.OrganizationMembership{Role: role}, nil
			})
			if err != nil {
				return fmt.Errorf("failed to store organization member %s: %w", m.User, err)
			}
		}
	}

	for _, p := range fx.Projects {
		if err := store.PutProject(ctx, &model.Project{ID: p.ID, OrganizationID: p.Organization, Name: p.Name}); err != nil {
			return fmt.Errorf("failed to store project %s: %w", p.ID, err)
		}
		for _, m := range p.Members {
			membership, err := m.toModel(p.ID)
			if err != nil {
				return fmt.Errorf("project %s member %s: %w", p.ID, m.User, err)
			}
			if err := store.PutProjectMembership(ctx, membership); err != nil {
				return fmt.Errorf("failed to store project member %s: %w", m.User, err)
			}
		}
	}
	return nil
}

func (m FixtureProjectMember) toModel(projectID string) (*model.ProjectMembership, error) {
	role, err := roles.ParseProjectRole(m.Role)
	if err != nil {
		return nil, err
	}

	// Scope has JSON semantics; YAML values are routed through them
	var sc scope.Scope
	if m.Scope != nil {
		data, err := json.Marshal(m.Scope)
		if err != nil {
			return nil, fmt.Errorf("invalid scope: %w", err)
		}
		if err := json.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("invalid scope: %w", err)
		}
	}

	return &model.ProjectMembership{
		UserID:     m.User,
		ProjectID:  projectID,
		Role:       role,
		Scope:      sc,
		Expiration: model.NewExpirationState(m.ExpiresAt),
	}, nil
}
