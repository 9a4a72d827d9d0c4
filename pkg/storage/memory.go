package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
)

// MemoryStore implements Store in process memory. Records are copied on the
// way in and out so callers never alias stored state.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*model.User
	organizations map[string]*model.Organization
	projects      map[string]*model.Project
	orgMembers    map[string]map[string]*model.OrganizationMembership // org -> user
	projMembers   map[string]map[string]*model.ProjectMembership      // project -> user
	now           func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*model.User),
		organizations: make(map[string]*model.Organization),
		projects:      make(map[string]*model.Project),
		orgMembers:    make(map[string]map[string]*model.OrganizationMembership),
		projMembers:   make(map[string]map[string]*model.ProjectMembership),
		now:           time.Now,
	}
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, userID)
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) GetProject(_ context.Context, projectID string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", model.ErrNotFound, projectID)
	}
	c := *p
	return &c, nil
}

func (s *MemoryStore) GetOrganizationMembership(_ context.Context, userID, organizationID string) (*model.OrganizationMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.orgMembers[organizationID][userID]
	if !ok {
		return nil, fmt.Errorf("%w: organization membership %s/%s", model.ErrNotFound, organizationID, userID)
	}
	c := *m
	return &c, nil
}

func (s *MemoryStore) GetProjectMembership(_ context.Context, userID, projectID string) (*model.ProjectMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.projMembers[projectID][userID]
	if !ok {
		return nil, fmt.Errorf("%w: project membership %s/%s", model.ErrNotFound, projectID, userID)
	}
	return m.Clone(), nil
}

func (s *MemoryStore) ListOrganizationMemberIDs(_ context.Context, organizationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.orgMembers[organizationID]))
	for id := range s.orgMembers[organizationID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListProjectMemberships returns the project's memberships ordered by user id
func (s *MemoryStore) ListProjectMemberships(_ context.Context, projectID string) ([]*model.ProjectMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.ProjectMembership, 0, len(s.projMembers[projectID]))
	for _, m := range s.projMembers[projectID] {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) ListProjectIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) UpdateExpiration(_ context.Context, userID, projectID string, fn ExpirationMutation) (*model.ProjectMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.projMembers[projectID][userID]
	if !ok {
		return nil, fmt.Errorf("%w: project membership %s/%s", model.ErrNotFound, projectID, userID)
	}

	next, err := fn(m.Clone().Expiration)
	if err != nil {
		return nil, err
	}

	updated := m.Clone()
	updated.Expiration = next
	updated.UpdatedAt = s.now()
	s.projMembers[projectID][userID] = updated
	return updated.Clone(), nil
}

func (s *MemoryStore) PutProjectMembership(_ context.Context, membership *model.ProjectMembership) error {
	if membership == nil {
		return fmt.Errorf("membership is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[membership.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s", model.ErrNotFound, membership.ProjectID)
	}

	m := membership.Clone()
	now := s.now()
	if existing, ok := s.projMembers[m.ProjectID][m.UserID]; ok {
		m.CreatedAt = existing.CreatedAt
	} else if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	if s.projMembers[m.ProjectID] == nil {
		s.projMembers[m.ProjectID] = make(map[string]*model.ProjectMembership)
	}
	s.projMembers[m.ProjectID][m.UserID] = m
	return nil
}

func (s *MemoryStore) DeleteProjectMembership(_ context.Context, userID, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projMembers[projectID][userID]; !ok {
		return fmt.Errorf("%w: project membership %s/%s", model.ErrNotFound, projectID, userID)
	}
	delete(s.projMembers[projectID], userID)
	return nil
}

func (s *MemoryStore) MutateOrganizationMembership(_ context.Context, userID, organizationID string, fn OrganizationMutation) (*model.OrganizationMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.organizations[organizationID]; !ok {
		return nil, fmt.Errorf("%w: organization %s", model.ErrNotFound, organizationID)
	}

	members := s.orgMembers[organizationID]
	owners := 0
	for _, m := range members {
		if m.Role == roles.OrgRoleOwner {
			owners++
		}
	}

	var current *model.OrganizationMembership
	if m, ok := members[userID]; ok {
		c := *m
		current = &c
	}

	next, err := fn(current, owners)
	if err != nil {
		return nil, err
	}

	if next == nil {
		delete(members, userID)
		return nil, nil
	}

	stored := *next
	stored.UserID = userID
	stored.OrganizationID = organizationID
	now := s.now()
	if current != nil {
		stored.CreatedAt = current.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if members == nil {
		members = make(map[string]*model.OrganizationMembership)
		s.orgMembers[organizationID] = members
	}
	members[userID] = &stored
	out := stored
	return &out, nil
}

func (s *MemoryStore) PutUser(_ context.Context, user *model.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *user
	s.users[c.ID] = &c
	return nil
}

func (s *MemoryStore) PutOrganization(_ context.Context, org *model.Organization) error {
	if org == nil || org.ID == "" {
		return fmt.Errorf("organization id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *org
	s.organizations[c.ID] = &c
	return nil
}

func (s *MemoryStore) PutProject(_ context.Context, project *model.Project) error {
	if project == nil || project.ID == "" {
		return fmt.Errorf("project id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.organizations[project.OrganizationID]; !ok {
		return fmt.Errorf("%w: organization %s", model.ErrNotFound, project.OrganizationID)
	}
	c := *project
	s.projects[c.ID] = &c
	return nil
}

// HealthCheck always succeeds
func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}
