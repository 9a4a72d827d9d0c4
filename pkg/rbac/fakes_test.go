package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/roles"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/scope"
)

type pairKey struct{ a, b string }

// fakeDirectory is an in-memory Directory that counts lookups
type fakeDirectory struct {
	mu          sync.Mutex
	users       map[string]*model.User
	projects    map[string]*model.Project
	orgMembers  map[pairKey]*model.OrganizationMembership
	projMembers map[pairKey]*model.ProjectMembership
	calls       map[string]int
	err         error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:       make(map[string]*model.User),
		projects:    make(map[string]*model.Project),
		orgMembers:  make(map[pairKey]*model.OrganizationMembership),
		projMembers: make(map[pairKey]*model.ProjectMembership),
		calls:       make(map[string]int),
	}
}

func (f *fakeDirectory) addUser(id string, role roles.SystemRole) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &model.User{ID: id, Email: id + "@example.com", SystemRole: role}
}

func (f *fakeDirectory) addProject(id, orgID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[id] = &model.Project{ID: id, OrganizationID: orgID, Name: "Project " + id}
}

func (f *fakeDirectory) setOrgRole(userID, orgID string, role roles.OrgRole) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orgMembers[pairKey{userID, orgID}] = &model.OrganizationMembership{UserID: userID, OrganizationID: orgID, Role: role}
}

func (f *fakeDirectory) setMembership(userID, projectID string, role roles.ProjectRole, sc scope.Scope, expiresAt *time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projMembers[pairKey{userID, projectID}] = &model.ProjectMembership{
		UserID:     userID,
		ProjectID:  projectID,
		Role:       role,
		Scope:      sc,
		Expiration: model.NewExpirationState(expiresAt),
	}
}

func (f *fakeDirectory) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeDirectory) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.err
}

func (f *fakeDirectory) GetUser(_ context.Context, userID string) (*model.User, error) {
	if err := f.record("GetUser"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		c := *u
		return &c, nil
	}
	return nil, fmt.Errorf("user %s: %w", userID, model.ErrNotFound)
}

func (f *fakeDirectory) GetProject(_ context.Context, projectID string) (*model.Project, error) {
	if err := f.record("GetProject"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[projectID]; ok {
		c := *p
		return &c, nil
	}
	return nil, fmt.Errorf("project %s: %w", projectID, model.ErrNotFound)
}

func (f *fakeDirectory) GetOrganizationMembership(_ context.Context, userID, orgID string) (*model.OrganizationMembership, error) {
	if err := f.record("GetOrganizationMembership"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.orgMembers[pairKey{userID, orgID}]; ok {
		c := *m
		return &c, nil
	}
	return nil, model.ErrNotFound
}

func (f *fakeDirectory) GetProjectMembership(_ context.Context, userID, projectID string) (*model.ProjectMembership, error) {
	if err := f.record("GetProjectMembership"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.projMembers[pairKey{userID, projectID}]; ok {
		return m.Clone(), nil
	}
	return nil, model.ErrNotFound
}

func (f *fakeDirectory) ListOrganizationMemberIDs(_ context.Context, orgID string) ([]string, error) {
	if err := f.record("ListOrganizationMemberIDs"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for k := range f.orgMembers {
		if k.b == orgID {
			ids = append(ids, k.a)
		}
	}
	return ids, nil
}

// failingCache fails every operation
type failingCache struct{}

var errCacheDown = errors.New("cache unavailable")

func (failingCache) Get(context.Context, CacheKey) (*CacheEntry, bool, error) {
	return nil, false, errCacheDown
}
func (failingCache) Set(context.Context, CacheKey, CacheEntry) error { return errCacheDown }
func (failingCache) Delete(context.Context, CacheKey) error          { return errCacheDown }
func (failingCache) DeleteUser(context.Context, string) error        { return errCacheDown }
func (failingCache) Purge(context.Context) error                     { return errCacheDown }

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
