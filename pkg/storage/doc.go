// Package storage defines the persistence surface of the access engine and
// an in-memory implementation of it.
//
// # Interfaces
//
// The surface is split into focused interfaces that compose into Store:
//
//   - DirectoryReader: the read lookups of the role resolver
//   - MembershipLister: project memberships and project ids for notification sweeps
//   - ExpirationWriter: atomic read-modify-write of a membership's expiration state
//   - MembershipWriter: create, replace and delete project memberships
//   - OrganizationWriter: organization role changes guarded by the OWNER count
//   - EntityWriter: seeding of users, organizations and projects
//   - HealthChecker: backend health
//
// Consumers declare the narrow interface they need. rbac.Directory,
// expiration.Store, members.Store and notify.ProjectLister are all satisfied
// by the backends here.
//
// # Backends
//
// MemoryStore keeps everything in process memory and is safe for concurrent
// use. It is seeded from a YAML Fixture for local evaluation with accessctl
// and in tests:
//
//	store, err := storage.LoadFixtureFile("testdata/site.yaml")
//
// The postgres subpackage persists the same model in PostgreSQL.
//
// Absent records are reported by wrapping model.ErrNotFound, so callers test
// with model.IsNotFound regardless of backend.
package storage
