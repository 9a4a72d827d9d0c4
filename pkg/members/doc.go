// Package members changes who holds which role and keeps the resolver cache
// coherent with those changes.
//
// Project operations require the requester to hold a role that manages
// members, resolved without the cache. Users whose access is inherited from
// the organization or the system role are not managed per project and are
// rejected with model.ErrForbidden. Role changes of existing members go
// through rbac.Resolver.CanChangeProjectRole.
//
// Organization operations require OWNER, ORG_ADMIN or a system administrator.
// Granting or revoking OWNER requires OWNER, and the last OWNER of an
// organization can be neither demoted nor removed.
//
// Every committed write invalidates the affected cache entries. A failed
// invalidation is logged and does not fail the write.
package members
