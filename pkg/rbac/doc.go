// Package rbac resolves the effective project role of a user and answers
// capability questions on top of it.
//
// # Overview
//
// A user's access to a project comes from one of four sources, checked in
// order of precedence. The first that applies wins:
//
//	system_admin  - the user's system role is SYSTEM_ADMIN
//	org_owner     - the user is OWNER of the project's organization
//	org_admin     - the user is ORG_ADMIN of the project's organization
//	explicit      - the user holds an unexpired project membership
//
// The three inherited sources always grant the top project role
// (PROJECT_ADMIN). Anything else resolves to Source "none" with no role.
// An explicit membership held by an inherited user is shadowed: it stays in
// storage but has no effect while the inheritance lasts.
//
// # Resolution
//
//	resolver := rbac.NewResolver(store,
//		rbac.WithCache(accesscache.NewMemoryCache(10000, 15*time.Minute)),
//		rbac.WithLogger(logger),
//		rbac.WithMetrics(metrics),
//	)
//
//	result, err := resolver.Resolve(ctx, userID, projectID)
//	if err != nil {
//		return err
//	}
//	if result.HasRole() {
//		fmt.Println(result.Role, result.Source)
//	}
//
// Errors are only returned for collaborator failures. Missing users,
// projects and memberships are not errors.
//
// # Caching
//
// Resolutions are cached per (user, project) for DefaultCacheTTL. Cache
// failures are logged and treated as misses. Every membership write must call
// InvalidateCache (or InvalidateOrganizationCache for organization-wide
// changes) after it commits. ResolveFresh skips the cache entirely and is
// what write-path checks such as CanChangeProjectRole use.
//
// # Capabilities
//
// Capabilities are feature:resource:action strings. A Policy maps each project
// role to granted capability patterns, where any segment may be "*". The top
// role always holds "*:*:*" and read-only roles (OWNER_REP, INSPECTOR, VIEWER)
// may only be granted read, view, list or download actions. Policies can be
// loaded from YAML and hot-reloaded with PolicyWatcher:
//
//	roles:
//	  FOREMAN:
//	    - "documents:*:read"
//	    - "daily_logs:*:create"
//
// Scope-limited roles (FOREMAN, SUBCONTRACTOR) must additionally have a
// membership scope that covers the requested scope:
//
//	ok, err := mapper.HasScopedCapability(ctx, userID, projectID,
//		"documents:drawing:read", scope.List("electrical"))
//
// # HTTP
//
// CapabilityMiddleware wraps gorilla/mux handlers:
//
//	mw := rbac.NewCapabilityMiddleware(mapper, logger)
//	r.Handle("/projects/{projectID}/drawings",
//		mw.RequireCapability("documents:drawing:read")(handler))
package rbac
