// Package cli implements accessctl, the operator tool for inspecting
// effective project access.
//
// # Commands
//
// resolve: Print the effective role of a user on a project
//
//	accessctl resolve -user electrician -project tower [-fresh] [-json]
//
// chain: Explain how the role was derived
//
//	accessctl chain -user orgadmin -project tower
//
// check: Check one or more capabilities, optionally against a scope. Exits
// non-zero when any capability is denied.
//
//	accessctl check -user electrician -project tower \
//		-capability documents:drawing:read,rfis:rfi:create \
//		-scope '{"trades":["electrical"]}'
//
// status: Show expiration and renewal state
//
//	accessctl status -user inspector -project tower
//
// sweep: Run one notification sweep
//
//	accessctl sweep
//
// The engine is configured from ACCESS_* environment variables, see
// pkg/config.
package cli
