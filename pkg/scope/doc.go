// Package scope models the resource-scope restriction of a project membership
// and decides whether a requested resource falls inside it.
//
// A Scope is one of three variants:
//
//	None()                                    unrestricted
//	List("electrical", "level-2")             flat tag set
//	Categorized(map[string][]string{          tag sets per category
//		"trades": {"electrical"},
//		"floors": {"L1", "L2"},
//	})
//
// Scopes are stored as JSON (null, array or object) and implement
// sql.Scanner and driver.Valuer so they can be read from and written to a
// nullable text column directly.
//
// Only scope-limited project roles are narrowed by a scope; callers decide
// that before calling Allows.
package scope
