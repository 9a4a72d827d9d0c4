// Package expiration computes the expiration status of explicit project
// memberships and runs their renewal workflow.
//
// Status is always derived from the expiration date and the current time:
//
//	NO_EXPIRATION  no date, or access inherited from an organization or system role
//	ACTIVE         more than seven days left
//	EXPIRING_SOON  seven days or less left
//	EXPIRED        the date is at or before now
//
// Service applies the transitions of model.ExpirationState through a Store
// and invalidates the resolver cache after every committed write, so a
// renewal or extension is visible to the next authorization decision.
//
// Each expiration cycle has three notifications (warning, final, expired).
// Classify picks the one that is due from the membership's current window and
// MarkNotificationSent records it, so a notification is sent at most once per
// cycle. Changing the expiration date starts a new cycle.
package expiration
