// Package notify sweeps all projects for due expiration notifications and
// hands them to a Notifier.
//
// Projects are swept concurrently up to a worker limit. Each due
// notification is delivered first and recorded second, so a crash between
// the two resends it at most once, and a delivery failure is retried on the
// next run. Recording is idempotent: when two sweepers race, only one counts
// the notification as sent.
package notify
