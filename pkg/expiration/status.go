package expiration

import (
	"math"
	"time"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
)

// Status is derived from the expiration date and the current time. It is
// never stored.
type Status string

const (
	StatusNoExpiration Status = "NO_EXPIRATION"
	StatusActive       Status = "ACTIVE"
	StatusExpiringSoon Status = "EXPIRING_SOON"
	StatusExpired      Status = "EXPIRED"
)

const (
	// ExpiringSoonWindow is when a membership starts reporting EXPIRING_SOON
	// and the warning notification becomes due
	ExpiringSoonWindow = 7 * 24 * time.Hour
	// FinalNoticeWindow is when the final notification becomes due
	FinalNoticeWindow = 24 * time.Hour
)

// StatusAt computes the status of expiresAt at now
func StatusAt(expiresAt *time.Time, now time.Time) Status {
	switch {
	case expiresAt == nil:
		return StatusNoExpiration
	case !expiresAt.After(now):
		return StatusExpired
	case expiresAt.Sub(now) <= ExpiringSoonWindow:
		return StatusExpiringSoon
	default:
		return StatusActive
	}
}

// DaysUntil returns the whole days left until expiresAt, rounded up, or nil
// when there is no expiration. Expired dates yield zero or a negative count.
func DaysUntil(expiresAt *time.Time, now time.Time) *int {
	if expiresAt == nil {
		return nil
	}
	days := int(math.Ceil(expiresAt.Sub(now).Hours() / 24))
	return &days
}

// Classify returns the notification due for state at now, if any. Each kind
// is due while its window is reached and it has not been sent, checked in
// priority order expired, final, warning, so at most one kind is returned.
func Classify(state model.ExpirationState, now time.Time) (model.NotificationKind, bool) {
	if state.ExpiresAt == nil {
		return "", false
	}

	remaining := state.ExpiresAt.Sub(now)
	switch {
	case remaining <= 0 && state.ExpiredNotifiedAt == nil:
		return model.NotificationExpired, true
	case remaining <= FinalNoticeWindow && state.FinalNotifiedAt == nil:
		return model.NotificationFinal, true
	case remaining <= ExpiringSoonWindow && state.WarningNotifiedAt == nil:
		return model.NotificationWarning, true
	default:
		return "", false
	}
}

// Notification is a membership with a notification due
type Notification struct {
	Membership *model.ProjectMembership `json:"membership"`
	Kind       model.NotificationKind   `json:"kind"`
	DaysUntil  int                      `json:"days_until_expiration"`
}

// DueNotifications classifies every membership and returns those with a
// notification due, in input order
func DueNotifications(memberships []*model.ProjectMembership, now time.Time) []Notification {
	var due []Notification
	for _, m := range memberships {
		if m == nil {
			continue
		}
		kind, ok := Classify(m.Expiration, now)
		if !ok {
			continue
		}
		due = append(due, Notification{
			Membership: m,
			Kind:       kind,
			DaysUntil:  *DaysUntil(m.Expiration.ExpiresAt, now),
		})
	}
	return due
}
