package model

import (
	"fmt"
	"time"
)

// RenewalStatus tracks the renewal workflow of an expiring membership
type RenewalStatus string

const (
	RenewalNone     RenewalStatus = "none"
	RenewalPending  RenewalStatus = "pending"
	RenewalApproved RenewalStatus = "approved"
	RenewalDenied   RenewalStatus = "denied"
)

// Valid reports whether s is a known renewal status
func (s RenewalStatus) Valid() bool {
	switch s {
	case RenewalNone, RenewalPending, RenewalApproved, RenewalDenied:
		return true
	}
	return false
}

// NotificationKind is one of the three expiration notices sent per expiration cycle
type NotificationKind string

const (
	NotificationWarning NotificationKind = "warning"
	NotificationFinal   NotificationKind = "final"
	NotificationExpired NotificationKind = "expired"
)

// Renewal holds the renewal request bookkeeping of a membership
type Renewal struct {
	Requested   bool          `json:"requested"`
	Status      RenewalStatus `json:"status"`
	RequestedBy string        `json:"requested_by,omitempty"`
	RequestedAt *time.Time    `json:"requested_at,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	ProcessedBy string        `json:"processed_by,omitempty"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
}

// IsPending reports whether a renewal awaits a decision
func (r Renewal) IsPending() bool {
	return r.Status == RenewalPending
}

// ExpirationState groups the expiration and renewal fields of a project
// membership. Transitions return a new value and never mutate the receiver.
type ExpirationState struct {
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	WarningNotifiedAt *time.Time `json:"warning_notified_at,omitempty"`
	FinalNotifiedAt   *time.Time `json:"final_notified_at,omitempty"`
	ExpiredNotifiedAt *time.Time `json:"expired_notified_at,omitempty"`
	Renewal           Renewal    `json:"renewal"`
}

// NewExpirationState returns a state expiring at expiresAt, or never when nil
func NewExpirationState(expiresAt *time.Time) ExpirationState {
	return ExpirationState{
		ExpiresAt: copyTime(expiresAt),
		Renewal:   Renewal{Status: RenewalNone},
	}
}

// HasExpiration reports whether an expiration date is set
func (s ExpirationState) HasExpiration() bool {
	return s.ExpiresAt != nil
}

// IsExpiredAt reports whether the expiration date is at or before now
func (s ExpirationState) IsExpiredAt(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// NotifiedAt returns the timestamp recorded for a notification kind
func (s ExpirationState) NotifiedAt(kind NotificationKind) *time.Time {
	switch kind {
	case NotificationWarning:
		return s.WarningNotifiedAt
	case NotificationFinal:
		return s.FinalNotifiedAt
	case NotificationExpired:
		return s.ExpiredNotifiedAt
	}
	return nil
}

// WithExpiresAt sets the expiration date. Notification timestamps are cleared
// whenever the date actually changes, starting a new expiration cycle.
func (s ExpirationState) WithExpiresAt(expiresAt *time.Time) ExpirationState {
	next := s.clone()
	if sameTime(s.ExpiresAt, expiresAt) {
		return next
	}
	next.ExpiresAt = copyTime(expiresAt)
	next.WarningNotifiedAt = nil
	next.FinalNotifiedAt = nil
	next.ExpiredNotifiedAt = nil
	return next
}

// RequestRenewal moves the workflow to pending
func (s ExpirationState) RequestRenewal(requestedBy, reason string, now time.Time) (ExpirationState, error) {
	if s.ExpiresAt == nil {
		return s, fmt.Errorf("%w: cannot request renewal without expiration", ErrInvalidState)
	}
	if s.Renewal.IsPending() {
		return s, fmt.Errorf("%w: renewal request already pending", ErrInvalidState)
	}

	next := s.clone()
	next.Renewal = Renewal{
		Requested:   true,
		Status:      RenewalPending,
		RequestedBy: requestedBy,
		RequestedAt: copyTime(&now),
		Reason:      reason,
	}
	return next, nil
}

// ApproveRenewal applies a new future expiration date to a pending request
func (s ExpirationState) ApproveRenewal(processedBy string, newExpiresAt *time.Time, now time.Time) (ExpirationState, error) {
	if !s.Renewal.IsPending() {
		return s, fmt.Errorf("%w: no pending renewal request", ErrInvalidState)
	}
	if newExpiresAt == nil {
		return s, fmt.Errorf("%w: approving a renewal requires a new expiration date", ErrInvalidState)
	}
	if !newExpiresAt.After(now) {
		return s, fmt.Errorf("%w: new expiration date must be in the future", ErrInvalidState)
	}

	next := s.WithExpiresAt(newExpiresAt)
	// approval always starts a fresh notification cycle
	next.WarningNotifiedAt = nil
	next.FinalNotifiedAt = nil
	next.ExpiredNotifiedAt = nil
	next.Renewal = next.Renewal.processed(RenewalApproved, processedBy, now)
	return next, nil
}

// DenyRenewal closes a pending request and leaves the expiration date untouched
func (s ExpirationState) DenyRenewal(processedBy string, now time.Time) (ExpirationState, error) {
	if !s.Renewal.IsPending() {
		return s, fmt.Errorf("%w: no pending renewal request", ErrInvalidState)
	}

	next := s.clone()
	next.Renewal = next.Renewal.processed(RenewalDenied, processedBy, now)
	return next, nil
}

// Extend sets a new future expiration date. A pending renewal is approved as a side effect.
func (s ExpirationState) Extend(newExpiresAt time.Time, actor string, now time.Time) (ExpirationState, error) {
	if !newExpiresAt.After(now) {
		return s, fmt.Errorf("%w: expiration date must be in the future", ErrInvalidState)
	}

	next := s.WithExpiresAt(&newExpiresAt)
	if next.Renewal.IsPending() {
		next.Renewal = next.Renewal.processed(RenewalApproved, actor, now)
	}
	return next, nil
}

// Remove clears the expiration date. A pending renewal is approved as a side effect.
func (s ExpirationState) Remove(actor string, now time.Time) ExpirationState {
	next := s.WithExpiresAt(nil)
	if next.Renewal.IsPending() {
		next.Renewal = next.Renewal.processed(RenewalApproved, actor, now)
	}
	return next
}

// MarkNotified records that a notification was sent. It reports false when
// the kind was already recorded for this cycle.
func (s ExpirationState) MarkNotified(kind NotificationKind, now time.Time) (ExpirationState, bool, error) {
	if s.NotifiedAt(kind) != nil {
		return s, false, nil
	}

	next := s.clone()
	stamp := copyTime(&now)
	switch kind {
	case NotificationWarning:
		next.WarningNotifiedAt = stamp
	case NotificationFinal:
		next.FinalNotifiedAt = stamp
	case NotificationExpired:
		next.ExpiredNotifiedAt = stamp
	default:
		return s, false, fmt.Errorf("%w: unknown notification kind %q", ErrInvalidState, kind)
	}
	return next, true, nil
}

func (r Renewal) processed(status RenewalStatus, processedBy string, now time.Time) Renewal {
	r.Requested = false
	r.Status = status
	r.ProcessedBy = processedBy
	r.ProcessedAt = copyTime(&now)
	return r
}

func (s ExpirationState) clone() ExpirationState {
	c := s
	c.ExpiresAt = copyTime(s.ExpiresAt)
	c.WarningNotifiedAt = copyTime(s.WarningNotifiedAt)
	c.FinalNotifiedAt = copyTime(s.FinalNotifiedAt)
	c.ExpiredNotifiedAt = copyTime(s.ExpiredNotifiedAt)
	c.Renewal.RequestedAt = copyTime(s.Renewal.RequestedAt)
	c.Renewal.ProcessedAt = copyTime(s.Renewal.ProcessedAt)
	if c.Renewal.Status == "" {
		c.Renewal.Status = RenewalNone
	}
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
