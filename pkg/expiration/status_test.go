package expiration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := testNow.Add(d)
	return &t
}

func TestStatusAt(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt *time.Time
		want      Status
	}{
		{"no expiration", nil, StatusNoExpiration},
		{"far future", at(30 * 24 * time.Hour), StatusActive},
		{"just outside window", at(ExpiringSoonWindow + time.Second), StatusActive},
		{"window boundary", at(ExpiringSoonWindow), StatusExpiringSoon},
		{"five days", at(5 * 24 * time.Hour), StatusExpiringSoon},
		{"exactly now", at(0), StatusExpired},
		{"yesterday", at(-24 * time.Hour), StatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusAt(tt.expiresAt, testNow))
		})
	}
}

func TestDaysUntil(t *testing.T) {
	assert.Nil(t, DaysUntil(nil, testNow))

	tests := []struct {
		in   time.Duration
		want int
	}{
		{5 * 24 * time.Hour, 5},
		{4*24*time.Hour + time.Minute, 5},
		{time.Hour, 1},
		{0, 0},
		{-time.Hour, 0},
		{-25 * time.Hour, -1},
	}
	for _, tt := range tests {
		got := DaysUntil(at(tt.in), testNow)
		require.NotNil(t, got)
		assert.Equal(t, tt.want, *got, "remaining %s", tt.in)
	}
}

func TestStatusMonotonic(t *testing.T) {
	expiresAt := at(10 * 24 * time.Hour)
	rank := map[Status]int{StatusActive: 0, StatusExpiringSoon: 1, StatusExpired: 2}

	prev := -1
	for h := 0; h <= 12*24; h += 6 {
		now := testNow.Add(time.Duration(h) * time.Hour)
		r := rank[StatusAt(expiresAt, now)]
		assert.GreaterOrEqual(t, r, prev, "status regressed at +%dh", h)
		prev = r
	}
	assert.Equal(t, 2, prev)
}

func TestClassify(t *testing.T) {
	stamped := testNow.Add(-time.Hour)

	tests := []struct {
		name   string
		state  model.ExpirationState
		want   model.NotificationKind
		wantOK bool
	}{
		{"no expiration", model.NewExpirationState(nil), "", false},
		{"outside window", model.NewExpirationState(at(8 * 24 * time.Hour)), "", false},
		{"warning due", model.NewExpirationState(at(5 * 24 * time.Hour)), model.NotificationWarning, true},
		{"final due", model.NewExpirationState(at(12 * time.Hour)), model.NotificationFinal, true},
		{"expired due", model.NewExpirationState(at(-time.Hour)), model.NotificationExpired, true},
		{
			"warning already sent",
			model.ExpirationState{ExpiresAt: at(5 * 24 * time.Hour), WarningNotifiedAt: &stamped},
			"", false,
		},
		{
			"final due after warning",
			model.ExpirationState{ExpiresAt: at(12 * time.Hour), WarningNotifiedAt: &stamped},
			model.NotificationFinal, true,
		},
		{
			"expired and final sent, warning pending",
			model.ExpirationState{ExpiresAt: at(-time.Hour), ExpiredNotifiedAt: &stamped, FinalNotifiedAt: &stamped},
			model.NotificationWarning, true,
		},
		{
			"every kind sent",
			model.ExpirationState{
				ExpiresAt:         at(-time.Hour),
				WarningNotifiedAt: &stamped,
				FinalNotifiedAt:   &stamped,
				ExpiredNotifiedAt: &stamped,
			},
			"", false,
		},
		{
			"expired takes priority over unsent final",
			model.ExpirationState{ExpiresAt: at(-time.Hour), FinalNotifiedAt: &stamped},
			model.NotificationExpired, true,
		},
		{
			"final sent falls back to unsent warning",
			model.ExpirationState{ExpiresAt: at(12 * time.Hour), FinalNotifiedAt: &stamped},
			model.NotificationWarning, true,
		},
		{
			"expired sent falls back to unsent final",
			model.ExpirationState{ExpiresAt: at(-time.Hour), ExpiredNotifiedAt: &stamped},
			model.NotificationFinal, true,
		},
		{
			"final and warning sent inside final window",
			model.ExpirationState{ExpiresAt: at(12 * time.Hour), FinalNotifiedAt: &stamped, WarningNotifiedAt: &stamped},
			"", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := Classify(tt.state, testNow)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestDueNotifications(t *testing.T) {
	memberships := []*model.ProjectMembership{
		{UserID: "a", Expiration: model.NewExpirationState(at(3 * 24 * time.Hour))},
		nil,
		{UserID: "b", Expiration: model.NewExpirationState(nil)},
		{UserID: "c", Expiration: model.NewExpirationState(at(-48 * time.Hour))},
	}

	due := DueNotifications(memberships, testNow)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].Membership.UserID)
	assert.Equal(t, model.NotificationWarning, due[0].Kind)
	assert.Equal(t, 3, due[0].DaysUntil)
	assert.Equal(t, "c", due[1].Membership.UserID)
	assert.Equal(t, model.NotificationExpired, due[1].Kind)
	assert.Equal(t, -2, due[1].DaysUntil)
}
