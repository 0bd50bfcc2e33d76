// Package timepolicy is the single source of truth for the engine's temporal
// rules: when an obligation counts as overdue, when a failed charge is retried
// and when reminders go out. Both the access gate and the overdue sweeper
// consume the same policy so they can never disagree on "overdue".
package timepolicy

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultGracePeriodDays  = 7
	defaultReminderLeadDays = 3
)

// defaultRetryBackoffDays is the fixed backoff table for failed charges.
var defaultRetryBackoffDays = []int{1, 3, 7}

// Policy bundles the temporal constants. The zero value is not usable; build
// one with Default or FromEnv.
type Policy struct {
	GracePeriodDays  int
	RetryBackoffDays []int
	ReminderLeadDays int
}

// Default returns the stock policy: 7-day grace, [1,3,7]-day retry backoff,
// reminders 3 days ahead of the due date.
func Default() Policy {
	return Policy{
		GracePeriodDays:  defaultGracePeriodDays,
		RetryBackoffDays: defaultRetryBackoffDays,
		ReminderLeadDays: defaultReminderLeadDays,
	}
}

// FromEnv builds a policy from GRACE_PERIOD_DAYS and REMINDER_LEAD_DAYS,
// falling back to defaults for anything unset or unparsable.
func FromEnv() Policy {
	p := Default()
	if v := os.Getenv("GRACE_PERIOD_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days >= 0 {
			p.GracePeriodDays = days
		}
	}
	if v := os.Getenv("REMINDER_LEAD_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days >= 0 {
			p.ReminderLeadDays = days
		}
	}
	return p
}

// IsOverdue reports whether an obligation due on dueDate has exhausted its
// grace period at the instant now. The boundary is inclusive for the payer:
// exactly GracePeriodDays old is still within grace.
func (p Policy) IsOverdue(dueDate, now time.Time) bool {
	return dueDate.AddDate(0, 0, p.GracePeriodDays).Before(now)
}

// OverdueDays returns how many whole days past due an obligation is,
// ignoring the grace period. Zero if not past due.
func (p Policy) OverdueDays(dueDate, now time.Time) int {
	if !dueDate.Before(now) {
		return 0
	}
	return int(now.Sub(dueDate).Hours() / 24)
}

// NextRetryAt returns when a failed charge should be retried. retryCount is
// the number of retries already consumed; once it reaches the backoff table
// length there are no further retries and nil is returned.
func (p Policy) NextRetryAt(retryCount int, from time.Time) *time.Time {
	if retryCount < 0 || retryCount >= len(p.RetryBackoffDays) {
		return nil
	}
	t := from.AddDate(0, 0, p.RetryBackoffDays[retryCount])
	return &t
}

// MaxRetries returns the size of the backoff table.
func (p Policy) MaxRetries() int {
	return len(p.RetryBackoffDays)
}

// ReminderWindowEnd returns the far edge of the upcoming-payment reminder
// window at the instant now.
func (p Policy) ReminderWindowEnd(now time.Time) time.Time {
	return now.AddDate(0, 0, p.ReminderLeadDays)
}
