package worker

import (
	"math"
	"time"

	"slotbook/internal/models"
)

// RetryPolicy is the exponential backoff applied to one kind of sync task.
type RetryPolicy struct {
	// MaxRetries counts attempts, the first one included.
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries <= 0 {
		r.MaxRetries = 5
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = 2 * time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = time.Minute
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}
	return r
}

// NextDelay returns the wait before the given attempt (1-based), capped at
// MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// RetryDecision says what happens to a task after a failed attempt.
type RetryDecision struct {
	Attempt    int
	DeadLetter bool
	// RetryAt is zero when DeadLetter is set.
	RetryAt time.Time
}

// Decide looks at how often task has already been retried. Once the attempt
// budget is spent the task goes to the dead letter list.
func (r RetryPolicy) Decide(task *models.SyncTask, now time.Time) RetryDecision {
	attempt := task.RetryCount + 1
	if attempt >= r.MaxRetries {
		return RetryDecision{Attempt: attempt, DeadLetter: true}
	}
	return RetryDecision{Attempt: attempt, RetryAt: now.Add(r.NextDelay(attempt))}
}

// RetryPolicies picks the policy of a task type. Types without an entry use
// Default.
type RetryPolicies struct {
	Default    RetryPolicy
	ByTaskType map[string]RetryPolicy
}

func (p RetryPolicies) For(taskType string) RetryPolicy {
	if policy, ok := p.ByTaskType[taskType]; ok {
		return policy
	}
	return p.Default
}
