// Package agent holds the agent platform's core model: the persistent
// agent record and its lifecycle state machine.
package agent

import (
	"time"

	"stocksim/internal/domain"
)

// Status is an agent's lifecycle state.
type Status string

const (
	StatusCreated Status = "CREATED" // created but never started
	StatusRunning Status = "RUNNING" // ticking against the exchange
	StatusPaused  Status = "PAUSED"  // temporarily stopped, resumable
	StatusStopped Status = "STOPPED" // stopped by the operator
	StatusError   Status = "ERROR"   // auto-stopped after repeated tick failures
)

// MaxConsecutiveErrors is the error budget: this many failed ticks in a
// row trip the agent into ERROR.
const MaxConsecutiveErrors = 10

// transitions lists the legal operator-driven status changes. The
// RUNNING→ERROR edge is runtime-internal and not listed here.
var transitions = map[Status][]Status{
	StatusCreated: {StatusRunning},
	StatusRunning: {StatusPaused, StatusStopped},
	StatusPaused:  {StatusRunning, StatusStopped},
	StatusStopped: {StatusRunning},
	StatusError:   {StatusRunning}, // operator restart after fixing last_error
}

// CanTransition reports whether an operator may move an agent from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Agent is the persistent configuration and bookkeeping of one
// autonomous trading agent.
type Agent struct {
	ID             string `gorm:"primaryKey"`
	Name           string `gorm:"not null"`
	Description    string
	ExchangeURL    string `gorm:"not null"`
	APIKey         string `gorm:"not null"`
	StrategyType   string `gorm:"not null"`
	StrategyParams string // JSON object, empty for DSL strategies
	StrategySource string // YAML source for DSL strategies
	IntervalSecs   float64
	Status         Status `gorm:"index;not null"`
	CreatedAt      time.Time
	StartedAt      *time.Time
	StoppedAt      *time.Time
	LastError      string
	ErrorCount     int   // consecutive failed ticks
	TotalTicks     int64
	TotalTrades    int64
}

// Interval returns the tick interval as a duration, floored at 1s so a
// misconfigured agent cannot spin.
func (a *Agent) Interval() time.Duration {
	if a.IntervalSecs < 1 {
		return time.Second
	}
	return time.Duration(a.IntervalSecs * float64(time.Second))
}

// Validate checks the fields an operator controls.
func (a *Agent) Validate() error {
	if a.Name == "" {
		return domain.Validationf("name is required")
	}
	if a.ExchangeURL == "" {
		return domain.Validationf("exchange_url is required")
	}
	if a.APIKey == "" {
		return domain.Validationf("api_key is required")
	}
	if a.StrategyType == "" {
		return domain.Validationf("strategy_type is required")
	}
	if a.IntervalSecs <= 0 {
		return domain.Validationf("interval_seconds must be positive")
	}
	return nil
}
