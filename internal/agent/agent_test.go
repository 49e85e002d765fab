package agent

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusCreated, StatusRunning},
		{StatusRunning, StatusPaused},
		{StatusRunning, StatusStopped},
		{StatusPaused, StatusRunning},
		{StatusPaused, StatusStopped},
		{StatusStopped, StatusRunning},
		{StatusError, StatusRunning},
	}
	for _, c := range allowed {
		if !CanTransition(c.from, c.to) {
			t.Errorf("%s → %s should be allowed", c.from, c.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusCreated, StatusPaused},
		{StatusCreated, StatusStopped},
		{StatusRunning, StatusRunning},
		{StatusStopped, StatusPaused},
		{StatusError, StatusPaused},
		{StatusError, StatusStopped},
	}
	for _, c := range denied {
		if CanTransition(c.from, c.to) {
			t.Errorf("%s → %s should be denied", c.from, c.to)
		}
	}
}

func TestInterval_Floor(t *testing.T) {
	a := Agent{IntervalSecs: 0.1}
	if got := a.Interval(); got != time.Second {
		t.Errorf("sub-second intervals floor to 1s, got %v", got)
	}
	a.IntervalSecs = 2.5
	if got := a.Interval(); got != 2500*time.Millisecond {
		t.Errorf("interval = %v, want 2.5s", got)
	}
}

func TestValidate(t *testing.T) {
	valid := Agent{
		Name:         "bot",
		ExchangeURL:  "http://localhost:8000",
		APIKey:       "sk_x",
		StrategyType: "random",
		IntervalSecs: 5,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	broken := valid
	broken.Name = ""
	if err := broken.Validate(); err == nil {
		t.Error("missing name should fail validation")
	}

	broken = valid
	broken.IntervalSecs = 0
	if err := broken.Validate(); err == nil {
		t.Error("zero interval should fail validation")
	}
}
