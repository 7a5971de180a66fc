package call

import "testing"

func TestTerminalStatuses(t *testing.T) {
	terminal := []Status{StatusEnded, StatusRejected, StatusMissed, StatusFailed, StatusBusy}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	live := []Status{StatusInitiating, StatusRinging, StatusAnswered}
	for _, s := range live {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusInitiating, StatusRinging, true},
		{StatusInitiating, StatusMissed, true},
		{StatusInitiating, StatusRejected, true},
		{StatusInitiating, StatusFailed, true},
		{StatusInitiating, StatusEnded, true},
		{StatusInitiating, StatusAnswered, false},
		{StatusInitiating, StatusBusy, false},

		{StatusRinging, StatusAnswered, true},
		{StatusRinging, StatusRejected, true},
		{StatusRinging, StatusMissed, true},
		{StatusRinging, StatusEnded, true},
		{StatusRinging, StatusFailed, true},
		{StatusRinging, StatusBusy, false},
		{StatusRinging, StatusInitiating, false},

		{StatusAnswered, StatusEnded, true},
		{StatusAnswered, StatusFailed, true},
		{StatusAnswered, StatusBusy, true},
		{StatusAnswered, StatusMissed, false},
		{StatusAnswered, StatusRejected, false},

		{StatusEnded, StatusFailed, false},
		{StatusRejected, StatusEnded, false},
		{StatusMissed, StatusRinging, false},
		{StatusBusy, StatusEnded, false},
		{StatusFailed, StatusEnded, false},
	}
	for _, c := range cases {
		if got := c.from.canTransitionTo(c.to); got != c.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", c.from, c.to, c.ok, got)
		}
	}
}

func TestParseType(t *testing.T) {
	if _, ok := ParseType("AUDIO"); !ok {
		t.Fatalf("AUDIO should parse")
	}
	if _, ok := ParseType("VIDEO"); !ok {
		t.Fatalf("VIDEO should parse")
	}
	if _, ok := ParseType("audio"); ok {
		t.Fatalf("lowercase should not parse")
	}
	if _, ok := ParseType(""); ok {
		t.Fatalf("empty should not parse")
	}
}
