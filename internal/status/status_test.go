package status

import "testing"

func TestStepMonotonicDineIn(t *testing.T) {
	ladder := []Status{Pending, Confirmed, Preparing, ReadyForPickup, Delivered}
	prev := -1
	for _, s := range ladder {
		step := Step(s, FlowDineIn)
		if step <= prev {
			t.Fatalf("step(%s) = %d, not greater than %d", s, step, prev)
		}
		prev = step
	}
}

func TestStepPreOrderCollapsed(t *testing.T) {
	if Step(Confirmed, FlowPreOrder) != 0 {
		t.Fatalf("pre-order confirmed should be step 0")
	}
	if Step(Ready, FlowPreOrder) != 1 {
		t.Fatalf("pre-order ready should be step 1")
	}
	if Step(Delivered, FlowPreOrder) != 2 {
		t.Fatalf("pre-order delivered should be step 2")
	}
	if Step(Preparing, FlowPreOrder) != -1 {
		t.Fatalf("preparing is not part of the pre-order ladder")
	}
}

func TestNewerRejectsBackwardTransitions(t *testing.T) {
	if Newer(Preparing, Confirmed, FlowDineIn) {
		t.Fatalf("preparing -> confirmed is a backward transition")
	}
	if !Newer(Confirmed, Preparing, FlowDineIn) {
		t.Fatalf("confirmed -> preparing should be accepted")
	}
	if !Newer(Preparing, Cancelled, FlowDineIn) {
		t.Fatalf("terminal failure must be reachable from any non-terminal state")
	}
	if Newer(Delivered, Cancelled, FlowDineIn) {
		t.Fatalf("no transition may leave a terminal state")
	}
	if !Newer("", Pending, FlowDineIn) {
		t.Fatalf("first observation is always accepted")
	}
}

func TestTerminalAndCancelRules(t *testing.T) {
	for _, s := range []Status{Delivered, Rejected, Cancelled} {
		if !IsTerminal(s) {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{Pending, Confirmed} {
		if !CanUserCancel(s) {
			t.Fatalf("%s should be user-cancellable", s)
		}
	}
	for _, s := range []Status{Preparing, ReadyForPickup, Ready, Delivered, Rejected, Cancelled} {
		if CanUserCancel(s) {
			t.Fatalf("%s must not be user-cancellable", s)
		}
	}
}

func TestParseLabels(t *testing.T) {
	cases := map[string]Status{
		"  Pending ":  Pending,
		"ACCEPTED":    Confirmed,
		"cooking":     Preparing,
		"ready":       Ready,
		"canceled":    Cancelled,
		"served":      Delivered,
		"gibberish":   Pending,
		"ready-for-pickup": ReadyForPickup,
	}
	for label, want := range cases {
		if got := Parse(label); got != want {
			t.Fatalf("Parse(%q) = %s, want %s", label, got, want)
		}
	}
}

func TestDisplay(t *testing.T) {
	d := Display(Rejected, FlowDineIn)
	if !d.IsError || d.ProgressStep != -1 || d.Label != "Rejected" {
		t.Fatalf("unexpected rejected display: %+v", d)
	}
	d = Display(ReadyForPickup, FlowDineIn)
	if d.IsError || d.ProgressStep != 3 {
		t.Fatalf("unexpected ready_for_pickup display: %+v", d)
	}
}
