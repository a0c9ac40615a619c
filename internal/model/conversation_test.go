package model

import (
	"net/http"
	"testing"
)

func TestStatus_Valid(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{Scheduled, InProgress, Completed, Failed, Cancelled} {
		if !s.Valid() {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	if Status("pending").Valid() {
		t.Fatalf("expected unknown status to be invalid")
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	terminal := []Status{Completed, Failed, Cancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
	for _, s := range []Status{Scheduled, InProgress} {
		if s.IsTerminal() {
			t.Fatalf("expected %q not to be terminal", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to Status }{
		{Scheduled, InProgress},
		{Scheduled, Cancelled},
		{InProgress, Completed},
		{InProgress, Failed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %q -> %q to be allowed", tc.from, tc.to)
		}
	}

	// No transition is valid out of a terminal state.
	all := []Status{Scheduled, InProgress, Completed, Failed, Cancelled}
	for _, from := range []Status{Completed, Failed, Cancelled} {
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("expected terminal %q -> %q to be rejected", from, to)
			}
		}
	}

	if CanTransition(Scheduled, Completed) {
		t.Fatalf("expected scheduled -> completed to be rejected")
	}
	if CanTransition(InProgress, Cancelled) {
		t.Fatalf("expected in_progress -> cancelled to be rejected")
	}
}

func TestNormalizeMethod(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"", http.MethodPost},
		{"POST", http.MethodPost},
		{"GET", http.MethodGet},
		{"PUT", http.MethodPut},
		{"PATCH", http.MethodPatch},
		{"DELETE", http.MethodDelete},
		{"TRACE?", http.MethodPost},
		{"post", http.MethodPost}, // lowercase is unrecognized, defaults
	}
	for _, tc := range cases {
		if got := NormalizeMethod(tc.in); got != tc.want {
			t.Fatalf("NormalizeMethod(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
