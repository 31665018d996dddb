package models

import (
	"testing"
	"time"
)

func TestComputeStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		age  time.Duration
		want NodeStatus
	}{
		{"fresh reading", time.Minute, StatusOnline},
		{"just under online window", 10*time.Minute - time.Second, StatusOnline},
		{"exactly at online boundary", 10 * time.Minute, StatusWarning},
		{"mid warning window", 30 * time.Minute, StatusWarning},
		{"just under warning boundary", 60*time.Minute - time.Second, StatusWarning},
		{"exactly at warning boundary", 60 * time.Minute, StatusOffline},
		{"long gone", 24 * time.Hour, StatusOffline},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ComputeStatus(now.Add(-tc.age), now, DefaultOnlineWindow, DefaultWarningWindow)
			if got != tc.want {
				t.Fatalf("age %v: expected %s, got %s", tc.age, tc.want, got)
			}
		})
	}
}

func TestComputeStatusNeverSeen(t *testing.T) {
	t.Parallel()

	got := ComputeStatus(time.Time{}, time.Now(), DefaultOnlineWindow, DefaultWarningWindow)
	if got != StatusOffline {
		t.Fatalf("expected offline for never-seen node, got %s", got)
	}
}
