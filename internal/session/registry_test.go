package session

import (
	"testing"
	"time"
)

func TestExpiredBoundary(t *testing.T) {
	deadline := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: deadline}

	if s.Expired(deadline.Add(-time.Second)) {
		t.Fatalf("expected session to be live one second before the deadline")
	}
	if s.Expired(deadline) {
		t.Fatalf("expected session to be live exactly at the deadline")
	}
	if !s.Expired(deadline.Add(time.Second)) {
		t.Fatalf("expected session to be expired one second past the deadline")
	}
}

func TestComputeExpiry(t *testing.T) {
	end := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	got := ComputeExpiry(end, 120)
	want := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
