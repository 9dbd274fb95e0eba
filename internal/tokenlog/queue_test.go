package tokenlog

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryQueueRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	want := Entry{Token: "abc", Device: "android", IP: "10.0.0.1"}
	if err := q.Publish(ctx, want); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume error: %v", err)
	}
	select {
	case got := <-ch:
		if got.Token != want.Token || got.Device != want.Device {
			t.Fatalf("unexpected entry: %+v", got)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for entry")
	}
}

func TestInMemoryQueuePublishHonorsCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := q.Publish(ctx, Entry{Token: "a"}); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	cancel()
	if err := q.Publish(ctx, Entry{Token: "b"}); err == nil {
		t.Fatalf("expected publish on full queue with cancelled context to fail")
	}
}
