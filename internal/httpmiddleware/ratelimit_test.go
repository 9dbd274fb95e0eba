package httpmiddleware

import (
	"context"
	"testing"
)

func TestSimpleTokenBucketExhaustion(t *testing.T) {
	ctx := context.Background()
	l := NewSimpleTokenBucket(3, 3)
	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "1.2.3.4") {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}
	if l.Allow(ctx, "1.2.3.4") {
		t.Fatalf("expected fourth request to be limited")
	}
	if !l.Allow(ctx, "5.6.7.8") {
		t.Fatalf("expected a different ip to be unaffected")
	}
}
