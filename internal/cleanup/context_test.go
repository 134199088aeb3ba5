package cleanup

import (
	"context"
	"testing"
)

func TestDoDetachesCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	Do(parent, func(ctx context.Context) {
		ran = true
		if err := ctx.Err(); err != nil {
			t.Errorf("detached context already done: %v", err)
		}
		if deadline, ok := ctx.Deadline(); !ok {
			t.Error("detached context has no deadline")
		} else if deadline.IsZero() {
			t.Error("detached context deadline is zero")
		}
	})
	if !ran {
		t.Fatal("Do did not run the function")
	}
}
