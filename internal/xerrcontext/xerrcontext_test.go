package xerrcontext

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/clock/fakeclock"
)

func isDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func waitDone(ctx context.Context) bool {
	const timeout = 10 * time.Second
	tm := time.NewTimer(timeout)
	defer tm.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-tm.C:
		return false
	}
}

func useFakeClock() (fclk *fakeclock.FakeClock, restore func()) {
	fclk = fakeclock.NewFakeClock(time.Unix(0, 0))
	clk = fclk
	restore = func() { clk = clock.NewClock() }
	return fclk, restore
}

func TestWithCancel(t *testing.T) {
	ctx, cancel := WithCancel(context.Background())
	defer cancel(context.Canceled)

	if isDone(ctx) {
		t.Error("On init: Done is already signaled")
	}
	if err := ctx.Err(); err != nil {
		t.Errorf("On init: Err is already set: %v", err)
	}

	wantErr := errors.New("custom error")
	cancel(wantErr)

	if !isDone(ctx) {
		t.Error("After cancel: Done is not signaled")
	}
	if err := ctx.Err(); err != wantErr {
		t.Errorf("After cancel: Err = %v; want %v", err, wantErr)
	}

	// A second cancel is ignored.
	cancel(errors.New("another error"))
	if err := ctx.Err(); err != wantErr {
		t.Errorf("After second cancel: Err = %v; want %v", err, wantErr)
	}
}

func TestWithCancel_Propagate(t *testing.T) {
	ctx1, cancel1 := WithCancel(context.Background())
	defer cancel1(context.Canceled)

	ctx2, cancel2 := WithCancel(ctx1)
	defer cancel2(context.Canceled)

	wantErr := errors.New("parent canceled")
	cancel1(wantErr)

	if !waitDone(ctx2) {
		t.Fatal("child not canceled after parent cancel")
	}
	if err := ctx2.Err(); err != wantErr {
		t.Errorf("child Err = %v; want %v", err, wantErr)
	}
}

func TestWithCancel_NilPanics(t *testing.T) {
	_, cancel := WithCancel(context.Background())
	defer cancel(context.Canceled)

	defer func() {
		if recover() == nil {
			t.Error("cancel(nil) did not panic")
		}
	}()
	cancel(nil)
}

func TestWithDeadline(t *testing.T) {
	fclk, restore := useFakeClock()
	defer restore()

	dl := time.Unix(28, 0)
	wantErr := errors.New("deadline hit")
	ctx, cancel := WithDeadline(context.Background(), dl, wantErr)
	defer cancel(context.Canceled)

	if isDone(ctx) {
		t.Error("On init: Done already signaled")
	}

	fclk.WaitForNWatchersAndIncrement(28*time.Second, 1)

	if !waitDone(ctx) {
		t.Fatal("Done not signaled after deadline")
	}
	if err := ctx.Err(); err != wantErr {
		t.Errorf("Err = %v; want %v", err, wantErr)
	}
}

func TestWithTimeout(t *testing.T) {
	fclk, restore := useFakeClock()
	defer restore()

	wantErr := errors.New("timed out")
	ctx, cancel := WithTimeout(context.Background(), 5*time.Second, wantErr)
	defer cancel(context.Canceled)

	fclk.WaitForNWatchersAndIncrement(5*time.Second, 1)

	if !waitDone(ctx) {
		t.Fatal("Done not signaled after timeout")
	}
	if err := ctx.Err(); err != wantErr {
		t.Errorf("Err = %v; want %v", err, wantErr)
	}
}

func TestWithCancel_Value(t *testing.T) {
	type keyType string
	const key keyType = "foo"
	ctx, cancel := WithCancel(context.WithValue(context.Background(), key, "bar"))
	defer cancel(context.Canceled)

	if val := ctx.Value(key); val != "bar" {
		t.Errorf("Value(%q) = %v; want bar", key, val)
	}
}
