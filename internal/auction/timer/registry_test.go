package timer_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/bazaarhq/bazaar/internal/auction/timer"
)

func waitFired(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case key := <-ch:
		return key
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
		return ""
	}
}

func requireQuiet(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case key := <-ch:
		t.Fatalf("unexpected callback fired for key %q", key)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetFiresAfterDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := timer.New(clock)

	fired := make(chan string, 1)
	reg.Set("a", time.Minute, func() { fired <- "a" })
	require.Equal(t, 1, reg.Len())

	clock.BlockUntil(1)
	clock.Advance(time.Minute)

	require.Equal(t, "a", waitFired(t, fired))
	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSetReplacesExistingKey(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := timer.New(clock)

	fired := make(chan string, 2)
	reg.Set("a", time.Minute, func() { fired <- "first" })
	clock.BlockUntil(1)
	reg.Set("a", 2*time.Minute, func() { fired <- "second" })
	require.Equal(t, 1, reg.Len())

	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	requireQuiet(t, fired)

	clock.Advance(time.Minute)
	require.Equal(t, "second", waitFired(t, fired))
}

func TestClearCancelsPendingTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := timer.New(clock)

	fired := make(chan string, 1)
	reg.Set("a", time.Minute, func() { fired <- "a" })
	clock.BlockUntil(1)
	reg.Clear("a")
	require.Equal(t, 0, reg.Len())

	clock.Advance(time.Hour)
	requireQuiet(t, fired)
}

func TestClearUnknownKeyIsNoop(t *testing.T) {
	reg := timer.New(clockwork.NewFakeClock())
	reg.Clear("missing")
	require.Equal(t, 0, reg.Len())
}

func TestNonPositiveDelayFiresImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := timer.New(clock)

	fired := make(chan string, 2)
	reg.Set("zero", 0, func() { fired <- "zero" })
	reg.Set("negative", -time.Minute, func() { fired <- "negative" })

	got := map[string]bool{}
	got[waitFired(t, fired)] = true
	got[waitFired(t, fired)] = true
	require.True(t, got["zero"])
	require.True(t, got["negative"])
	require.Equal(t, 0, reg.Len())
}

func TestCallbackPanicDoesNotBreakRegistry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := timer.New(clock)

	fired := make(chan string, 1)
	reg.Set("boom", time.Minute, func() {
		defer func() { fired <- "boom" }()
		panic("callback failure")
	})
	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	require.Equal(t, "boom", waitFired(t, fired))

	// The registry keeps scheduling after a panicking callback.
	reg.Set("after", time.Minute, func() { fired <- "after" })
	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	require.Equal(t, "after", waitFired(t, fired))
}

func TestCallbackMayReRegisterSameKey(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := timer.New(clock)

	fired := make(chan string, 2)
	reg.Set("a", time.Minute, func() {
		reg.Set("a", time.Minute, func() { fired <- "second" })
		fired <- "first"
	})

	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	require.Equal(t, "first", waitFired(t, fired))

	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	require.Equal(t, "second", waitFired(t, fired))
}

func TestIndependentKeys(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := timer.New(clock)

	fired := make(chan string, 2)
	reg.Set("a", time.Minute, func() { fired <- "a" })
	reg.Set("b", 2*time.Minute, func() { fired <- "b" })
	require.Equal(t, 2, reg.Len())

	clock.BlockUntil(2)
	clock.Advance(time.Minute)
	require.Equal(t, "a", waitFired(t, fired))
	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 10*time.Millisecond)

	clock.Advance(time.Minute)
	require.Equal(t, "b", waitFired(t, fired))
}
