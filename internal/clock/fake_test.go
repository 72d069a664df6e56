package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFuncOrder(t *testing.T) {
	c := NewFake(epoch)
	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(5*time.Second, func() { fired = append(fired, "c") })

	c.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, epoch.Add(3*time.Second), c.Now())
	assert.Equal(t, 1, c.Pending())
}

func TestFakeChainedCallbacksUseDeadline(t *testing.T) {
	c := NewFake(epoch)
	var at []time.Time
	c.AfterFunc(time.Second, func() {
		at = append(at, c.Now())
		c.AfterFunc(time.Second, func() { at = append(at, c.Now()) })
	})
	c.Advance(10 * time.Second)
	require.Len(t, at, 2)
	assert.Equal(t, epoch.Add(time.Second), at[0])
	assert.Equal(t, epoch.Add(2*time.Second), at[1])
}

func TestFakeTimerStopAndReset(t *testing.T) {
	c := NewFake(epoch)
	n := 0
	tm := c.AfterFunc(time.Second, func() { n++ })
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	c.Advance(2 * time.Second)
	assert.Equal(t, 0, n)

	tm.Reset(time.Second)
	c.Advance(time.Second)
	assert.Equal(t, 1, n)
}

func TestFakeImmediateAfterFunc(t *testing.T) {
	c := NewFake(epoch)
	n := 0
	c.AfterFunc(0, func() { n++ })
	assert.Equal(t, 1, n)
}

func TestFakeTicker(t *testing.T) {
	c := NewFake(epoch)
	tk := c.NewTicker(time.Second)
	defer tk.Stop()
	c.Advance(time.Second)
	select {
	case got := <-tk.C:
		assert.Equal(t, epoch.Add(time.Second), got)
	default:
		t.Fatalf("ticker did not fire")
	}
	assert.Equal(t, 1, c.Pending())
}

func TestFakeAfter(t *testing.T) {
	c := NewFake(epoch)
	ch := c.After(time.Minute)
	c.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatalf("fired early")
	default:
	}
	c.Advance(30 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatalf("did not fire")
	}
}
