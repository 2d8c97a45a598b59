package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowDefaultsToRealTime(t *testing.T) {
	c := New()
	before := time.Now()
	now := c.Now()
	after := time.Now()
	require.False(t, now.Before(before))
	require.False(t, now.After(after))
}

func TestSetPinsNow(t *testing.T) {
	c := New()
	pinned := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(pinned)
	require.True(t, c.Now().Equal(pinned))
}

func TestUntilFloorsAtZero(t *testing.T) {
	c := New()
	c.Set(time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC))
	deadline := uint64(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	require.Equal(t, time.Duration(0), c.Until(deadline))
}

func TestUntilReturnsRemainingDuration(t *testing.T) {
	c := New()
	c.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	deadline := uint64(time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC).Unix())
	require.Equal(t, 30*time.Second, c.Until(deadline))
}
