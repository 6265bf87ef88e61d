package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockTable(t *testing.T) {
	lt := newLockTable()
	require.Equal(t, PhaseIdle, lt.phase("a"))

	release, ok := lt.tryAcquire("a")
	require.True(t, ok)
	lt.setPhase("a", PhaseDispatching)
	require.Equal(t, PhaseDispatching, lt.phase("a"))

	_, ok = lt.tryAcquire("a")
	require.False(t, ok)

	releaseB, ok := lt.tryAcquire("b")
	require.True(t, ok)
	releaseB()

	release()
	release()
	require.Equal(t, PhaseIdle, lt.phase("a"))

	release, ok = lt.tryAcquire("a")
	require.True(t, ok)
	release()
}

func TestLockTable_ForgetOnlyIdle(t *testing.T) {
	lt := newLockTable()
	release, ok := lt.tryAcquire("a")
	require.True(t, ok)

	lt.forget("a")
	_, ok = lt.tryAcquire("a")
	require.False(t, ok)
	require.Equal(t, 1, lt.len())

	release()
	require.Equal(t, 0, lt.len())
	lt.forget("a")
	release, ok = lt.tryAcquire("a")
	require.True(t, ok)
	release()
}

func TestLockTable_ForgetIdleSlot(t *testing.T) {
	lt := newLockTable()
	release, ok := lt.tryAcquire("a")
	require.True(t, ok)
	release()
	require.Equal(t, 1, lt.len())

	lt.forget("a")
	require.Equal(t, 0, lt.len())
	lt.forget("missing")
}
