package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickOrder_InsertKeepsAscendingOrderAndDedupes(t *testing.T) {
	var to tickOrder[uint64]
	to.insert(5)
	to.insert(1)
	to.insert(3)
	to.insert(3) // duplicate, must not double-count
	assert.Equal(t, []uint64{1, 3, 5}, to.vals)
}

func TestTickOrder_PopDueReturnsOnlyExpiredAscending(t *testing.T) {
	var to tickOrder[uint64]
	to.insert(10)
	to.insert(20)
	to.insert(30)

	due := to.popDue(20)
	assert.Equal(t, []uint64{10, 20}, due)
	assert.Equal(t, []uint64{30}, to.vals)
}

func TestTimerWheel_ArmAndDue(t *testing.T) {
	w := newTimerWheel()
	a := TaskID{ProcessID: 1, ThreadID: 1}
	b := TaskID{ProcessID: 1, ThreadID: 2}
	w.arm(5, a)
	w.arm(5, b)
	w.arm(10, b)

	require.Empty(t, w.due(4))
	due := w.due(5)
	assert.ElementsMatch(t, []TaskID{a, b}, due)
	assert.Equal(t, []TaskID{b}, w.due(10))
}

func TestScheduler_ArmTimeoutWakesWithOutcomeTimeout(t *testing.T) {
	s := NewScheduler(1, nil)
	a := NewTask(TaskID{ProcessID: 1, ThreadID: 1}, "a", Normal, 0, CPUSetOf(0))
	require.NoError(t, s.ScheduleThread(a))
	s.dispatchLocked(0)

	s.Block(0, StateReceiveBlocked, 0)
	deadline := s.ArmTimeout(a.ID, 3)
	assert.Equal(t, uint64(3), deadline)

	s.AdvanceClock(2)
	assert.Equal(t, StateReceiveBlocked, a.State(), "must still be blocked before its deadline")

	woken := s.AdvanceClock(3)
	assert.Equal(t, []TaskID{a.ID}, woken)
	assert.Equal(t, OutcomeTimeout, a.Wait.Outcome)
	assert.Equal(t, StateReady, a.State())
}
