package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRing_FIFOOrder(t *testing.T) {
	r := newTaskRing()
	a := &Task{Name: "a"}
	b := &Task{Name: "b"}
	c := &Task{Name: "c"}
	r.PushBack(a)
	r.PushBack(b)
	r.PushBack(c)

	got, ok := r.PopFront()
	require.True(t, ok)
	assert.Same(t, a, got)
	got, _ = r.PopFront()
	assert.Same(t, b, got)
	got, _ = r.PopFront()
	assert.Same(t, c, got)

	_, ok = r.PopFront()
	assert.False(t, ok)
}

func TestTaskRing_GrowsPastInitialCapacity(t *testing.T) {
	r := newTaskRing()
	tasks := make([]*Task, defaultRingCap*3)
	for i := range tasks {
		tasks[i] = &Task{Name: "t"}
		r.PushBack(tasks[i])
	}
	assert.Equal(t, len(tasks), r.Len())
	for _, want := range tasks {
		got, ok := r.PopFront()
		require.True(t, ok)
		assert.Same(t, want, got)
	}
}

func TestTaskRing_RemoveMidQueuePreservesOrder(t *testing.T) {
	r := newTaskRing()
	a, b, c := &Task{Name: "a"}, &Task{Name: "b"}, &Task{Name: "c"}
	r.PushBack(a)
	r.PushBack(b)
	r.PushBack(c)

	assert.True(t, r.Remove(b))
	assert.False(t, r.Remove(b), "removing an already-removed task must report false")

	got, _ := r.PopFront()
	assert.Same(t, a, got)
	got, _ = r.PopFront()
	assert.Same(t, c, got)
}
