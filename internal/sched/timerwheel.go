package sched

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// tickOrder is an ascending, duplicate-free buffer of tick values,
// grounded on catrate/ring.go's ringBuffer[E constraints.Ordered]
// sorted-insert technique (there used to keep a category's recent
// event timestamps in order; here to keep pending timeout deadlines
// in order so the soonest is always at index 0). Left generic, as the
// teacher's version is, even though the scheduler only ever
// instantiates it with uint64 ticks.
type tickOrder[E constraints.Ordered] struct {
	vals []E
}

func (t *tickOrder[E]) search(v E) int {
	return sort.Search(len(t.vals), func(i int) bool { return t.vals[i] >= v })
}

// insert adds v if not already tracked, keeping vals sorted ascending.
func (t *tickOrder[E]) insert(v E) {
	i := t.search(v)
	if i < len(t.vals) && t.vals[i] == v {
		return
	}
	var zero E
	t.vals = append(t.vals, zero)
	copy(t.vals[i+1:], t.vals[i:len(t.vals)-1])
	t.vals[i] = v
}

// popDue removes and returns every tracked value <= threshold, in
// ascending order.
func (t *tickOrder[E]) popDue(threshold E) []E {
	i := sort.Search(len(t.vals), func(i int) bool { return t.vals[i] > threshold })
	if i == 0 {
		return nil
	}
	due := append([]E(nil), t.vals[:i]...)
	t.vals = t.vals[i:]
	return due
}

// timerWheel maps deadline ticks to the tasks waiting on them, per
// spec.md §6's RECV TIMEOUT flag. It is this package's analogue of a
// kernel timer wheel, sized for however many distinct deadlines are
// outstanding rather than a fixed bucket count, since this core has no
// real hardware timer granularity to bucket against.
type timerWheel struct {
	order      tickOrder[uint64]
	waiting    map[uint64][]TaskID
	deadlineOf map[TaskID]uint64
}

func newTimerWheel() *timerWheel {
	return &timerWheel{
		waiting:    make(map[uint64][]TaskID),
		deadlineOf: make(map[TaskID]uint64),
	}
}

func (w *timerWheel) arm(deadline uint64, id TaskID) {
	w.order.insert(deadline)
	w.waiting[deadline] = append(w.waiting[deadline], id)
	w.deadlineOf[id] = deadline
}

// cancel disarms id's deadline, if it still has one outstanding. A
// task whose message arrived before its ReceiveTimeout deadline calls
// this so the stale deadline doesn't later produce a no-op wake.
func (w *timerWheel) cancel(id TaskID) {
	deadline, ok := w.deadlineOf[id]
	if !ok {
		return
	}
	delete(w.deadlineOf, id)
	list := w.waiting[deadline]
	for i, t := range list {
		if t == id {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(w.waiting, deadline)
	} else {
		w.waiting[deadline] = list
	}
}

// due removes and returns every task whose deadline is at or before now.
func (w *timerWheel) due(now uint64) []TaskID {
	ticks := w.order.popDue(now)
	if len(ticks) == 0 {
		return nil
	}
	var ids []TaskID
	for _, tk := range ticks {
		for _, id := range w.waiting[tk] {
			ids = append(ids, id)
			delete(w.deadlineOf, id)
		}
		delete(w.waiting, tk)
	}
	return ids
}
