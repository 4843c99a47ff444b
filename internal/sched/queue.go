package sched

// taskRing is a FIFO circular buffer of *Task, one per priority class
// per CPU. The mask/doubling mechanics are lifted from the teacher's
// generic ringBuffer (catrate/ring.go): power-of-two capacity, index
// masking instead of modulo, grow-by-doubling on overflow. Round-robin
// dispatch only ever needs push-at-tail/pop-at-head, so the ordered
// Search/Insert half of the teacher's ring buffer (which exists there
// to support catrate's sliding time window) has no counterpart here.
type taskRing struct {
	s    []*Task
	r, w uint
}

const defaultRingCap = 16

func newTaskRing() *taskRing {
	return &taskRing{s: make([]*Task, defaultRingCap)}
}

func (x *taskRing) mask(v uint) uint { return v & (uint(len(x.s)) - 1) }

func (x *taskRing) Len() int { return int(x.w - x.r) }

func (x *taskRing) Empty() bool { return x.r == x.w }

// PushBack enqueues t at the tail, growing the buffer if full.
func (x *taskRing) PushBack(t *Task) {
	if x.Len() == len(x.s) {
		grown := make([]*Task, len(x.s)<<1)
		n := x.Len()
		for i := 0; i < n; i++ {
			grown[i] = x.s[x.mask(x.r+uint(i))]
		}
		x.s = grown
		x.r, x.w = 0, uint(n)
	}
	x.s[x.mask(x.w)] = t
	x.w++
}

// PopFront dequeues the head task, or returns (nil, false) if empty.
func (x *taskRing) PopFront() (*Task, bool) {
	if x.Empty() {
		return nil, false
	}
	i := x.mask(x.r)
	t := x.s[i]
	x.s[i] = nil
	x.r++
	return t, true
}

// Remove deletes t from anywhere in the ring, keeping the order of the
// rest. Returns true if t was found and removed.
func (x *taskRing) Remove(t *Task) bool {
	n := x.Len()
	rest := make([]*Task, 0, n)
	found := false
	for i := 0; i < n; i++ {
		cur := x.s[x.mask(x.r+uint(i))]
		if cur == t && !found {
			found = true
			continue
		}
		rest = append(rest, cur)
	}
	if !found {
		return false
	}
	for i, v := range x.s {
		x.s[i] = nil
		_ = v
	}
	x.r, x.w = 0, 0
	for _, v := range rest {
		x.PushBack(v)
	}
	return true
}
