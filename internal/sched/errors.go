package sched

import "errors"

// ErrUnknownTask is returned by Wake when given a task id the scheduler
// has never seen; spec.md §4.2 calls waking an unknown task "a bug
// (panic in debug, ignored in release)" — modeled here as a returned
// error so callers (and tests) choose whether to panic or ignore it,
// rather than a build tag deciding.
var ErrUnknownTask = errors.New("sched: unknown task id")

// ErrEmptyAffinity mirrors NewTask's panic for callers that build a
// Task through other means and hand it to ScheduleThread directly.
var ErrEmptyAffinity = errors.New("sched: task has empty cpu_affinity")
