// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package job runs a task with exponential backoff until the task reports that no work is
// left, then waits until it is triggered again.
package job

import (
	"context"
	"time"
)

// Job is a triggered retry loop. It never runs its task concurrently with itself.
type Job struct {
	initial time.Duration
	max     time.Duration
	task    func(context.Context) bool
	wake    chan struct{}
}

// New returns a Job that first runs task initial after a trigger and doubles the delay up to
// maxDelay while task returns false. A maxDelay below initial keeps the delay fixed.
func New(initial, maxDelay time.Duration, task func(context.Context) bool) *Job {
	if maxDelay < initial {
		maxDelay = initial
	}
	return &Job{
		initial: initial,
		max:     maxDelay,
		task:    task,
		wake:    make(chan struct{}, 1),
	}
}

// Trigger arms the job. It never blocks, triggers that arrive while the job is armed are
// coalesced.
func (j *Job) Trigger() {
	select {
	case j.wake <- struct{}{}:
	default:
	}
}

// Start runs triggered retry loops until ctx is done.
func (j *Job) Start(ctx context.Context) {
	if j.task == nil || j.initial <= 0 {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-j.wake:
			j.run(ctx)
		}
	}
}

func (j *Job) run(ctx context.Context) {
	delay := j.initial
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if j.task(ctx) {
			return
		}
		delay = min(delay*2, j.max)
		timer.Reset(delay)
	}
}
