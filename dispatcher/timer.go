// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package dispatcher

import (
	"github.com/pkg/errors"

	. "github.com/uwsn/uansim/types"
)

// ErrTimerPending is returned when scheduling a timer that is already pending.
var ErrTimerPending = errors.New("timer already pending")

type TimerState int

const (
	TimerUnset TimerState = iota
	TimerPending
	TimerFired
)

func (s TimerState) String() string {
	switch s {
	case TimerUnset:
		return "unset"
	case TimerPending:
		return "pending"
	case TimerFired:
		return "fired"
	default:
		return "invalid"
	}
}

// Timer is a named one-shot timer bound to a callback. It is in exactly one of the states unset,
// pending (with a deadline) or fired. Canceling a timer that is not pending does nothing.
type Timer struct {
	name     string
	sched    Scheduler
	fn       func()
	state    TimerState
	deadline uint64
	ev       *Event
}

func NewTimer(sched Scheduler, name string, fn func()) *Timer {
	return &Timer{
		name:     name,
		sched:    sched,
		fn:       fn,
		deadline: Ever,
	}
}

func (t *Timer) Name() string {
	return t.name
}

func (t *Timer) State() TimerState {
	return t.state
}

func (t *Timer) IsRunning() bool {
	return t.state == TimerPending
}

// Deadline returns the expiry timestamp of a pending timer, or Ever.
func (t *Timer) Deadline() uint64 {
	if t.state != TimerPending {
		return Ever
	}
	return t.deadline
}

// DelayLeft returns the time until expiry of a pending timer, or 0.
func (t *Timer) DelayLeft() uint64 {
	if t.state != TimerPending {
		return 0
	}
	now := t.sched.Now()
	if t.deadline <= now {
		return 0
	}
	return t.deadline - now
}

// Schedule arms the timer to fire after delay us.
func (t *Timer) Schedule(delay uint64) error {
	if t.state == TimerPending {
		return errors.Wrapf(ErrTimerPending, "timer %s", t.name)
	}
	t.state = TimerPending
	t.deadline = t.sched.Now() + delay
	t.ev = t.sched.Schedule(delay, t.name, t.expire)
	return nil
}

// Restart cancels the timer if pending and arms it again with the new delay.
func (t *Timer) Restart(delay uint64) {
	t.Cancel()
	_ = t.Schedule(delay)
}

// Extend makes sure the timer is pending for at least delay us from now. A pending timer with a
// later deadline is left untouched.
func (t *Timer) Extend(delay uint64) {
	if t.state == TimerPending && t.DelayLeft() >= delay {
		return
	}
	t.Restart(delay)
}

func (t *Timer) Cancel() {
	if t.state != TimerPending {
		return
	}
	t.sched.Cancel(t.ev)
	t.ev = nil
	t.state = TimerUnset
	t.deadline = Ever
}

func (t *Timer) expire() {
	t.ev = nil
	t.state = TimerFired
	t.deadline = Ever
	t.fn()
}
