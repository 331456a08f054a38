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

// Package dispatcher implements the virtual clock of the simulator: a single-threaded event loop
// that runs scheduled callbacks in nondecreasing timestamp order, and cancelable one-shot timers
// on top of it.
package dispatcher

import (
	. "github.com/uwsn/uansim/types"
)

// Scheduler is the clock service used by the radio medium, the phys and the MAC engines.
type Scheduler interface {
	// Now returns the current simulation time in us.
	Now() uint64
	// Schedule runs fn after delay us. Events with equal timestamps run in scheduling order.
	Schedule(delay uint64, name string, fn func()) *Event
	// Cancel removes a pending event. Returns false if the event was not pending.
	Cancel(e *Event) bool
}

type Stats struct {
	NumScheduled uint64
	NumExecuted  uint64
	NumCanceled  uint64
}

type Dispatcher struct {
	CurTime uint64

	q     *eventQueue
	seq   uint64
	stats Stats
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		q: newEventQueue(),
	}
}

func (d *Dispatcher) Now() uint64 {
	return d.CurTime
}

func (d *Dispatcher) Schedule(delay uint64, name string, fn func()) *Event {
	ts := d.CurTime + delay
	if delay == Ever || ts < d.CurTime {
		ts = Ever
	}
	return d.ScheduleAt(ts, name, fn)
}

// ScheduleAt runs fn at the absolute timestamp ts; timestamps in the past are moved to now.
func (d *Dispatcher) ScheduleAt(ts uint64, name string, fn func()) *Event {
	if ts < d.CurTime {
		ts = d.CurTime
	}
	d.seq++
	e := &Event{
		Timestamp: ts,
		Name:      name,
		seq:       d.seq,
		fn:        fn,
		index:     -1,
	}
	d.q.add(e)
	d.stats.NumScheduled++
	return e
}

func (d *Dispatcher) Cancel(e *Event) bool {
	if !e.IsPending() {
		return false
	}
	d.q.remove(e)
	e.index = -1
	d.stats.NumCanceled++
	return true
}

// NextTimestamp returns the timestamp of the next pending event, or Ever.
func (d *Dispatcher) NextTimestamp() uint64 {
	return d.q.nextTimestamp()
}

// PendingEvents returns the number of events waiting in the queue.
func (d *Dispatcher) PendingEvents() int {
	return d.q.Len()
}

func (d *Dispatcher) Stats() Stats {
	return d.stats
}

// Step executes the next pending event. Returns false if there was none.
func (d *Dispatcher) Step() bool {
	e := d.q.nextEvent()
	if e == nil || e.Timestamp == Ever {
		return false
	}
	d.q.popNext()
	d.CurTime = e.Timestamp
	d.stats.NumExecuted++
	e.fn()
	return true
}

// RunUntil executes all events with a timestamp up to and including ts, then advances the clock
// to ts. Returns the number of events executed.
func (d *Dispatcher) RunUntil(ts uint64) int {
	n := 0
	for d.q.nextTimestamp() <= ts && d.q.nextTimestamp() != Ever {
		d.Step()
		n++
	}
	if ts != Ever && ts > d.CurTime {
		d.CurTime = ts
	}
	return n
}

// Go advances the simulation by duration us.
func (d *Dispatcher) Go(duration uint64) int {
	end := d.CurTime + duration
	if duration == Ever || end < d.CurTime {
		end = Ever
	}
	return d.RunUntil(end)
}
