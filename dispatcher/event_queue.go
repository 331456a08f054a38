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
	"container/heap"

	"github.com/uwsn/uansim/logger"
	. "github.com/uwsn/uansim/types"
)

// Event is a callback scheduled at a simulation timestamp.
type Event struct {
	Timestamp uint64
	Name      string

	seq   uint64
	fn    func()
	index int
}

// IsPending returns true while the event is still waiting in the queue.
func (e *Event) IsPending() bool {
	return e != nil && e.index >= 0
}

// eventQueue orders events by timestamp; events with equal timestamps run in scheduling order.
type eventQueue []*Event

func (eq eventQueue) Len() int {
	return len(eq)
}

func (eq eventQueue) Less(i, j int) bool {
	if eq[i].Timestamp != eq[j].Timestamp {
		return eq[i].Timestamp < eq[j].Timestamp
	}
	return eq[i].seq < eq[j].seq
}

func (eq eventQueue) Swap(i, j int) {
	a, b := eq[i], eq[j]
	if a.index != i || b.index != j {
		logger.Panicf("wrong index")
	}

	eq[i], eq[j] = b, a             // swap the elements
	eq[i].index, eq[j].index = i, j // fix the indexes
}

func (eq *eventQueue) Push(x interface{}) {
	e := x.(*Event)
	*eq = append(*eq, e)
	e.index = len(*eq) - 1
}

func (eq *eventQueue) Pop() (elem interface{}) {
	eqlen := len(*eq)
	e := (*eq)[eqlen-1]
	(*eq)[eqlen-1] = nil
	*eq = (*eq)[:eqlen-1]
	e.index = -1
	return e
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	heap.Init(q)
	return q
}

func (eq *eventQueue) add(e *Event) {
	heap.Push(eq, e)
}

func (eq *eventQueue) remove(e *Event) {
	heap.Remove(eq, e.index)
}

func (eq *eventQueue) popNext() *Event {
	return heap.Pop(eq).(*Event)
}

func (eq *eventQueue) nextEvent() *Event {
	if len(*eq) == 0 {
		return nil
	}
	return (*eq)[0]
}

func (eq *eventQueue) nextTimestamp() uint64 {
	if len(*eq) == 0 {
		return Ever
	}
	return (*eq)[0].Timestamp
}
