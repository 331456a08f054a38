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

package mac

import (
	"github.com/uwsn/uansim/frame"
)

// sendQueue is the bounded FIFO of outbound DATA frames of an engine.
type sendQueue struct {
	frames   []*frame.Frame
	capacity int
}

func newSendQueue(capacity int) *sendQueue {
	return &sendQueue{
		frames:   make([]*frame.Frame, 0, capacity),
		capacity: capacity,
	}
}

func (q *sendQueue) Len() int {
	return len(q.frames)
}

func (q *sendQueue) IsEmpty() bool {
	return len(q.frames) == 0
}

func (q *sendQueue) IsFull() bool {
	return len(q.frames) >= q.capacity
}

// Push appends f. Returns false, leaving the queue unchanged, when the queue is full.
func (q *sendQueue) Push(f *frame.Frame) bool {
	if q.IsFull() {
		return false
	}
	q.frames = append(q.frames, f)
	return true
}

func (q *sendQueue) Front() *frame.Frame {
	if len(q.frames) == 0 {
		return nil
	}
	return q.frames[0]
}

func (q *sendQueue) Pop() *frame.Frame {
	if len(q.frames) == 0 {
		return nil
	}
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return f
}

func (q *sendQueue) Clear() {
	q.frames = q.frames[:0]
}
