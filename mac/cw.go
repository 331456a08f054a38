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
	"github.com/uwsn/uansim/dispatcher"
	"github.com/uwsn/uansim/frame"
	. "github.com/uwsn/uansim/types"
)

type cwState int

const (
	cwIdle cwState = iota
	cwChannelBusy
	cwTimerRunning
	cwTransmitting
)

var cwStateNames = [...]string{"IDLE", "CHANNEL_BUSY", "TIMER_RUNNING", "TRANSMITTING"}

func (s cwState) String() string {
	return cwStateNames[s]
}

// CW implements ALOHA with carrier sense and its contention-window variant. A frame finding the
// channel busy draws a backoff delay; the delay only runs down while the channel is idle, so the
// total wait does not depend on how often the channel toggled.
type CW struct {
	*base
	state cwState
	// remaining is the part of the drawn backoff delay that has not elapsed yet.
	remaining uint64
	// hasDelay is set while a drawn backoff delay is pending.
	hasDelay bool

	backoff *dispatcher.Timer
}

func newCW(b *base) *CW {
	e := &CW{base: b}
	e.backoff = b.newTimer("backoff", e.onBackoffEnd)
	b.h = e
	return e
}

func (e *CW) State() string {
	return e.state.String()
}

func (e *CW) enter(s cwState) {
	if s != e.state {
		e.log.Tracef("cw %s -> %s", e.state, s)
	}
	e.state = s
	if s == cwTimerRunning {
		e.cancelTimersExcept(e.backoff)
	} else {
		e.cancelTimersExcept()
	}
}

// drawDelay picks the backoff delay of the frame at the head of the queue.
func (e *CW) drawDelay() uint64 {
	slot := SecondsToUs(e.cfg.SlotTime)
	if e.cfg.Protocol == ProtocolAlohaCS {
		return uint64(e.cfg.CW) * slot
	}
	return uint64(e.rng.UniformInt(0, e.cfg.CW)) * slot
}

func (e *CW) onEnqueue() {
	e.tryStart()
}

func (e *CW) tryStart() {
	if e.state != cwIdle || e.queue.IsEmpty() {
		return
	}
	if e.carrier.isChannelBusy() || !e.carrier.isIdle() {
		if !e.hasDelay {
			e.remaining = e.drawDelay()
			e.hasDelay = true
			e.counters.Backoffs++
		}
		e.enter(cwChannelBusy)
		return
	}
	if e.hasDelay {
		e.runDelay()
		return
	}
	e.transmit()
}

func (e *CW) runDelay() {
	e.enter(cwTimerRunning)
	_ = e.backoff.Schedule(e.remaining)
}

func (e *CW) transmit() {
	e.hasDelay = false
	e.remaining = 0
	e.enter(cwTransmitting)
	if err := e.send(e.queue.Front()); err != nil {
		e.enter(cwIdle)
		e.remaining = e.drawDelay()
		e.hasDelay = true
		e.runDelay()
	}
}

func (e *CW) onBackoffEnd() {
	e.remaining = 0
	e.transmit()
}

func (e *CW) handlePhyState(busy bool) {
	switch {
	case busy && e.state == cwTimerRunning:
		e.remaining = e.backoff.DelayLeft()
		e.enter(cwChannelBusy)
	case !busy && e.state == cwChannelBusy:
		e.runDelay()
	}
}

func (e *CW) handleTxEnd(f *frame.Frame) {
	if e.state != cwTransmitting || f.Header.Type != frame.TypeData {
		return
	}
	e.queue.Pop()
	e.enter(cwIdle)
	e.tryStart()
}

func (e *CW) handleFrame(f *frame.Frame) {
	if f.Header.Type == frame.TypeData && e.isForMe(f) {
		e.deliver(f)
	}
}

func (e *CW) handleRxError(_ int) {}

func (e *CW) handleTone(_ frame.Marker) {}
