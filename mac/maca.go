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

type macaState int

const (
	macaIdle macaState = iota
	macaContend
	macaWaitCts
	macaWaitData
	macaQuiet
)

var macaStateNames = [...]string{"IDLE", "CONTEND", "WAIT_FOR_CTS", "WAIT_FOR_DATA", "QUIET"}

func (s macaState) String() string {
	return macaStateNames[s]
}

// Maca implements Multiple Access with Collision Avoidance: an RTS/CTS/DATA handshake without
// carrier sense or ACKs, binary exponential backoff, and a QUIET period on overheard control frames.
type Maca struct {
	*base
	state    macaState
	peer     Address
	countBEB int
	sending  bool

	backoff *dispatcher.Timer
	wfCts   *dispatcher.Timer
	wfData  *dispatcher.Timer
	quiet   *dispatcher.Timer
}

func newMaca(b *base) *Maca {
	e := &Maca{base: b, countBEB: b.cfg.MinBEB}
	e.backoff = b.newTimer("backoff", e.onBackoffEnd)
	e.wfCts = b.newTimer("wfCts", e.onCtsTimeout)
	e.wfData = b.newTimer("wfData", e.onDataTimeout)
	e.quiet = b.newTimer("quiet", e.onQuietEnd)
	b.h = e
	return e
}

func (e *Maca) State() string {
	return e.state.String()
}

func (e *Maca) enter(s macaState) {
	if s != e.state {
		e.log.Tracef("maca %s -> %s", e.state, s)
	}
	e.state = s
	switch s {
	case macaContend:
		e.cancelTimersExcept(e.backoff)
	case macaWaitCts:
		e.cancelTimersExcept(e.wfCts)
	case macaWaitData:
		e.cancelTimersExcept(e.wfData)
	case macaQuiet:
		e.cancelTimersExcept(e.quiet)
	default:
		e.cancelTimersExcept()
	}
}

// CountBEB returns the current binary exponential backoff counter.
func (e *Maca) CountBEB() int {
	return e.countBEB
}

func (e *Maca) ctsTime() uint64 {
	return e.txTime(e.cfg.RtsSize)
}

func (e *Maca) maxPacketTime() uint64 {
	return e.txTime(e.cfg.MaxPacketSize)
}

func (e *Maca) onEnqueue() {
	e.tryContend()
}

func (e *Maca) tryContend() {
	if e.state != macaIdle || e.sending || e.queue.IsEmpty() {
		return
	}
	e.enter(macaContend)
	slot := UsToSeconds(e.propDelay() + e.ctsTime())
	_ = e.backoff.Schedule(SecondsToUs(e.rng.Uniform(0, float64(e.countBEB)) * slot))
}

func (e *Maca) onBackoffEnd() {
	f := e.queue.Front()
	if f.Header.Dst.IsBroadcast() {
		e.sendData()
		return
	}
	e.peer = f.Header.Dst
	e.enter(macaWaitCts)
	if err := e.sendControl(frame.TypeRTS, e.peer, e.cfg.RtsSize); err != nil {
		e.enter(macaIdle)
		e.tryContend()
		return
	}
	_ = e.wfCts.Schedule(2*e.propDelay() + e.txTime(e.cfg.RtsSize) + e.ctsTime() + timeoutGuard)
}

func (e *Maca) sendData() {
	e.enter(macaIdle)
	e.sending = true
	if err := e.send(e.queue.Front()); err != nil {
		e.sending = false
		e.tryContend()
	}
}

func (e *Maca) onCtsTimeout() {
	e.counters.Timeouts++
	e.countBEB *= 2
	if e.countBEB > e.cfg.MaxBEB {
		e.countBEB = e.cfg.MaxBEB
	}
	e.log.Debugf("maca CTS timeout from %s, countBEB=%d", e.peer, e.countBEB)
	e.enter(macaIdle)
	e.tryContend()
}

func (e *Maca) onDataTimeout() {
	e.counters.Timeouts++
	e.enter(macaIdle)
	e.tryContend()
}

func (e *Maca) onQuietEnd() {
	e.enter(macaIdle)
	e.tryContend()
}

// goQuiet defers for d; a pending QUIET period is only ever extended.
func (e *Maca) goQuiet(d uint64) {
	e.counters.Backoffs++
	if e.state == macaQuiet {
		e.quiet.Extend(d)
		return
	}
	e.enter(macaQuiet)
	_ = e.quiet.Schedule(d)
}

func (e *Maca) handleFrame(f *frame.Frame) {
	switch f.Header.Type {
	case frame.TypeData:
		if e.isForMe(f) {
			e.deliver(f)
			if e.state == macaWaitData && f.Header.Src == e.peer {
				e.enter(macaIdle)
				e.tryContend()
			}
		}
	case frame.TypeRTS:
		if f.Header.Dst == e.addr {
			e.handleRts(f)
		} else if e.state != macaWaitData {
			e.goQuiet(2*e.propDelay() + e.ctsTime())
		}
	case frame.TypeCTS:
		if f.Header.Dst == e.addr {
			e.handleCts(f)
		} else if e.state != macaWaitData {
			e.goQuiet(2*e.propDelay() + e.maxPacketTime())
		}
	}
}

func (e *Maca) handleRts(f *frame.Frame) {
	if e.state == macaQuiet || e.state == macaWaitData || e.sending {
		return
	}
	e.peer = f.Header.Src
	e.enter(macaWaitData)
	if err := e.sendControl(frame.TypeCTS, e.peer, e.cfg.RtsSize); err != nil {
		e.enter(macaIdle)
		e.tryContend()
		return
	}
	_ = e.wfData.Schedule(2*e.propDelay() + e.ctsTime() + e.maxPacketTime() + timeoutGuard)
}

func (e *Maca) handleCts(f *frame.Frame) {
	if e.state != macaWaitCts || f.Header.Src != e.peer {
		return
	}
	e.countBEB = e.cfg.MinBEB
	e.sendData()
}

func (e *Maca) handleTxEnd(f *frame.Frame) {
	if f.Header.Type != frame.TypeData || !e.sending {
		return
	}
	e.sending = false
	e.queue.Pop()
	e.tryContend()
}

func (e *Maca) handleRxError(_ int) {}

func (e *Maca) handleTone(_ frame.Marker) {}

func (e *Maca) handlePhyState(_ bool) {}
