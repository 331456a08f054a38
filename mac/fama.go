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

type famaState int

const (
	famaIdle famaState = iota
	famaContend
	famaWaitCts
	famaSendData
	famaWaitData
	famaWaitAck
	famaBackoff
)

var famaStateNames = [...]string{"IDLE", "CONTEND", "WAIT_FOR_CTS", "SENDING_DATA", "WAIT_FOR_DATA", "WAIT_FOR_ACK", "BACKOFF"}

func (s famaState) String() string {
	return famaStateNames[s]
}

// Fama implements Floor Acquisition Multiple Access: an RTS/CTS/DATA[/ACK] handshake gated by
// carrier sense, with virtual carrier sense on overheard control frames.
type Fama struct {
	*base
	state famaState
	peer  Address
	// bulkLeft counts the frames that may still follow the current one without a new handshake.
	bulkLeft int

	waitToBackoff *dispatcher.Timer
	contend       *dispatcher.Timer
	wfCts         *dispatcher.Timer
	wfData        *dispatcher.Timer
	wfAck         *dispatcher.Timer
	backoff       *dispatcher.Timer
}

func newFama(b *base) *Fama {
	e := &Fama{base: b}
	e.waitToBackoff = b.newTimer("waitToBackoff", e.onWaitToBackoff)
	e.contend = b.newTimer("contend", e.onContend)
	e.wfCts = b.newTimer("wfCts", e.onCtsTimeout)
	e.wfData = b.newTimer("wfData", e.onDataTimeout)
	e.wfAck = b.newTimer("wfAck", e.onAckTimeout)
	e.backoff = b.newTimer("backoff", e.onBackoffEnd)
	b.h = e
	return e
}

func (e *Fama) State() string {
	return e.state.String()
}

// enter switches state and cancels every timer that is not valid in the new state.
func (e *Fama) enter(s famaState) {
	if s != e.state {
		e.log.Tracef("fama %s -> %s", e.state, s)
	}
	e.state = s
	switch s {
	case famaContend:
		e.cancelTimersExcept(e.waitToBackoff, e.contend)
	case famaWaitCts:
		e.cancelTimersExcept(e.wfCts)
	case famaWaitData:
		e.cancelTimersExcept(e.wfData)
	case famaWaitAck:
		e.cancelTimersExcept(e.wfAck)
	case famaBackoff:
		e.cancelTimersExcept(e.backoff)
	default:
		e.cancelTimersExcept()
	}
}

func (e *Fama) rtsTime() uint64 {
	return e.txTime(e.cfg.RtsSize)
}

func (e *Fama) ackTime() uint64 {
	return e.txTime(e.cfg.AckSize)
}

func (e *Fama) maxPacketTime() uint64 {
	return e.txTime(e.cfg.MaxPacketSize)
}

func (e *Fama) ctsTimeout() uint64 {
	return 2*e.propDelay() + 2*e.rtsTime() + timeoutGuard
}

func (e *Fama) dataTimeout() uint64 {
	return 2*e.propDelay() + e.rtsTime() + e.maxPacketTime() + timeoutGuard
}

func (e *Fama) ackTimeout() uint64 {
	return 2*e.propDelay() + e.maxPacketTime() + e.ackTime() + timeoutGuard
}

func (e *Fama) timeoutBackoff() uint64 {
	window := UsToSeconds(2*e.propDelay()) + e.cfg.MinBackoff
	return SecondsToUs(10 * e.rng.Uniform(e.cfg.MinBackoff, e.cfg.MaxBackoff) * window)
}

// deferDuration returns how long an overheard frame of the given type reserves the medium.
func (e *Fama) deferDuration(typ frame.Type) uint64 {
	p := e.propDelay()
	minBackoff := SecondsToUs(e.cfg.MinBackoff)
	switch typ {
	case frame.TypeRTS:
		return 2*p + minBackoff
	case frame.TypeCTS:
		d := 2*p + 2*e.maxPacketTime()
		if e.cfg.UseAck {
			d += 2*p + 2*e.ackTime()
		}
		return d
	case frame.TypeAck:
		return 2 * p
	default:
		if e.cfg.UseAck {
			return 2 * p
		}
		return p + minBackoff
	}
}

func (e *Fama) onEnqueue() {
	e.tryContend()
}

// tryContend starts a contention if the engine is idle, has a frame and senses an idle channel.
// A busy channel is retried on its idle edge.
func (e *Fama) tryContend() {
	if e.state != famaIdle || e.queue.IsEmpty() {
		return
	}
	if e.carrier.isChannelBusy() || !e.carrier.isIdle() {
		return
	}
	e.enter(famaContend)
	_ = e.waitToBackoff.Schedule(2*e.propDelay() + e.rtsTime())
}

func (e *Fama) onWaitToBackoff() {
	_ = e.contend.Schedule(e.uniformUs(e.cfg.MinBackoff, e.cfg.MaxBackoff))
}

func (e *Fama) onContend() {
	if e.carrier.isChannelBusy() {
		e.enter(famaIdle)
		return
	}
	f := e.queue.Front()
	if f.Header.Dst.IsBroadcast() {
		e.bulkLeft = 0
		e.sendData()
		return
	}
	e.peer = f.Header.Dst
	e.enter(famaWaitCts)
	if err := e.sendControl(frame.TypeRTS, e.peer, e.cfg.RtsSize); err != nil {
		e.startBackoff(e.timeoutBackoff())
		return
	}
	_ = e.wfCts.Schedule(e.ctsTimeout())
}

func (e *Fama) sendData() {
	e.enter(famaSendData)
	if err := e.send(e.queue.Front()); err != nil {
		e.startBackoff(e.timeoutBackoff())
	}
}

func (e *Fama) onCtsTimeout() {
	e.counters.Timeouts++
	e.log.Debugf("fama CTS timeout from %s", e.peer)
	e.startBackoff(e.timeoutBackoff())
}

func (e *Fama) onDataTimeout() {
	e.counters.Timeouts++
	e.log.Debugf("fama DATA timeout from %s", e.peer)
	e.enter(famaIdle)
	e.tryContend()
}

func (e *Fama) onAckTimeout() {
	e.counters.Timeouts++
	e.log.Debugf("fama ACK timeout from %s", e.peer)
	e.startBackoff(e.timeoutBackoff())
}

func (e *Fama) onBackoffEnd() {
	e.enter(famaIdle)
	e.tryContend()
}

// startBackoff enters BACKOFF for d; a pending backoff is never shortened.
func (e *Fama) startBackoff(d uint64) {
	e.counters.Backoffs++
	if e.state == famaBackoff {
		e.backoff.Extend(d)
		return
	}
	e.enter(famaBackoff)
	_ = e.backoff.Schedule(d)
}

func (e *Fama) handleFrame(f *frame.Frame) {
	if !e.isForMe(f) {
		e.overheard(f)
		return
	}
	switch f.Header.Type {
	case frame.TypeRTS:
		e.handleRts(f)
	case frame.TypeCTS:
		e.handleCts(f)
	case frame.TypeData:
		e.handleData(f)
	case frame.TypeAck:
		e.handleAck(f)
	}
}

func (e *Fama) overheard(f *frame.Frame) {
	switch e.state {
	case famaWaitData, famaWaitAck, famaSendData:
		return
	}
	e.log.Debugf("fama overheard %s, defer", f)
	e.startBackoff(e.deferDuration(f.Header.Type))
}

func (e *Fama) handleRts(f *frame.Frame) {
	if f.Header.Dst.IsBroadcast() {
		return
	}
	switch e.state {
	case famaWaitData, famaWaitAck, famaSendData:
		return
	}
	e.peer = f.Header.Src
	e.enter(famaWaitData)
	if err := e.sendControl(frame.TypeCTS, e.peer, e.cfg.RtsSize); err != nil {
		e.enter(famaIdle)
		e.tryContend()
		return
	}
	_ = e.wfData.Schedule(e.dataTimeout())
}

func (e *Fama) handleCts(f *frame.Frame) {
	if e.state != famaWaitCts || f.Header.Src != e.peer || e.queue.IsEmpty() {
		return
	}
	e.bulkLeft = e.cfg.BulkSend - 1
	e.sendData()
}

func (e *Fama) handleData(f *frame.Frame) {
	e.deliver(f)
	if f.Header.Dst.IsBroadcast() {
		return
	}
	e.enter(famaIdle)
	if e.cfg.UseAck {
		if err := e.sendControl(frame.TypeAck, f.Header.Src, e.cfg.AckSize); err == nil {
			return // contention resumes at TxEnd of the ACK
		}
	}
	e.tryContend()
}

func (e *Fama) handleAck(f *frame.Frame) {
	if e.state != famaWaitAck || f.Header.Src != e.peer {
		return
	}
	e.queue.Pop()
	e.continueOrIdle()
}

// continueOrIdle sends the next queued frame to the same peer if the bulk budget allows,
// otherwise returns to IDLE.
func (e *Fama) continueOrIdle() {
	next := e.queue.Front()
	if e.bulkLeft > 0 && next != nil && next.Header.Dst == e.peer {
		e.bulkLeft--
		e.sendData()
		return
	}
	e.bulkLeft = 0
	e.enter(famaIdle)
	e.tryContend()
}

func (e *Fama) handleTxEnd(f *frame.Frame) {
	if e.state != famaSendData {
		if e.state == famaIdle {
			e.tryContend()
		}
		return
	}
	if f.Header.Type != frame.TypeData {
		return
	}
	if e.cfg.UseAck && !f.Header.Dst.IsBroadcast() {
		e.enter(famaWaitAck)
		_ = e.wfAck.Schedule(e.ackTimeout())
		return
	}
	e.queue.Pop()
	e.continueOrIdle()
}

func (e *Fama) handleRxError(_ int) {}

func (e *Fama) handleTone(_ frame.Marker) {}

func (e *Fama) handlePhyState(busy bool) {
	if !busy && e.state == famaIdle {
		e.tryContend()
	}
}
