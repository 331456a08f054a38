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
)

type tlohiState int

const (
	tlohiIdle tlohiState = iota
	tlohiContend
	tlohiBackoff
	tlohiEndFrame
)

var tlohiStateNames = [...]string{"IDLE", "CONTEND", "BACKOFF", "END_OF_FRAME"}

func (s tlohiState) String() string {
	return tlohiStateNames[s]
}

// TLohi implements tone-based reservation: a contender emits a contention tone and counts the
// tones heard during one contention round. A lone contender wins and sends its DATA frame; on
// collision every contender backs off a random number of rounds.
type TLohi struct {
	*base
	state tlohiState
	// ctc is the number of contention tones counted in the current round, own tone included.
	ctc int
	// sending is set from the start of a DATA transmission until its TxEnd.
	sending bool

	cr       *dispatcher.Timer
	bkoff    *dispatcher.Timer
	maxFrame *dispatcher.Timer
}

func newTLohi(b *base) *TLohi {
	e := &TLohi{base: b}
	e.cr = b.newTimer("cr", e.onRoundEnd)
	e.bkoff = b.newTimer("bkoff", e.onBackoffEnd)
	e.maxFrame = b.newTimer("maxFrame", e.onMaxFrame)
	b.h = e
	return e
}

func (e *TLohi) State() string {
	return e.state.String()
}

func (e *TLohi) enter(s tlohiState) {
	if s != e.state {
		e.log.Tracef("tlohi %s -> %s", e.state, s)
	}
	e.state = s
	switch s {
	case tlohiContend:
		e.cancelTimersExcept(e.cr)
	case tlohiBackoff:
		e.cancelTimersExcept(e.bkoff)
	case tlohiEndFrame:
		e.cancelTimersExcept(e.maxFrame)
	default:
		e.cancelTimersExcept()
	}
}

// crWindow is the duration of one contention round.
func (e *TLohi) crWindow() uint64 {
	return e.propDelay() + e.carrier.toneTime(e.cfg.ToneSize)
}

// roundTimeout is when a round is evaluated: a tone from the farthest contender ends exactly at
// crWindow and must still be counted.
func (e *TLohi) roundTimeout() uint64 {
	return e.crWindow() + timeoutGuard
}

func (e *TLohi) onEnqueue() {
	e.tryContend()
}

func (e *TLohi) tryContend() {
	if e.state != tlohiIdle || e.sending || e.queue.IsEmpty() {
		return
	}
	e.enter(tlohiContend)
	e.ctc = 1
	if err := e.sendTone(frame.MarkerCTD); err != nil {
		e.enter(tlohiBackoff)
		_ = e.bkoff.Schedule(e.crWindow())
		return
	}
	_ = e.cr.Schedule(e.roundTimeout())
}

func (e *TLohi) onRoundEnd() {
	if e.ctc <= 1 {
		e.log.Debugf("tlohi round won")
		e.enter(tlohiIdle)
		e.sending = true
		if err := e.send(e.queue.Front()); err != nil {
			e.sending = false
			e.enter(tlohiBackoff)
			_ = e.bkoff.Schedule(e.crWindow())
		}
		return
	}
	e.counters.Collisions++
	e.counters.Backoffs++
	rounds := e.rng.UniformInt(0, e.ctc)
	e.log.Debugf("tlohi collision ctc=%d, backoff %d rounds", e.ctc, rounds)
	e.enter(tlohiBackoff)
	_ = e.bkoff.Schedule(uint64(rounds) * e.crWindow())
}

func (e *TLohi) onBackoffEnd() {
	e.enter(tlohiIdle)
	e.tryContend()
}

func (e *TLohi) onMaxFrame() {
	e.enter(tlohiIdle)
	e.tryContend()
}

func (e *TLohi) handleTone(marker frame.Marker) {
	if marker != frame.MarkerCTD {
		return
	}
	switch e.state {
	case tlohiContend:
		e.ctc++
	case tlohiIdle, tlohiBackoff:
		if e.sending {
			return
		}
		e.enter(tlohiEndFrame)
		_ = e.maxFrame.Schedule(e.crWindow() * uint64(e.cfg.MaxFrameRounds))
	}
}

func (e *TLohi) handleFrame(f *frame.Frame) {
	if f.Header.Type != frame.TypeData {
		return
	}
	if e.isForMe(f) {
		e.deliver(f)
	}
	if e.sending {
		return
	}
	// the reserved frame is over: contention starts afresh.
	e.enter(tlohiIdle)
	e.tryContend()
}

func (e *TLohi) handleTxEnd(f *frame.Frame) {
	if f.Tone || f.Header.Type != frame.TypeData || !e.sending {
		return
	}
	e.sending = false
	e.queue.Pop()
	e.tryContend()
}

func (e *TLohi) handleRxError(_ int) {}

func (e *TLohi) handlePhyState(_ bool) {}
