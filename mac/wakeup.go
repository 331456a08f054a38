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
	"github.com/pkg/errors"

	"github.com/uwsn/uansim/dispatcher"
	"github.com/uwsn/uansim/frame"
	"github.com/uwsn/uansim/phy"
	. "github.com/uwsn/uansim/types"
)

type wakeupState int

const (
	// wakeupWU: the coordinator is free or sending a wakeup preamble.
	wakeupWU wakeupState = iota
	// wakeupData: the data frame following a preamble is being sent.
	wakeupData
)

// wakeupCoordinator duty-cycles the data phy of an engine with a low-power wakeup radio. Every
// frame is preceded by a preamble on the wakeup radio; the data phy sleeps except while sending,
// receiving, or waiting for a frame announced by a preamble addressed to this node.
type wakeupCoordinator struct {
	owner *base
	data  Phy
	wu    Phy
	cfg   WakeupConfig

	state   wakeupState
	pending *frame.Frame
	// dataSensed and wuSensed follow the CCA edges of the two radios; busy is their union as last
	// reported to the engine.
	dataSensed bool
	wuSensed   bool
	busy       bool

	delayTx   *dispatcher.Timer
	wakeGuard *dispatcher.Timer
}

func newWakeupCoordinator(owner *base, data Phy, wu Phy) *wakeupCoordinator {
	w := &wakeupCoordinator{
		owner: owner,
		data:  data,
		wu:    wu,
		cfg:   owner.cfg.WakeupParams,
	}
	w.delayTx = dispatcher.NewTimer(owner.sched, "delayTx", w.onDelayTx)
	w.wakeGuard = dispatcher.NewTimer(owner.sched, "wakeGuard", w.onWakeGuard)

	data.SetReceiver(&wakeupDataReceiver{w})
	data.RegisterListener(&wakeupListener{w: w, sensed: &w.dataSensed})
	wu.SetReceiver(&wakeupRadioReceiver{w})
	wu.RegisterListener(&wakeupListener{w: w, sensed: &w.wuSensed})
	w.sleep()
	return w
}

func (w *wakeupCoordinator) pendingTimers() []string {
	var names []string
	for _, t := range []*dispatcher.Timer{w.delayTx, w.wakeGuard} {
		if t.IsRunning() {
			names = append(names, t.Name())
		}
	}
	return names
}

func (w *wakeupCoordinator) cancelTimers() {
	w.delayTx.Cancel()
	w.wakeGuard.Cancel()
}

func (w *wakeupCoordinator) sleep() {
	w.data.SetSleepMode(true)
}

func (w *wakeupCoordinator) wake() {
	w.data.SetSleepMode(false)
}

// trySleep puts the data phy to sleep unless it has work to do.
func (w *wakeupCoordinator) trySleep() {
	if w.pending != nil || w.wakeGuard.IsRunning() || w.data.IsTransmitting() || w.data.IsReceiving() {
		return
	}
	w.sleep()
}

func (w *wakeupCoordinator) preambleSize() int {
	return frame.WakeupHeaderSize
}

func (w *wakeupCoordinator) preambleTime() uint64 {
	return BitsDurationUs(w.preambleSize(), w.wu.DataRateBps(dataMode))
}

// transmit sends a wakeup preamble for f on the wakeup radio, followed by f on the data phy.
func (w *wakeupCoordinator) transmit(f *frame.Frame) error {
	if w.pending != nil || w.wu.IsTransmitting() || w.data.IsTransmitting() {
		return errors.Wrapf(phy.ErrBusy, "wakeup coordinator busy")
	}
	var preamble *frame.Frame
	if f.Header.Dst.IsBroadcast() || w.cfg.ToneWakeup {
		preamble = frame.NewTone(frame.MarkerWakeupHE, w.preambleSize())
	} else {
		preamble = frame.NewWakeup(f.Header.Dst, frame.MarkerWakeup)
	}
	if err := w.wu.Send(preamble, dataMode); err != nil {
		return err
	}
	w.pending = f
	w.state = wakeupWU
	w.wakeGuard.Cancel()
	return nil
}

func (w *wakeupCoordinator) sendTone(marker frame.Marker, size int) error {
	return w.wu.Send(frame.NewTone(marker, size), dataMode)
}

func (w *wakeupCoordinator) isChannelBusy() bool {
	return w.data.IsChannelBusy() || w.wu.IsChannelBusy()
}

func (w *wakeupCoordinator) isIdle() bool {
	return w.pending == nil && !w.wu.IsTransmitting() && (w.data.IsIdle() || w.data.IsSleeping())
}

func (w *wakeupCoordinator) txTime(numBytes int) uint64 {
	return w.preambleTime() + SecondsToUs(w.cfg.DelayTx) + BitsDurationUs(numBytes, w.data.DataRateBps(dataMode))
}

func (w *wakeupCoordinator) toneTime(numBytes int) uint64 {
	return BitsDurationUs(numBytes, w.wu.DataRateBps(dataMode))
}

func (w *wakeupCoordinator) detach() {
	w.cancelTimers()
	w.data.SetReceiver(nil)
	w.wu.SetReceiver(nil)
}

func (w *wakeupCoordinator) onDelayTx() {
	f := w.pending
	w.state = wakeupData
	w.wake()
	if err := w.data.Send(f, dataMode); err != nil {
		w.owner.log.Warnf("wakeup: data send failed: %v", err)
		w.pending = nil
		w.state = wakeupWU
		w.trySleep()
		w.owner.TxEnd(f)
	}
}

func (w *wakeupCoordinator) onWakeGuard() {
	w.trySleep()
}

// woken is called when a preamble for this node has been received.
func (w *wakeupCoordinator) woken() {
	w.wake()
	w.wakeGuard.Restart(SecondsToUs(w.cfg.DelayTx) + SecondsToUs(w.cfg.WakeGuard))
}

// updateBusy reports a change of the sensed medium to the engine. Own transmissions do not count.
func (w *wakeupCoordinator) updateBusy() {
	busy := w.dataSensed || w.wuSensed
	if busy == w.busy {
		return
	}
	w.busy = busy
	if busy {
		w.owner.NotifyCcaStart()
	} else {
		w.owner.NotifyCcaEnd()
	}
}

// wakeupRadioReceiver receives preambles and tones on the wakeup radio.
type wakeupRadioReceiver struct {
	w *wakeupCoordinator
}

func (r *wakeupRadioReceiver) ReceiveGood(f *frame.Frame, _ int) {
	if !f.IsWakeup() {
		return
	}
	if f.Wakeup.Dst == r.w.owner.addr || f.Wakeup.Dst.IsBroadcast() {
		r.w.woken()
	}
}

func (r *wakeupRadioReceiver) ReceiveError(_ int) {}

func (r *wakeupRadioReceiver) ToneReceived(marker frame.Marker) {
	switch marker {
	case frame.MarkerWakeupHE:
		r.w.woken()
	case frame.MarkerCTD:
		r.w.owner.ToneReceived(marker)
	}
}

func (r *wakeupRadioReceiver) TxEnd(f *frame.Frame) {
	w := r.w
	if f.Tone && f.Marker == frame.MarkerCTD {
		w.owner.TxEnd(f)
		return
	}
	if w.pending != nil && w.state == wakeupWU {
		_ = w.delayTx.Schedule(SecondsToUs(w.cfg.DelayTx))
	}
}

// wakeupDataReceiver receives the frames of the data phy.
type wakeupDataReceiver struct {
	w *wakeupCoordinator
}

func (r *wakeupDataReceiver) ReceiveGood(f *frame.Frame, mode int) {
	r.w.wakeGuard.Cancel()
	r.w.owner.ReceiveGood(f, mode)
	r.w.trySleep()
}

func (r *wakeupDataReceiver) ReceiveError(size int) {
	r.w.wakeGuard.Cancel()
	r.w.owner.ReceiveError(size)
	r.w.trySleep()
}

func (r *wakeupDataReceiver) ToneReceived(marker frame.Marker) {
	r.w.owner.ToneReceived(marker)
}

func (r *wakeupDataReceiver) TxEnd(f *frame.Frame) {
	w := r.w
	if f == w.pending {
		w.pending = nil
		w.state = wakeupWU
	}
	w.trySleep()
	w.owner.TxEnd(f)
}

type wakeupListener struct {
	phy.NopListener
	w      *wakeupCoordinator
	sensed *bool
}

func (l *wakeupListener) NotifyCcaStart() {
	*l.sensed = true
	l.w.updateBusy()
}

func (l *wakeupListener) NotifyCcaEnd() {
	*l.sensed = false
	l.w.updateBusy()
}
