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
	"github.com/uwsn/uansim/logger"
	"github.com/uwsn/uansim/phy"
	"github.com/uwsn/uansim/prng"
	. "github.com/uwsn/uansim/types"
)

// timeoutGuard is added to every response timeout, so that a response arriving exactly at the
// derived deadline is still accepted.
const timeoutGuard uint64 = 1000

// handler is the protocol-specific part of an engine, called by base for each event.
type handler interface {
	// onEnqueue is called after a frame was added to the send queue.
	onEnqueue()
	handleFrame(f *frame.Frame)
	handleRxError(size int)
	handleTxEnd(f *frame.Frame)
	handleTone(marker frame.Marker)
	// handlePhyState reports carrier sense edges of the medium.
	handlePhyState(busy bool)
}

// base holds what all engines share: address, send queue, phys, timers and counters. It receives
// the phy events and forwards them to the engine's handler.
type base struct {
	phy.NopListener

	cfg      Config
	addr     Address
	sched    dispatcher.Scheduler
	rng      *prng.Stream
	log      *logger.NodeLogger
	queue    *sendQueue
	phy      Phy
	wuPhy    Phy
	carrier  carrier
	wakeup   *wakeupCoordinator
	fwdUp    ForwardUpFunc
	counters Counters
	timers   []*dispatcher.Timer
	h        handler
	disposed bool
}

func newBase(cfg Config, addr Address, deps Deps) *base {
	return &base{
		cfg:   cfg,
		addr:  addr,
		sched: deps.Sched,
		rng:   deps.Rng,
		log:   deps.Log,
		queue: newSendQueue(cfg.QueueCapacity),
	}
}

func (b *base) newTimer(name string, fn func()) *dispatcher.Timer {
	t := dispatcher.NewTimer(b.sched, name, func() {
		if !b.disposed {
			fn()
		}
	})
	b.timers = append(b.timers, t)
	return t
}

// cancelTimersExcept cancels every timer of the engine except the given ones.
func (b *base) cancelTimersExcept(keep ...*dispatcher.Timer) {
	for _, t := range b.timers {
		kept := false
		for _, k := range keep {
			if t == k {
				kept = true
				break
			}
		}
		if !kept {
			t.Cancel()
		}
	}
}

func (b *base) Enqueue(payload []byte, dst Address) bool {
	if b.carrier == nil || b.disposed {
		b.log.Warnf("enqueue to %s rejected: no phy", dst)
		return false
	}
	f := frame.NewData(b.addr, dst, payload)
	if f.Size() > b.cfg.MaxPacketSize && b.cfg.MaxPacketSize > 0 {
		// response timeouts are sized for MaxPacketSize
		b.log.Debugf("frame to %s has %d bytes, above maxPacketSize %d", dst, f.Size(), b.cfg.MaxPacketSize)
	}
	if !b.queue.Push(f) {
		b.counters.QueueDrops++
		b.log.Debugf("queue full, dropped frame to %s", dst)
		return false
	}
	b.counters.Enqueued++
	b.h.onEnqueue()
	return true
}

func (b *base) AttachPhy(p Phy) {
	logger.AssertTrue(b.phy == nil)
	b.phy = p
	b.setupCarrier()
}

func (b *base) AttachWakeupPhy(p Phy) {
	logger.AssertTrue(b.wuPhy == nil)
	b.wuPhy = p
	b.setupCarrier()
}

func (b *base) setupCarrier() {
	if b.cfg.UsesWakeup() {
		if b.phy == nil || b.wuPhy == nil {
			return
		}
		b.wakeup = newWakeupCoordinator(b, b.phy, b.wuPhy)
		b.carrier = b.wakeup
		return
	}
	if b.phy == nil {
		return
	}
	b.phy.SetReceiver(b)
	b.phy.RegisterListener(b)
	b.carrier = &directCarrier{phy: b.phy}
}

func (b *base) SetForwardUpCb(cb ForwardUpFunc) {
	b.fwdUp = cb
}

func (b *base) SetAddress(addr Address) {
	b.addr = addr
}

func (b *base) GetAddress() Address {
	return b.addr
}

func (b *base) Protocol() Protocol {
	return b.cfg.Protocol
}

func (b *base) QueueLen() int {
	return b.queue.Len()
}

func (b *base) PendingTimers() []string {
	var names []string
	for _, t := range b.timers {
		if t.IsRunning() {
			names = append(names, t.Name())
		}
	}
	if b.wakeup != nil {
		names = append(names, b.wakeup.pendingTimers()...)
	}
	return names
}

func (b *base) Counters() Counters {
	return b.counters
}

func (b *base) Dispose() {
	b.cancelTimersExcept()
	if b.wakeup != nil {
		b.wakeup.cancelTimers()
	}
	if b.carrier != nil {
		b.carrier.detach()
	}
	b.queue.Clear()
	b.disposed = true
	b.carrier = nil
}

func (b *base) isForMe(f *frame.Frame) bool {
	return f.Header.Dst == b.addr || f.Header.Dst.IsBroadcast()
}

// send hands f to the carrier and counts it.
func (b *base) send(f *frame.Frame) error {
	if err := b.carrier.transmit(f); err != nil {
		b.log.Warnf("send %s failed: %v", f, err)
		return err
	}
	if f.Header.Type == frame.TypeData {
		b.counters.TxData++
	} else {
		b.counters.TxControl++
	}
	b.log.Debugf("send %s", f)
	return nil
}

func (b *base) sendControl(typ frame.Type, dst Address, size int) error {
	return b.send(frame.NewControl(b.addr, dst, typ, size))
}

func (b *base) sendTone(marker frame.Marker) error {
	if err := b.carrier.sendTone(marker, b.cfg.ToneSize); err != nil {
		b.log.Warnf("send tone failed: %v", err)
		return err
	}
	b.counters.TxTones++
	return nil
}

// deliver forwards the payload of a DATA frame to the upper layer.
func (b *base) deliver(f *frame.Frame) {
	b.counters.Delivered++
	b.log.Debugf("deliver %dB from %s", len(f.Payload), f.Header.Src)
	if b.fwdUp != nil {
		b.fwdUp(f.Payload, f.Header.Src)
	}
}

func (b *base) txTime(numBytes int) uint64 {
	return b.carrier.txTime(numBytes)
}

func (b *base) propDelay() uint64 {
	return SecondsToUs(b.cfg.MaxPropDelay)
}

func (b *base) uniformUs(minSec, maxSec float64) uint64 {
	return SecondsToUs(b.rng.Uniform(minSec, maxSec))
}

// ReceiveGood implements phy.Receiver.
func (b *base) ReceiveGood(f *frame.Frame, mode int) {
	if b.disposed || f.IsWakeup() {
		return
	}
	if f.Header.Type == frame.TypeData {
		b.counters.RxData++
	} else {
		b.counters.RxControl++
	}
	b.h.handleFrame(f)
}

// ReceiveError implements phy.Receiver.
func (b *base) ReceiveError(size int) {
	if b.disposed {
		return
	}
	b.counters.RxErrors++
	b.log.Debugf("rx error (%dB) ignored", size)
	b.h.handleRxError(size)
}

// ToneReceived implements phy.Receiver.
func (b *base) ToneReceived(marker frame.Marker) {
	if b.disposed {
		return
	}
	b.counters.RxTones++
	b.h.handleTone(marker)
}

// TxEnd implements phy.Receiver.
func (b *base) TxEnd(f *frame.Frame) {
	if b.disposed {
		return
	}
	b.h.handleTxEnd(f)
}

func (b *base) NotifyCcaStart() {
	if !b.disposed {
		b.h.handlePhyState(true)
	}
}

func (b *base) NotifyCcaEnd() {
	if !b.disposed {
		b.h.handlePhyState(false)
	}
}
