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

// Package phy implements the physical-layer adapter of a node on top of a radiomodel medium:
// carrier sense, half-duplex transmit and receive, tone detection, sleep, and energy reporting.
package phy

import (
	"github.com/pkg/errors"

	"github.com/uwsn/uansim/dispatcher"
	"github.com/uwsn/uansim/energy"
	"github.com/uwsn/uansim/frame"
	"github.com/uwsn/uansim/logger"
	"github.com/uwsn/uansim/radiomodel"
	. "github.com/uwsn/uansim/types"
)

var (
	ErrBusy        = errors.New("phy is transmitting")
	ErrSleeping    = errors.New("phy is sleeping")
	ErrInvalidMode = errors.New("invalid phy mode")
)

// Receiver is the upper layer of a phy.
type Receiver interface {
	// ReceiveGood delivers a frame decoded without error.
	ReceiveGood(f *frame.Frame, mode int)
	// ReceiveError reports a frame of size bytes that could not be decoded.
	ReceiveError(size int)
	// ToneReceived reports the end of a detected tone.
	ToneReceived(marker frame.Marker)
	// TxEnd reports the end of the transmission of f.
	TxEnd(f *frame.Frame)
}

// Listener observes state changes of a phy. CCA edges follow the signals arriving from the medium
// and never the phy's own transmissions.
type Listener interface {
	NotifyRxStart()
	NotifyRxEndOk()
	NotifyRxEndError()
	NotifyCcaStart()
	NotifyCcaEnd()
	NotifyTxStart(duration uint64)
}

// NopListener can be embedded by listeners interested in a few notifications only.
type NopListener struct{}

func (NopListener) NotifyRxStart()         {}
func (NopListener) NotifyRxEndOk()         {}
func (NopListener) NotifyRxEndError()      {}
func (NopListener) NotifyCcaStart()        {}
func (NopListener) NotifyCcaEnd()          {}
func (NopListener) NotifyTxStart(_ uint64) {}

type Stats struct {
	NumTxFrames   int
	NumTxTones    int
	NumRxGood     int
	NumRxError    int
	NumRxTones    int
	NumRxDropped  int // arrivals missed because the phy was sleeping or transmitting
	NumSendDenied int
}

type rxState struct {
	lost bool
}

type Phy struct {
	Name   string
	NodeId NodeId

	sched     dispatcher.Scheduler
	medium    radiomodel.RadioModel
	cfg       Config
	log       *logger.NodeLogger
	energy    *energy.RadioEnergy
	receiver  Receiver
	listeners []Listener

	state    RadioStates
	sleeping bool
	txFrame  *frame.Frame
	arrivals int
	sensed   bool
	rx       map[uint64]*rxState
	stats    Stats
}

// New creates a phy in the idle state. The caller adds it to the medium as the receiver of the
// node's RadioNode.
func New(name string, nodeid NodeId, cfg Config, sched dispatcher.Scheduler, medium radiomodel.RadioModel,
	log *logger.NodeLogger, re *energy.RadioEnergy) *Phy {
	logger.AssertTrue(len(cfg.DataRates) > 0)
	p := &Phy{
		Name:   name,
		NodeId: nodeid,
		sched:  sched,
		medium: medium,
		cfg:    cfg,
		log:    log,
		energy: re,
		rx:     map[uint64]*rxState{},
	}
	p.setState(RadioIdle)
	return p
}

func (p *Phy) SetReceiver(r Receiver) {
	p.receiver = r
}

func (p *Phy) RegisterListener(l Listener) {
	p.listeners = append(p.listeners, l)
}

func (p *Phy) GetStats() Stats {
	return p.stats
}

func (p *Phy) State() RadioStates {
	return p.state
}

// IsChannelBusy returns true while an awake phy senses an arriving signal, or while it transmits.
func (p *Phy) IsChannelBusy() bool {
	return p.sensed || p.state == RadioTx
}

// updateCca notifies the listeners when the sensed state of the medium changes. Own
// transmissions are not sensed.
func (p *Phy) updateCca() {
	sensed := p.arrivals > 0 && !p.sleeping
	if sensed == p.sensed {
		return
	}
	p.sensed = sensed
	for _, l := range p.listeners {
		if sensed {
			l.NotifyCcaStart()
		} else {
			l.NotifyCcaEnd()
		}
	}
}

func (p *Phy) IsIdle() bool {
	return p.state == RadioIdle
}

func (p *Phy) IsTransmitting() bool {
	return p.state == RadioTx
}

func (p *Phy) IsReceiving() bool {
	return p.state == RadioRx
}

func (p *Phy) IsSleeping() bool {
	return p.sleeping
}

func (p *Phy) NumModes() int {
	return len(p.cfg.DataRates)
}

func (p *Phy) DataRateBps(mode int) uint32 {
	if mode < 0 || mode >= len(p.cfg.DataRates) {
		logger.Panicf("phy %s: invalid mode %d", p.Name, mode)
	}
	return p.cfg.DataRates[mode]
}

// TxDuration returns the time in us to send numBytes in the given mode.
func (p *Phy) TxDuration(numBytes int, mode int) uint64 {
	return BitsDurationUs(numBytes, p.DataRateBps(mode))
}

// Send starts the transmission of f. Completion is reported through Receiver.TxEnd.
func (p *Phy) Send(f *frame.Frame, mode int) error {
	if p.sleeping {
		p.stats.NumSendDenied++
		return errors.Wrapf(ErrSleeping, "phy %s send %s", p.Name, f)
	}
	if p.state == RadioTx {
		p.stats.NumSendDenied++
		return errors.Wrapf(ErrBusy, "phy %s send %s", p.Name, f)
	}
	if mode < 0 || mode >= len(p.cfg.DataRates) {
		return errors.Wrapf(ErrInvalidMode, "mode %d", mode)
	}

	sig := &radiomodel.Signal{
		Mode:   mode,
		Size:   f.Size(),
		Marker: f.Marker,
	}
	switch {
	case f.Tone:
		sig.Kind = radiomodel.SignalTone
		p.stats.NumTxTones++
	case f.IsWakeup():
		sig.Kind = radiomodel.SignalWakeup
		sig.Marker = f.Wakeup.Marker
		p.stats.NumTxFrames++
	default:
		sig.Kind = radiomodel.SignalFrame
		p.stats.NumTxFrames++
	}
	if !f.Tone {
		data, err := f.Marshal()
		if err != nil {
			return err
		}
		sig.Data = data
	}
	sig.Duration = p.TxDuration(sig.Size, mode)

	// half-duplex: whatever is being received now is lost.
	for _, rx := range p.rx {
		rx.lost = true
	}
	p.txFrame = f
	p.setState(RadioTx)
	p.log.Debugf("%s tx %s dur=%d", p.Name, f, sig.Duration)
	for _, l := range p.listeners {
		l.NotifyTxStart(sig.Duration)
	}
	p.medium.Transmit(p.NodeId, sig)
	p.sched.Schedule(sig.Duration, "phy-txend", p.endTx)
	return nil
}

func (p *Phy) endTx() {
	f := p.txFrame
	p.txFrame = nil
	p.updateRxState()
	if p.receiver != nil {
		p.receiver.TxEnd(f)
	}
}

// SetSleepMode puts the radio to sleep or wakes it. A sleeping radio neither senses the medium nor
// decodes frames; frames that started arriving during sleep stay lost after waking, but are
// sensed again from the moment of waking. A radio put
// to sleep while transmitting finishes its transmission first.
func (p *Phy) SetSleepMode(sleep bool) {
	if sleep == p.sleeping {
		return
	}
	p.sleeping = sleep
	if sleep {
		for _, rx := range p.rx {
			rx.lost = true
		}
		p.log.Tracef("%s sleep", p.Name)
	} else {
		p.log.Tracef("%s wake", p.Name)
	}
	if p.state != RadioTx {
		p.updateRxState()
	}
	p.updateCca()
}

// SignalStart implements radiomodel.Receiver.
func (p *Phy) SignalStart(sig *radiomodel.Signal) {
	p.arrivals++
	p.updateCca()
	if sig.Kind == radiomodel.SignalTone {
		return
	}
	rx := &rxState{lost: p.sleeping || p.state == RadioTx}
	p.rx[sig.Id] = rx
	if !rx.lost && p.state == RadioIdle {
		p.setState(RadioRx)
		for _, l := range p.listeners {
			l.NotifyRxStart()
		}
	}
}

// SignalEnd implements radiomodel.Receiver.
func (p *Phy) SignalEnd(sig *radiomodel.Signal, corrupted bool) {
	p.arrivals--
	logger.AssertTrue(p.arrivals >= 0)

	if sig.Kind == radiomodel.SignalTone {
		if !p.sleeping && p.state != RadioTx {
			p.stats.NumRxTones++
			p.log.Tracef("%s tone %s", p.Name, sig.Marker)
			if p.receiver != nil {
				p.receiver.ToneReceived(sig.Marker)
			}
		} else {
			p.stats.NumRxDropped++
		}
	} else {
		rx := p.rx[sig.Id]
		delete(p.rx, sig.Id)
		if p.state != RadioTx {
			p.updateRxState()
		}
		if rx == nil || rx.lost || p.sleeping {
			p.stats.NumRxDropped++
		} else if corrupted {
			p.deliverError(sig)
		} else {
			p.deliverGood(sig)
		}
	}

	p.updateCca()
}

func (p *Phy) deliverGood(sig *radiomodel.Signal) {
	var f *frame.Frame
	var err error
	if sig.Kind == radiomodel.SignalWakeup {
		f, err = frame.UnmarshalWakeup(sig.Data)
	} else {
		f, err = frame.Unmarshal(sig.Data)
	}
	if err != nil {
		p.log.Warnf("%s rx from node %d: %v", p.Name, sig.Src, err)
		p.deliverError(sig)
		return
	}
	p.stats.NumRxGood++
	p.log.Debugf("%s rx %s", p.Name, f)
	for _, l := range p.listeners {
		l.NotifyRxEndOk()
	}
	if p.receiver != nil {
		p.receiver.ReceiveGood(f, sig.Mode)
	}
}

func (p *Phy) deliverError(sig *radiomodel.Signal) {
	p.stats.NumRxError++
	p.log.Debugf("%s rx error from node %d (%dB)", p.Name, sig.Src, sig.Size)
	for _, l := range p.listeners {
		l.NotifyRxEndError()
	}
	if p.receiver != nil {
		p.receiver.ReceiveError(sig.Size)
	}
}

// updateRxState derives the state of a phy that is not transmitting.
func (p *Phy) updateRxState() {
	switch {
	case p.sleeping:
		p.setState(RadioSleep)
	case p.isLockedOnFrame():
		p.setState(RadioRx)
	default:
		p.setState(RadioIdle)
	}
}

func (p *Phy) isLockedOnFrame() bool {
	for _, rx := range p.rx {
		if !rx.lost {
			return true
		}
	}
	return false
}

func (p *Phy) setState(state RadioStates) {
	if state == p.state {
		return
	}
	p.state = state
	if p.energy != nil {
		p.energy.SetRadioState(state, p.sched.Now())
	}
}
