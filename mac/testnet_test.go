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
	"fmt"

	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uwsn/uansim/dispatcher"
	"github.com/uwsn/uansim/frame"
	"github.com/uwsn/uansim/logger"
	"github.com/uwsn/uansim/phy"
	"github.com/uwsn/uansim/prng"
	"github.com/uwsn/uansim/radiomodel"
	. "github.com/uwsn/uansim/types"
)

type rxPacket struct {
	ts      uint64
	src     Address
	payload []byte
}

type txRecord struct {
	ts   uint64
	end  uint64
	src  NodeId
	typ  frame.Type
	tone bool
}

type testNode struct {
	id    NodeId
	eng   Engine
	phy   *phy.Phy
	wuPhy *phy.Phy
	rx    []rxPacket
}

type testNet struct {
	t        *testing.T
	d        *dispatcher.Dispatcher
	gen      *prng.Generator
	medium   radiomodel.RadioModel
	wuMedium radiomodel.RadioModel
	nodes    []*testNode
	txLog    []txRecord
	wuTxLog  []txRecord
}

func recordTx(log *[]txRecord) radiomodel.TxObserver {
	return func(ts uint64, sig *radiomodel.Signal) {
		rec := txRecord{ts: ts, end: ts + sig.Duration, src: sig.Src, tone: sig.Kind == radiomodel.SignalTone}
		if sig.Kind == radiomodel.SignalFrame {
			if f, err := frame.Unmarshal(sig.Data); err == nil {
				rec.typ = f.Header.Type
			}
		} else if sig.Kind == radiomodel.SignalWakeup {
			rec.typ = frame.TypeWakeup
		}
		*log = append(*log, rec)
	}
}

// newTestNet creates one node per x position (meters, on a line), all running cfg.
func newTestNet(t *testing.T, model string, seed int64, cfg Config, xs ...float64) *testNet {
	d := dispatcher.NewDispatcher()
	gen := prng.New(seed)
	medium, err := radiomodel.NewRadioModel(model, d, nil, gen.Stream("medium"))
	require.NoError(t, err)
	n := &testNet{t: t, d: d, gen: gen, medium: medium}
	medium.SetTxObserver(recordTx(&n.txLog))
	if cfg.UsesWakeup() {
		n.wuMedium, err = radiomodel.NewRadioModel(model, d, nil, gen.Stream("wu-medium"))
		require.NoError(t, err)
		n.wuMedium.SetTxObserver(recordTx(&n.wuTxLog))
	}

	dir := t.TempDir()
	for i, x := range xs {
		id := i + 1
		log := logger.GetNodeLogger(dir, "mactest", id, false, d.Now)
		node := &testNode{id: id}
		node.phy = phy.New("modem", id, phy.DefaultConfig(), d, medium, log, nil)
		medium.AddNode(radiomodel.NewRadioNode(id, &radiomodel.RadioNodeConfig{X: x}, node.phy))

		eng, err := New(cfg, NodeAddress(id), Deps{
			Sched: d,
			Rng:   gen.Stream(fmt.Sprintf("mac-%d", id)),
			Log:   log,
		})
		require.NoError(t, err)
		eng.AttachPhy(node.phy)
		if n.wuMedium != nil {
			node.wuPhy = phy.New("wakeup", id, phy.DefaultWakeupConfig(), d, n.wuMedium, log, nil)
			n.wuMedium.AddNode(radiomodel.NewRadioNode(id, &radiomodel.RadioNodeConfig{X: x}, node.wuPhy))
			eng.AttachWakeupPhy(node.wuPhy)
		}
		eng.SetForwardUpCb(func(payload []byte, src Address) {
			node.rx = append(node.rx, rxPacket{ts: d.Now(), src: src, payload: payload})
		})
		node.eng = eng
		n.nodes = append(n.nodes, node)
	}
	return n
}

func (n *testNet) node(id NodeId) *testNode {
	return n.nodes[id-1]
}

// dataTxTypes returns the types of the frames sent on the data medium, in order.
func (n *testNet) dataTxTypes() []frame.Type {
	var types []frame.Type
	for _, r := range n.txLog {
		if !r.tone {
			types = append(types, r.typ)
		}
	}
	return types
}

// allowedTimers lists, per protocol and state, the engine timers that may be pending.
var allowedTimers = map[Protocol]map[string][]string{
	ProtocolFama: {
		"IDLE":          nil,
		"CONTEND":       {"waitToBackoff", "contend"},
		"WAIT_FOR_CTS":  {"wfCts"},
		"SENDING_DATA":  nil,
		"WAIT_FOR_DATA": {"wfData"},
		"WAIT_FOR_ACK":  {"wfAck"},
		"BACKOFF":       {"backoff"},
	},
	ProtocolTLohi: {
		"IDLE":         nil,
		"CONTEND":      {"cr"},
		"BACKOFF":      {"bkoff"},
		"END_OF_FRAME": {"maxFrame"},
	},
	ProtocolMaca: {
		"IDLE":          nil,
		"CONTEND":       {"backoff"},
		"WAIT_FOR_CTS":  {"wfCts"},
		"WAIT_FOR_DATA": {"wfData"},
		"QUIET":         {"quiet"},
	},
	ProtocolCW: {
		"IDLE":          nil,
		"CHANNEL_BUSY":  nil,
		"TIMER_RUNNING": {"backoff"},
		"TRANSMITTING":  nil,
	},
}

func init() {
	allowedTimers[ProtocolAlohaCS] = allowedTimers[ProtocolCW]
}

func (n *testNet) checkTimers() {
	for _, node := range n.nodes {
		eng := node.eng
		byState, ok := allowedTimers[eng.Protocol()]
		require.True(n.t, ok)
		allowed, ok := byState[eng.State()]
		require.True(n.t, ok, "unknown state %s", eng.State())
		for _, name := range eng.PendingTimers() {
			if name == "delayTx" || name == "wakeGuard" {
				continue
			}
			require.Contains(n.t, allowed, name, "node %d state %s at %d", node.id, eng.State(), n.d.Now())
		}
	}
}

// checkSingleFlight verifies that no phy refused a send and that no node ever had two
// transmissions on the air at once on the same medium.
func (n *testNet) checkSingleFlight() {
	for _, node := range n.nodes {
		require.Zero(n.t, node.phy.GetStats().NumSendDenied, "node %d data phy", node.id)
		if node.wuPhy != nil {
			require.Zero(n.t, node.wuPhy.GetStats().NumSendDenied, "node %d wakeup phy", node.id)
		}
	}
	for _, log := range [][]txRecord{n.txLog, n.wuTxLog} {
		onAirUntil := map[NodeId]uint64{}
		for _, rec := range log {
			require.GreaterOrEqual(n.t, rec.ts, onAirUntil[rec.src], "node %d overlapping tx at %d", rec.src, rec.ts)
			onAirUntil[rec.src] = rec.end
		}
	}
}

// runChecked executes events up to ts, verifying timer exclusivity after each one and a single
// transmission in flight per node.
func (n *testNet) runChecked(ts uint64) {
	n.checkTimers()
	for n.d.NextTimestamp() <= ts {
		n.d.Step()
		n.checkTimers()
	}
	n.checkSingleFlight()
}

type sentFrame struct {
	ts uint64
	f  *frame.Frame
}

// fakePhy is a scripted phy: the test decides when the channel is busy and which frames arrive.
type fakePhy struct {
	sched        dispatcher.Scheduler
	rate         uint32
	busy         bool
	transmitting bool
	sleeping     bool
	receiver     phy.Receiver
	listeners    []phy.Listener
	sent         []sentFrame
}

func newFakePhy(sched dispatcher.Scheduler) *fakePhy {
	return &fakePhy{sched: sched, rate: 1000}
}

func (p *fakePhy) IsChannelBusy() bool  { return p.busy || p.transmitting }
func (p *fakePhy) IsIdle() bool         { return !p.busy && !p.transmitting && !p.sleeping }
func (p *fakePhy) IsTransmitting() bool { return p.transmitting }
func (p *fakePhy) IsReceiving() bool    { return false }
func (p *fakePhy) IsSleeping() bool     { return p.sleeping }

func (p *fakePhy) DataRateBps(_ int) uint32 { return p.rate }
func (p *fakePhy) SetSleepMode(s bool)      { p.sleeping = s }
func (p *fakePhy) SetReceiver(r phy.Receiver) {
	p.receiver = r
}
func (p *fakePhy) RegisterListener(l phy.Listener) {
	p.listeners = append(p.listeners, l)
}

func (p *fakePhy) Send(f *frame.Frame, _ int) error {
	if p.transmitting {
		return phy.ErrBusy
	}
	p.transmitting = true
	p.sent = append(p.sent, sentFrame{ts: p.sched.Now(), f: f})
	p.sched.Schedule(BitsDurationUs(f.Size(), p.rate), "fake-txend", func() {
		p.transmitting = false
		if p.receiver != nil {
			p.receiver.TxEnd(f)
		}
	})
	return nil
}

func (p *fakePhy) setBusy(busy bool) {
	p.busy = busy
	for _, l := range p.listeners {
		if busy {
			l.NotifyCcaStart()
		} else {
			l.NotifyCcaEnd()
		}
	}
}

func (p *fakePhy) deliver(f *frame.Frame) {
	p.receiver.ReceiveGood(f, 0)
}

func newFakeEngine(t *testing.T, cfg Config, addr Address) (*dispatcher.Dispatcher, Engine, *fakePhy) {
	d := dispatcher.NewDispatcher()
	log := logger.GetNodeLogger(t.TempDir(), "macunit", int(addr), false, d.Now)
	eng, err := New(cfg, addr, Deps{Sched: d, Rng: prng.New(42).Stream("mac"), Log: log})
	require.NoError(t, err)
	p := newFakePhy(d)
	eng.AttachPhy(p)
	return d, eng, p
}
