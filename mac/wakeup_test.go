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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uwsn/uansim/frame"
	. "github.com/uwsn/uansim/types"
)

func TestWakeup_FamaUnicast(t *testing.T) {
	cfg := famaTestConfig()
	cfg.Wakeup = true
	n := newTestNet(t, "Ideal", 1, cfg, 0, 300)
	a, b := n.node(1), n.node(2)

	assert.True(t, a.phy.IsSleeping())
	assert.True(t, b.phy.IsSleeping())

	require.True(t, a.eng.Enqueue([]byte("wake"), 2))
	n.runChecked(20 * 1000000)

	require.Len(t, b.rx, 1)
	assert.Equal(t, []byte("wake"), b.rx[0].payload)
	assert.Equal(t, []frame.Type{frame.TypeRTS, frame.TypeCTS, frame.TypeData, frame.TypeAck}, n.dataTxTypes())

	// one addressed preamble per frame, sent ahead of it on the wakeup radio.
	require.Len(t, n.wuTxLog, 4)
	for i, rec := range n.wuTxLog {
		assert.Equal(t, frame.TypeWakeup, rec.typ)
		assert.Less(t, rec.ts, n.txLog[i].ts)
		assert.Equal(t, rec.src, n.txLog[i].src)
	}

	assert.True(t, a.phy.IsSleeping())
	assert.True(t, b.phy.IsSleeping())
	assert.Zero(t, a.eng.Counters().Timeouts)
	assert.Empty(t, a.eng.PendingTimers())
	assert.Empty(t, b.eng.PendingTimers())
}

func TestWakeup_BroadcastTone(t *testing.T) {
	cfg := DefaultConfig(ProtocolCW)
	cfg.Wakeup = true
	n := newTestNet(t, "Ideal", 2, cfg, 0, 200, 400)

	require.True(t, n.node(2).eng.Enqueue([]byte{5}, BroadcastAddress))
	n.runChecked(10 * 1000000)

	require.Len(t, n.wuTxLog, 1)
	assert.True(t, n.wuTxLog[0].tone)
	assert.Len(t, n.node(1).rx, 1)
	assert.Len(t, n.node(3).rx, 1)
	for _, node := range n.nodes {
		assert.True(t, node.phy.IsSleeping(), "node %d", node.id)
	}
}

func TestWakeup_OtherNodesKeepSleeping(t *testing.T) {
	cfg := DefaultConfig(ProtocolCW)
	cfg.Wakeup = true
	n := newTestNet(t, "Ideal", 3, cfg, 0, 200, 400)
	c := n.node(3)

	require.True(t, n.node(1).eng.Enqueue([]byte{1}, 2))
	for n.d.NextTimestamp() <= 10*1000000 {
		n.d.Step()
		assert.True(t, c.phy.IsSleeping())
	}
	assert.Len(t, n.node(2).rx, 1)
	assert.Empty(t, c.rx)
	assert.Equal(t, 1, c.phy.GetStats().NumRxDropped)
}

func TestWakeup_TLohiUltra(t *testing.T) {
	cfg := DefaultConfig(ProtocolTLohi)
	cfg.Ultra = true
	n := newTestNet(t, "Ideal", 4, cfg, 0, 300)
	a, b := n.node(1), n.node(2)

	require.True(t, a.eng.Enqueue([]byte("u"), 2))
	n.runChecked(20 * 1000000)

	require.Len(t, b.rx, 1)
	// contention tones travel on the wakeup radio only.
	for _, rec := range n.txLog {
		assert.False(t, rec.tone)
	}
	require.Len(t, n.wuTxLog, 2)
	assert.True(t, n.wuTxLog[0].tone)
	assert.Equal(t, frame.TypeWakeup, n.wuTxLog[1].typ)
	assert.Equal(t, uint64(1), b.eng.Counters().RxTones)
	assert.True(t, a.phy.IsSleeping())
	assert.True(t, b.phy.IsSleeping())
}

func newFakeWakeupEngine(t *testing.T, cfg Config, addr Address) (Engine, *fakePhy, *fakePhy) {
	d, eng, data := newFakeEngine(t, cfg, addr)
	wu := newFakePhy(d)
	eng.AttachWakeupPhy(wu)
	return eng, data, wu
}

func TestWakeup_BusyFollowsArrivalsOnly(t *testing.T) {
	cfg := DefaultConfig(ProtocolCW)
	cfg.Wakeup = true
	eng, data, wu := newFakeWakeupEngine(t, cfg, 1)
	w := eng.(*CW).wakeup
	require.NotNil(t, w)

	data.transmitting = true

	wu.setBusy(true)
	assert.True(t, w.busy)
	wu.setBusy(false)
	assert.False(t, w.busy, "own transmission must not keep the medium busy")

	wu.setBusy(true)
	data.setBusy(true)
	wu.setBusy(false)
	assert.True(t, w.busy)
	data.setBusy(false)
	assert.False(t, w.busy)
}
