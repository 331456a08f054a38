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

func TestMaca_Handshake(t *testing.T) {
	n := newTestNet(t, "Ideal", 1, DefaultConfig(ProtocolMaca), 0, 300)
	a, b := n.node(1), n.node(2)

	require.True(t, a.eng.Enqueue([]byte("data"), 2))
	n.runChecked(20 * 1000000)

	assert.Equal(t, []frame.Type{frame.TypeRTS, frame.TypeCTS, frame.TypeData}, n.dataTxTypes())
	require.Len(t, b.rx, 1)
	assert.Equal(t, []byte("data"), b.rx[0].payload)
	assert.Equal(t, 0, a.eng.QueueLen())
	assert.Equal(t, 1, a.eng.(*Maca).CountBEB())
	assert.Zero(t, a.eng.Counters().Timeouts)
}

func TestMaca_OverhearQuiet(t *testing.T) {
	// C hears A's RTS first and B's CTS later; its QUIET period is only ever pushed back.
	n := newTestNet(t, "Ideal", 2, DefaultConfig(ProtocolMaca), 150, 450, 0)
	a, b, c := n.node(1), n.node(2), n.node(3)
	quiet := c.eng.(*Maca)

	require.True(t, a.eng.Enqueue([]byte{1, 2}, 2))

	var lastDeadline uint64
	wasQuiet := false
	for n.d.NextTimestamp() <= 20*1000000 {
		n.d.Step()
		n.checkTimers()
		if quiet.State() == "QUIET" {
			wasQuiet = true
			dl := quiet.quiet.Deadline()
			assert.GreaterOrEqual(t, dl, lastDeadline)
			lastDeadline = dl
		}
	}

	assert.True(t, wasQuiet)
	assert.Equal(t, uint64(2), quiet.Counters().Backoffs)
	assert.Equal(t, "IDLE", quiet.State())
	require.Len(t, b.rx, 1)
	assert.Empty(t, c.rx)
	assert.Equal(t, 0, a.eng.QueueLen())
}

func TestMaca_QuietNeverShortened(t *testing.T) {
	cfg := DefaultConfig(ProtocolMaca)
	d, eng, p := newFakeEngine(t, cfg, 1)
	e := eng.(*Maca)

	p.deliver(frame.NewControl(3, 4, frame.TypeRTS, cfg.RtsSize))
	require.Equal(t, "QUIET", e.State())
	assert.Equal(t, 2*e.propDelay()+e.ctsTime(), e.quiet.Deadline())

	d.Go(100000)
	p.deliver(frame.NewControl(4, 3, frame.TypeCTS, cfg.RtsSize))
	deadline := e.quiet.Deadline()
	assert.Equal(t, d.Now()+2*e.propDelay()+e.maxPacketTime(), deadline)

	e.goQuiet(1000)
	assert.Equal(t, deadline, e.quiet.Deadline())

	// an RTS for this node is not answered while quiet.
	p.deliver(frame.NewControl(5, 1, frame.TypeRTS, cfg.RtsSize))
	assert.Empty(t, p.sent)

	d.Go(deadline - d.Now())
	assert.Equal(t, "IDLE", e.State())
}

func TestMaca_BinaryExponentialBackoff(t *testing.T) {
	cfg := DefaultConfig(ProtocolMaca)
	d, eng, p := newFakeEngine(t, cfg, 1)
	e := eng.(*Maca)

	require.True(t, e.Enqueue([]byte{1}, 2))
	assert.Equal(t, cfg.MinBEB, e.CountBEB())
	d.Go(60 * 1000000)
	assert.Equal(t, cfg.MaxBEB, e.CountBEB())
	assert.GreaterOrEqual(t, e.Counters().Timeouts, uint64(4))

	for !(e.State() == "WAIT_FOR_CTS" && !p.transmitting) {
		require.True(t, d.Step())
	}
	p.deliver(frame.NewControl(2, 1, frame.TypeCTS, cfg.RtsSize))
	assert.Equal(t, cfg.MinBEB, e.CountBEB())
	last := p.sent[len(p.sent)-1].f
	assert.Equal(t, frame.TypeData, last.Header.Type)
	assert.Equal(t, Address(2), last.Header.Dst)

	d.Go(1000000)
	assert.Equal(t, 0, e.QueueLen())
	assert.Equal(t, "IDLE", e.State())
}

func TestMaca_Broadcast(t *testing.T) {
	n := newTestNet(t, "Ideal", 3, DefaultConfig(ProtocolMaca), 0, 100, 200)

	require.True(t, n.node(1).eng.Enqueue([]byte{3}, BroadcastAddress))
	n.runChecked(10 * 1000000)

	assert.Equal(t, []frame.Type{frame.TypeData}, n.dataTxTypes())
	assert.Len(t, n.node(2).rx, 1)
	assert.Len(t, n.node(3).rx, 1)
}
