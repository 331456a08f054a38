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

package radiomodel

import (
	"github.com/uwsn/uansim/dispatcher"
	"github.com/uwsn/uansim/logger"
	"github.com/uwsn/uansim/prng"
	. "github.com/uwsn/uansim/types"
)

// medium is the propagation core shared by all radio models. A model that corrupts overlapping
// arrivals sets interfere.
type medium struct {
	name      string
	sched     dispatcher.Scheduler
	params    *RadioModelParams
	rng       *prng.Stream
	nodes     map[NodeId]*RadioNode
	stats     ChannelStats
	observer  TxObserver
	nextSigId uint64
	interfere func(node *RadioNode, a *arrival)
}

func newMedium(sched dispatcher.Scheduler, params *RadioModelParams, rng *prng.Stream) *medium {
	return &medium{
		sched:  sched,
		params: params,
		rng:    rng,
		nodes:  map[NodeId]*RadioNode{},
	}
}

func (m *medium) GetName() string {
	return m.name
}

func (m *medium) GetParameters() *RadioModelParams {
	return m.params
}

func (m *medium) AddNode(node *RadioNode) {
	logger.AssertNil(m.nodes[node.Id])
	m.nodes[node.Id] = node
}

func (m *medium) DeleteNode(id NodeId) {
	if node, ok := m.nodes[id]; ok {
		node.arrivals = nil
		delete(m.nodes, id)
	}
}

func (m *medium) GetNode(id NodeId) *RadioNode {
	return m.nodes[id]
}

func (m *medium) SetTxObserver(obs TxObserver) {
	m.observer = obs
}

func (m *medium) GetChannelStats() *ChannelStats {
	stats := m.stats
	if stats.activeTx > 0 {
		stats.BusyTimeUs += m.sched.Now() - stats.busySince
	}
	return &stats
}

func (m *medium) PropagationDelay(src, dst *RadioNode) uint64 {
	return propagationDelayUs(src.GetDistanceTo(dst), m.params.SoundSpeed)
}

func (m *medium) rangeOf(node *RadioNode) float64 {
	if node.RadioRange > 0 {
		return node.RadioRange
	}
	return m.params.RadioRange
}

func (m *medium) Transmit(src NodeId, sig *Signal) {
	srcNode := m.nodes[src]
	logger.AssertNotNil(srcNode)

	now := m.sched.Now()
	m.nextSigId++
	sig.Id = m.nextSigId
	sig.Src = src
	sig.TxStart = now

	srcNode.stats.NumTx++
	srcNode.stats.NumBytesTx += sig.Size
	m.stats.NumTxStarted++
	if m.stats.activeTx == 0 {
		m.stats.busySince = now
	}
	m.stats.activeTx++
	m.sched.Schedule(sig.Duration, "txend", m.txEnded)

	if m.observer != nil {
		m.observer(now, sig)
	}

	txRange := m.rangeOf(srcNode)
	for _, id := range sortedNodeIds(m.nodes) {
		if id == src {
			continue
		}
		dst := m.nodes[id]
		dist := srcNode.GetDistanceTo(dst)
		if dist > txRange {
			continue
		}
		a := &arrival{sig: sig}
		m.sched.Schedule(propagationDelayUs(dist, m.params.SoundSpeed), "arrival", func() {
			m.arrivalStart(dst, a)
		})
	}
}

func (m *medium) txEnded() {
	m.stats.activeTx--
	if m.stats.activeTx == 0 {
		m.stats.BusyTimeUs += m.sched.Now() - m.stats.busySince
	}
}

func (m *medium) arrivalStart(dst *RadioNode, a *arrival) {
	if m.nodes[dst.Id] != dst {
		return
	}
	a.end = m.sched.Now() + a.sig.Duration
	m.stats.NumArrivals++
	dst.stats.NumArrivals++
	if m.interfere != nil {
		m.interfere(dst, a)
	}
	dst.arrivals = append(dst.arrivals, a)
	m.sched.Schedule(a.sig.Duration, "arrival-end", func() {
		m.arrivalEnd(dst, a)
	})
	if dst.receiver != nil {
		dst.receiver.SignalStart(a.sig)
	}
}

func (m *medium) arrivalEnd(dst *RadioNode, a *arrival) {
	if !dst.removeArrival(a) {
		return
	}
	corrupted := a.corrupted
	if corrupted {
		m.stats.NumCorrupted++
		dst.stats.NumCorrupted++
	} else if a.sig.Kind != SignalTone && m.isLost() {
		m.stats.NumLost++
		corrupted = true
	}
	if dst.receiver != nil {
		dst.receiver.SignalEnd(a.sig, corrupted)
	}
}

func (m *medium) isLost() bool {
	if m.params.PacketErrorRate <= 0 || m.rng == nil {
		return false
	}
	return m.rng.UnitRandom() < m.params.PacketErrorRate
}
