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
package simulation

import (
	. "github.com/uwsn/uansim/types"
)

// PacketStats are the end-to-end traffic statistics of a run.
type PacketStats struct {
	Generated     uint64  `json:"generated" yaml:"generated"`
	Accepted      uint64  `json:"accepted" yaml:"accepted"`
	Rejected      uint64  `json:"rejected" yaml:"rejected"`
	Received      uint64  `json:"received" yaml:"received"`
	Duplicates    uint64  `json:"duplicates" yaml:"duplicates"`
	ReceivedBytes uint64  `json:"received_bytes" yaml:"receivedBytes"`
	AvgDelaySec   float64 `json:"avg_delay_sec" yaml:"avgDelaySec"`
	MaxDelaySec   float64 `json:"max_delay_sec" yaml:"maxDelaySec"`
	DeliveryRatio float64 `json:"delivery_ratio" yaml:"deliveryRatio"`
	ThroughputBps float64 `json:"throughput_bps" yaml:"throughputBps"`
}

// NodeTraffic counts the packets of one node.
type NodeTraffic struct {
	Generated  uint64
	Rejected   uint64
	Received   uint64
	Duplicates uint64
}

type packetId struct {
	src NodeId
	seq uint16
}

type receptionId struct {
	packetId
	epoch uint32
	dst   NodeId
}

type sentPacket struct {
	ts    uint64
	epoch uint32
}

// trafficTracker matches received packets against sent ones by (source, sequence number). A
// packet received again by the same node counts as a duplicate. The epoch of a packet id counts
// its reuses after sequence number wrap-around.
type trafficTracker struct {
	packets      map[packetId]sentPacket
	seen         map[receptionId]struct{}
	perNode      map[NodeId]*NodeTraffic
	stats        PacketStats
	totalDelayUs uint64
	maxDelayUs   uint64
}

func newTrafficTracker() *trafficTracker {
	return &trafficTracker{
		packets: map[packetId]sentPacket{},
		seen:    map[receptionId]struct{}{},
		perNode: map[NodeId]*NodeTraffic{},
	}
}

func (tt *trafficTracker) node(id NodeId) *NodeTraffic {
	nt := tt.perNode[id]
	if nt == nil {
		nt = &NodeTraffic{}
		tt.perNode[id] = nt
	}
	return nt
}

func (tt *trafficTracker) sent(src NodeId, seq uint16, ts uint64, accepted bool) {
	tt.stats.Generated++
	nt := tt.node(src)
	nt.Generated++
	if !accepted {
		tt.stats.Rejected++
		nt.Rejected++
		return
	}
	tt.stats.Accepted++
	id := packetId{src, seq}
	sp, ok := tt.packets[id]
	if ok {
		sp.epoch++
	}
	sp.ts = ts
	tt.packets[id] = sp
}

// received records a reception and returns true if it is a duplicate.
func (tt *trafficTracker) received(src NodeId, seq uint16, dst NodeId, size int, ts uint64) bool {
	pid := packetId{src, seq}
	sp, known := tt.packets[pid]
	id := receptionId{pid, sp.epoch, dst}
	nt := tt.node(dst)
	if _, ok := tt.seen[id]; ok {
		tt.stats.Duplicates++
		nt.Duplicates++
		return true
	}
	tt.seen[id] = struct{}{}
	tt.stats.Received++
	tt.stats.ReceivedBytes += uint64(size)
	nt.Received++

	if known && ts >= sp.ts {
		delay := ts - sp.ts
		tt.totalDelayUs += delay
		if delay > tt.maxDelayUs {
			tt.maxDelayUs = delay
		}
	}
	return false
}

// Stats returns the statistics for a measurement period of periodUs.
func (tt *trafficTracker) Stats(periodUs uint64) PacketStats {
	s := tt.stats
	if s.Received > 0 {
		s.AvgDelaySec = UsToSeconds(tt.totalDelayUs) / float64(s.Received)
	}
	s.MaxDelaySec = UsToSeconds(tt.maxDelayUs)
	if s.Generated > 0 {
		s.DeliveryRatio = float64(s.Received) / float64(s.Generated)
	}
	if periodUs > 0 {
		s.ThroughputBps = float64(s.ReceivedBytes*8) / UsToSeconds(periodUs)
	}
	return s
}

func (tt *trafficTracker) NodeTraffic(id NodeId) NodeTraffic {
	if nt, ok := tt.perNode[id]; ok {
		return *nt
	}
	return NodeTraffic{}
}
