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
	"math"

	. "github.com/uwsn/uansim/types"
)

type RadioNode struct {
	Id NodeId

	// RadioRange is the range in meters of this node's transmissions; 0 uses the model default.
	RadioRange float64

	// Node position in meters; Z is depth.
	X, Y, Z float64

	receiver Receiver
	arrivals []*arrival
	stats    RadioNodeStats
}

type RadioNodeConfig struct {
	X, Y, Z    float64
	RadioRange float64
}

type RadioNodeStats struct {
	NumBytesTx   int
	NumTx        int
	NumArrivals  int
	NumCorrupted int
}

type arrival struct {
	sig       *Signal
	corrupted bool
	end       uint64
}

func NewRadioNode(nodeid NodeId, cfg *RadioNodeConfig, receiver Receiver) *RadioNode {
	rn := &RadioNode{
		Id:         nodeid,
		X:          cfg.X,
		Y:          cfg.Y,
		Z:          cfg.Z,
		RadioRange: cfg.RadioRange,
		receiver:   receiver,
	}
	return rn
}

func (rn *RadioNode) SetReceiver(receiver Receiver) {
	rn.receiver = receiver
}

func (rn *RadioNode) SetNodePos(x, y, z float64) {
	// arrivals already in flight keep the delay computed at their transmission.
	rn.X, rn.Y, rn.Z = x, y, z
}

func (rn *RadioNode) GetDistanceTo(other *RadioNode) (dist float64) {
	dx := other.X - rn.X
	dy := other.Y - rn.Y
	dz := other.Z - rn.Z
	dist = math.Sqrt(dx*dx + dy*dy + dz*dz)
	return
}

// NumArrivals returns the number of signals currently arriving at the node.
func (rn *RadioNode) NumArrivals() int {
	return len(rn.arrivals)
}

func (rn *RadioNode) GetStats() RadioNodeStats {
	return rn.stats
}

func (rn *RadioNode) removeArrival(a *arrival) bool {
	for i, x := range rn.arrivals {
		if x == a {
			rn.arrivals = append(rn.arrivals[:i], rn.arrivals[i+1:]...)
			return true
		}
	}
	return false
}
