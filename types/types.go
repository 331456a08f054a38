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

package types

import (
	"fmt"
	"math"
	"time"
)

type NodeId = int
type ChannelId = int

const (
	MaxNodeId     NodeId = 254
	InvalidNodeId NodeId = 0
)

// Channels are separate acoustic bands; the wakeup band is only used by duty-cycled nodes.
const (
	DataChannel   ChannelId = 0
	WakeupChannel ChannelId = 1
)

// Address is the MAC address of a node. One node has exactly one address, equal to its NodeId.
type Address uint8

const (
	BroadcastAddress Address = 255
)

func (a Address) IsBroadcast() bool {
	return a == BroadcastAddress
}

func (a Address) String() string {
	if a == BroadcastAddress {
		return "bcast"
	}
	return fmt.Sprintf("%d", uint8(a))
}

// NodeAddress returns the MAC address used by node id.
func NodeAddress(id NodeId) Address {
	return Address(id)
}

const (
	// Ever is the timestamp that is never reached.
	Ever uint64 = math.MaxUint64
)

// SecondsToUs converts seconds to simulation time units (microseconds), rounding to nearest.
func SecondsToUs(sec float64) uint64 {
	if sec <= 0 {
		return 0
	}
	return uint64(math.Round(sec * 1e6))
}

// UsToSeconds converts simulation time units (microseconds) to seconds.
func UsToSeconds(us uint64) float64 {
	return float64(us) / 1e6
}

// DurationToUs converts a wall-clock style duration into simulation time units.
func DurationToUs(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Microsecond)
}

// BitsDurationUs returns the on-air time of numBytes at the given bit rate.
func BitsDurationUs(numBytes int, bitRate uint32) uint64 {
	if bitRate == 0 {
		return Ever
	}
	return uint64(math.Ceil(float64(numBytes) * 8 * 1e6 / float64(bitRate)))
}

type RadioStates byte

const (
	RadioDisabled RadioStates = 0
	RadioSleep    RadioStates = 1
	RadioIdle     RadioStates = 2
	RadioRx       RadioStates = 3
	RadioTx       RadioStates = 4
)

func (s RadioStates) String() string {
	switch s {
	case RadioDisabled:
		return "Off"
	case RadioSleep:
		return "Slp"
	case RadioIdle:
		return "Idl"
	case RadioRx:
		return "Rx_"
	case RadioTx:
		return "Tx_"
	default:
		return "invalid"
	}
}
