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
	"github.com/uwsn/uansim/frame"
	. "github.com/uwsn/uansim/types"
)

// carrier is the path frames take from an engine to the medium: either directly through the data
// phy, or through the wakeup coordinator which precedes each frame with a wakeup preamble.
type carrier interface {
	// transmit starts sending f; the engine gets TxEnd when the frame has left the data phy.
	transmit(f *frame.Frame) error
	// sendTone emits a contention tone.
	sendTone(marker frame.Marker, size int) error
	isChannelBusy() bool
	isIdle() bool
	// txTime returns the time from transmit to TxEnd for a frame of numBytes.
	txTime(numBytes int) uint64
	// toneTime returns the on-air time of a tone of numBytes.
	toneTime(numBytes int) uint64
	detach()
}

const dataMode = 0

type directCarrier struct {
	phy Phy
}

func (c *directCarrier) transmit(f *frame.Frame) error {
	return c.phy.Send(f, dataMode)
}

func (c *directCarrier) sendTone(marker frame.Marker, size int) error {
	return c.phy.Send(frame.NewTone(marker, size), dataMode)
}

func (c *directCarrier) isChannelBusy() bool {
	return c.phy.IsChannelBusy()
}

func (c *directCarrier) isIdle() bool {
	return c.phy.IsIdle()
}

func (c *directCarrier) txTime(numBytes int) uint64 {
	return BitsDurationUs(numBytes, c.phy.DataRateBps(dataMode))
}

func (c *directCarrier) toneTime(numBytes int) uint64 {
	return c.txTime(numBytes)
}

func (c *directCarrier) detach() {
	c.phy.SetReceiver(nil)
}
