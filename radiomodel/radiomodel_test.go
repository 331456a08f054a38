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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uwsn/uansim/dispatcher"
	"github.com/uwsn/uansim/prng"
	. "github.com/uwsn/uansim/types"
)

type rxRecord struct {
	ts        uint64
	start     bool
	sigId     uint64
	corrupted bool
}

type recordingReceiver struct {
	d   *dispatcher.Dispatcher
	log []rxRecord
}

func (r *recordingReceiver) SignalStart(sig *Signal) {
	r.log = append(r.log, rxRecord{ts: r.d.Now(), start: true, sigId: sig.Id})
}

func (r *recordingReceiver) SignalEnd(sig *Signal, corrupted bool) {
	r.log = append(r.log, rxRecord{ts: r.d.Now(), sigId: sig.Id, corrupted: corrupted})
}

func setupModel(t *testing.T, name string, positions ...float64) (*dispatcher.Dispatcher, RadioModel, []*recordingReceiver) {
	d := dispatcher.NewDispatcher()
	rm, err := NewRadioModel(name, d, nil, prng.New(1).Stream("per"))
	require.NoError(t, err)
	var rxs []*recordingReceiver
	for i, x := range positions {
		rx := &recordingReceiver{d: d}
		rm.AddNode(NewRadioNode(i+1, &RadioNodeConfig{X: x}, rx))
		rxs = append(rxs, rx)
	}
	return d, rm, rxs
}

func TestNewRadioModel(t *testing.T) {
	d := dispatcher.NewDispatcher()
	rm, err := NewRadioModel("MI", d, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, "MutualInterference", rm.GetName())
	rm, err = NewRadioModel("ideal", d, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, "Ideal", rm.GetName())
	assert.Equal(t, 1500.0, rm.GetParameters().SoundSpeed)
	_, err = NewRadioModel("rayleigh", d, nil, nil)
	assert.Error(t, err)
}

func TestPropagationDelayAndRange(t *testing.T) {
	d, rm, rxs := setupModel(t, "Ideal", 0, 450, 6000)
	assert.Equal(t, uint64(300000), rm.PropagationDelay(rm.GetNode(1), rm.GetNode(2)))

	rm.Transmit(1, &Signal{Kind: SignalFrame, Data: []byte{1, 2, 3}, Size: 3, Duration: 24000})
	d.Go(Ever)

	require.Len(t, rxs[1].log, 2)
	assert.Equal(t, rxRecord{ts: 300000, start: true, sigId: 1}, rxs[1].log[0])
	assert.Equal(t, rxRecord{ts: 324000, sigId: 1}, rxs[1].log[1])
	assert.Empty(t, rxs[0].log)
	assert.Empty(t, rxs[2].log, "out of range")

	stats := rm.GetChannelStats()
	assert.Equal(t, uint64(1), stats.NumTxStarted)
	assert.Equal(t, uint64(1), stats.NumArrivals)
	assert.Equal(t, uint64(24000), stats.BusyTimeUs)
}

func TestMutualInterference_CorruptsOverlap(t *testing.T) {
	d, rm, rxs := setupModel(t, "MutualInterference", 0, 1500, 3000)
	// node 2 sits in the middle: both signals arrive there at the same time.
	rm.Transmit(1, &Signal{Kind: SignalFrame, Size: 3, Duration: 1000})
	rm.Transmit(3, &Signal{Kind: SignalTone, Size: 3, Duration: 1000})
	d.Go(Ever)

	var ends []rxRecord
	for _, r := range rxs[1].log {
		if !r.start {
			ends = append(ends, r)
		}
	}
	require.Len(t, ends, 2)
	assert.True(t, ends[0].corrupted)
	assert.True(t, ends[1].corrupted)
	assert.Equal(t, uint64(2), rm.GetChannelStats().NumCorrupted)
	assert.Equal(t, 2, rm.GetNode(2).GetStats().NumCorrupted)
}

func TestIdeal_NoInterference(t *testing.T) {
	d, rm, rxs := setupModel(t, "Ideal", 0, 1500, 3000)
	rm.Transmit(1, &Signal{Kind: SignalFrame, Size: 3, Duration: 1000})
	rm.Transmit(3, &Signal{Kind: SignalFrame, Size: 3, Duration: 1000})
	d.Go(Ever)
	for _, r := range rxs[1].log {
		assert.False(t, r.corrupted)
	}
	assert.Len(t, rxs[1].log, 4)
}

func TestMutualInterference_BackToBack(t *testing.T) {
	d, rm, rxs := setupModel(t, "MutualInterference", 0, 1500)
	rm.Transmit(1, &Signal{Kind: SignalFrame, Size: 3, Duration: 1000})
	d.Go(1000)
	rm.Transmit(1, &Signal{Kind: SignalFrame, Size: 3, Duration: 1000})
	d.Go(Ever)
	for _, r := range rxs[1].log {
		assert.False(t, r.corrupted)
	}
}

func TestPacketErrorRate(t *testing.T) {
	d := dispatcher.NewDispatcher()
	params := NewRadioModelParams()
	params.PacketErrorRate = 1.0
	rm, err := NewRadioModel("Ideal", d, params, prng.New(7).Stream("per"))
	require.NoError(t, err)
	rx := &recordingReceiver{d: d}
	rm.AddNode(NewRadioNode(1, &RadioNodeConfig{}, nil))
	rm.AddNode(NewRadioNode(2, &RadioNodeConfig{X: 100}, rx))

	rm.Transmit(1, &Signal{Kind: SignalFrame, Size: 3, Duration: 10})
	rm.Transmit(1, &Signal{Kind: SignalTone, Size: 3, Duration: 10})
	d.Go(Ever)
	require.Len(t, rx.log, 4)
	lost := map[uint64]bool{}
	for _, r := range rx.log {
		if !r.start {
			lost[r.sigId] = r.corrupted
		}
	}
	assert.True(t, lost[1])
	assert.False(t, lost[2], "tones are never lost")
	assert.Equal(t, uint64(1), rm.GetChannelStats().NumLost)
}

func TestDeleteNode_DropsInFlight(t *testing.T) {
	d, rm, rxs := setupModel(t, "Ideal", 0, 1500)
	rm.Transmit(1, &Signal{Kind: SignalFrame, Size: 3, Duration: 10})
	rm.DeleteNode(2)
	d.Go(Ever)
	assert.Empty(t, rxs[1].log)
	assert.Nil(t, rm.GetNode(2))
}
