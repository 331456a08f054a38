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

// Package radiomodel models the shared acoustic medium: signals spread from a transmitter to every
// node in range, arriving after a distance-dependent propagation delay, and may be corrupted by
// overlapping arrivals or random packet loss.
package radiomodel

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/uwsn/uansim/dispatcher"
	"github.com/uwsn/uansim/frame"
	"github.com/uwsn/uansim/prng"
	. "github.com/uwsn/uansim/types"
)

var ErrUnknownRadioModel = errors.New("unknown radio model")

type SignalKind int

const (
	SignalFrame SignalKind = iota
	SignalWakeup
	SignalTone
)

// Signal is one transmission on the medium. Data holds the serialized frame; tones have no data.
type Signal struct {
	Id       uint64
	Src      NodeId
	Kind     SignalKind
	Mode     int
	Data     []byte
	Marker   frame.Marker
	Size     int
	Duration uint64
	TxStart  uint64
}

// Receiver gets the arrivals of signals at a node, normally its phy.
type Receiver interface {
	// SignalStart is called when the first bit of a signal arrives.
	SignalStart(sig *Signal)
	// SignalEnd is called when the last bit of a signal arrives. corrupted is set when the signal
	// overlapped with another arrival or was lost on the way.
	SignalEnd(sig *Signal, corrupted bool)
}

// TxObserver is notified of every transmission started on the medium.
type TxObserver func(ts uint64, sig *Signal)

type RadioModel interface {
	// GetName returns the name of the model.
	GetName() string
	// AddNode adds a node to the medium.
	AddNode(node *RadioNode)
	// DeleteNode removes a node; arrivals still in flight towards it are dropped.
	DeleteNode(id NodeId)
	// GetNode returns the node or nil.
	GetNode(id NodeId) *RadioNode
	// Transmit sends a signal from node src to all nodes in range.
	Transmit(src NodeId, sig *Signal)
	// PropagationDelay returns the one-way delay in us between two nodes.
	PropagationDelay(src, dst *RadioNode) uint64
	// SetTxObserver registers the observer of all transmissions.
	SetTxObserver(obs TxObserver)
	// GetParameters returns the parameters of the model.
	GetParameters() *RadioModelParams
	// GetChannelStats returns medium usage statistics.
	GetChannelStats() *ChannelStats
}

type ChannelStats struct {
	NumTxStarted uint64
	NumArrivals  uint64
	NumCorrupted uint64
	NumLost      uint64
	BusyTimeUs   uint64

	activeTx  int
	busySince uint64
}

// NewRadioModel creates the named radio model. Supported names: Ideal, MutualInterference (MI).
func NewRadioModel(name string, sched dispatcher.Scheduler, params *RadioModelParams, rng *prng.Stream) (RadioModel, error) {
	if params == nil {
		params = NewRadioModelParams()
	}
	base := newMedium(sched, params, rng)
	switch strings.ToLower(name) {
	case "ideal", "":
		base.name = "Ideal"
		return &RadioModelIdeal{medium: base}, nil
	case "mutualinterference", "mi":
		base.name = "MutualInterference"
		rm := &RadioModelMutualInterference{medium: base}
		base.interfere = rm.interfere
		return rm, nil
	default:
		return nil, errors.Wrapf(ErrUnknownRadioModel, "%q", name)
	}
}
